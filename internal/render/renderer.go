package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/guidoenr/soundcircle/internal/curve"
)

// ErrRendererQuit is returned by Frame.Present when the user closed the
// output surface.
var ErrRendererQuit = errors.New("renderer closed")

type backend int

const (
	backendANSI backend = iota
	backendSDL
)

const (
	// dots per terminal cell; makes one dot roughly square on screen
	dotsX = 2
	dotsY = 4
	// alpha needed to light a braille dot
	dotThreshold = 0x80
)

var opaque = color.RGBA{0xff, 0xff, 0xff, 0xff}

// Renderer converts the sound circle path into terminal frames, or into an
// SDL window when that backend is enabled.
type Renderer struct {
	width         int
	height        int
	palette       []rune
	paletteName   string
	useANSI       bool
	mode          backend
	raster        *curve.Rasterizer
	mask          *image.Alpha
	sdl           *sdlState
	statusBuilder strings.Builder
}

// Status is the runtime information shown in the status line.
type Status struct {
	Phase    string
	Peak     float64
	Points   int
	FPS      float64
	Source   string
	Selected string
}

// Frame contains the rendered lines and optional status text. Window
// backends leave Lines empty and set Present instead.
type Frame struct {
	Lines   []string
	Status  string
	Present func(status string) error
}

var (
	resetANSI       = "\x1b[0m"
	precomputedANSI [256]string
)

func init() {
	for i := range precomputedANSI {
		precomputedANSI[i] = "\x1b[38;5;" + strconv.Itoa(i) + "m"
	}
}

// New creates a Renderer for a width×height cell terminal.
func New(width, height int, paletteName string, useANSI bool) (*Renderer, error) {
	if width < 0 || height < 0 {
		return nil, fmt.Errorf("invalid dimensions: width=%d height=%d", width, height)
	}

	r := &Renderer{
		width:   width,
		height:  height,
		useANSI: useANSI,
		raster:  curve.NewRasterizer(),
	}
	r.Configure(paletteName)
	return r, nil
}

// Configure switches the glyph palette.
func (r *Renderer) Configure(paletteName string) {
	if paletteName == "" {
		paletteName = "default"
	}
	r.palette = Palette(paletteName)
	r.paletteName = paletteName
	if !knownPalette(paletteName) {
		r.paletteName = "default"
	}
}

// EnableSDL switches output to an SDL window of the given pixel size.
func (r *Renderer) EnableSDL(width, height int) error {
	return r.initSDL(width, height)
}

// Resize updates the terminal dimensions. Negative values are ignored.
func (r *Renderer) Resize(width, height int) {
	if width >= 0 {
		r.width = width
	}
	if height >= 0 {
		r.height = height
	}
}

func (r *Renderer) PaletteName() string { return r.paletteName }

// Windowed reports whether frames go to a window rather than the terminal.
func (r *Renderer) Windowed() bool { return r.windowedSDL() }

// Close releases window resources.
func (r *Renderer) Close() error {
	return r.closeSDL()
}

// Render draws path. A renderer without a surface returns an empty frame.
func (r *Renderer) Render(path curve.Path, st Status) Frame {
	if r.mode == backendSDL {
		return r.renderSDL(path, st)
	}
	if r.width <= 0 || r.height <= 0 {
		return Frame{}
	}

	dw, dh := r.width*dotsX, r.height*dotsY
	r.ensureMask(dw, dh)
	mask := path
	mask.Style.Color = opaque
	r.raster.Draw(r.mask, mask, curve.Fit(dw, dh, 0))

	ink := path.Style.Color
	lines := make([]string, r.height)
	width := r.width
	height := r.height

	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers > height {
		numWorkers = height
	}
	if numWorkers < 1 {
		numWorkers = 1
	}

	var wg sync.WaitGroup
	rowJobs := make(chan int, numWorkers)

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for y := range rowJobs {
				var builder strings.Builder
				builder.Grow(width * 8)
				lastColor := -1
				for x := 0; x < width; x++ {
					char, coverage := r.sampleCell(x, y)
					if r.useANSI && coverage > 0 {
						fg := shadeANSI(ink, coverage)
						if fg != lastColor {
							builder.WriteString(colorCode(fg))
							lastColor = fg
						}
					}
					builder.WriteRune(char)
				}
				if r.useANSI {
					builder.WriteString(resetANSI)
				}
				lines[y] = builder.String()
			}
		}()
	}

	for y := 0; y < height; y++ {
		rowJobs <- y
	}
	close(rowJobs)
	wg.Wait()

	return Frame{
		Lines:  lines,
		Status: r.buildStatus(st),
	}
}

func (r *Renderer) ensureMask(w, h int) {
	if r.mask == nil || r.mask.Rect.Dx() != w || r.mask.Rect.Dy() != h {
		r.mask = image.NewAlpha(image.Rect(0, 0, w, h))
		return
	}
	clear(r.mask.Pix)
}

// sampleCell maps the 2×4 dots under a cell to a glyph and its coverage in
// [0, 1].
func (r *Renderer) sampleCell(cx, cy int) (rune, float64) {
	var (
		sum  int
		bits rune
	)
	x0, y0 := cx*dotsX, cy*dotsY
	for dy := 0; dy < dotsY; dy++ {
		row := r.mask.Pix[(y0+dy)*r.mask.Stride+x0:]
		for dx := 0; dx < dotsX; dx++ {
			a := row[dx]
			sum += int(a)
			if a >= dotThreshold {
				bits |= brailleBits[dy][dx]
			}
		}
	}
	coverage := float64(sum) / (dotsX * dotsY * 0xff)

	if r.paletteName == "braille" {
		if bits == 0 {
			return ' ', 0
		}
		return brailleBase + bits, 1
	}
	if sum == 0 {
		return r.palette[0], 0
	}
	index := clampInt(int(coverage*float64(len(r.palette)-1)+0.5), 1, len(r.palette)-1)
	return r.palette[index], coverage
}

// shadeANSI dims the ink colour for partially covered cells.
func shadeANSI(c color.RGBA, coverage float64) int {
	shade := 0.45 + 0.55*clamp01(coverage)
	return rgbToANSI(
		float64(c.R)/0xff*shade,
		float64(c.G)/0xff*shade,
		float64(c.B)/0xff*shade,
	)
}

func colorCode(index int) string {
	if index < 0 {
		index = 0
	} else if index >= len(precomputedANSI) {
		index = len(precomputedANSI) - 1
	}
	return precomputedANSI[index]
}

func rgbToANSI(r, g, b float64) int {
	r = clamp01(r)
	g = clamp01(g)
	b = clamp01(b)

	// grayscale ramp for unsaturated colours
	if abs(r-g) < 0.02 && abs(g-b) < 0.02 {
		gray := int(clampFloat(r*23+0.5, 0, 23))
		return 232 + gray
	}

	ri := int(clampFloat(r*5+0.5, 0, 5))
	gi := int(clampFloat(g*5+0.5, 0, 5))
	bi := int(clampFloat(b*5+0.5, 0, 5))

	return 16 + 36*ri + 6*gi + bi
}

func (r *Renderer) buildStatus(st Status) string {
	builder := &r.statusBuilder
	builder.Reset()
	builder.Grow(128)
	builder.WriteString(strings.ToUpper(st.Phase))
	builder.WriteString(" | peak ")
	appendFloat(builder, st.Peak, 3)
	builder.WriteString(" points ")
	builder.WriteString(strconv.Itoa(st.Points))
	builder.WriteString(" palette=")
	builder.WriteString(r.paletteName)
	if st.Selected != "" {
		builder.WriteString(" | ")
		builder.WriteString(st.Selected)
	}
	builder.WriteString(" | fps ")
	appendFloat(builder, st.FPS, 1)
	if st.Source != "" {
		builder.WriteString(" | src=")
		builder.WriteString(st.Source)
	}
	return builder.String()
}

func appendFloat(builder *strings.Builder, value float64, precision int) {
	var buf [32]byte
	b := strconv.AppendFloat(buf[:0], value, 'f', precision, 64)
	builder.Write(b)
}

func clamp01(v float64) float64 {
	return clampFloat(v, 0, 1)
}

func clampFloat(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
