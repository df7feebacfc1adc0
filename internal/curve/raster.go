package curve

import (
	"image"
	"image/draw"
	"math"

	"golang.org/x/image/vector"
)

// CanvasSize is the side of the logical square canvas Build draws on.
const CanvasSize = 500.0

// MaxSide caps the pixel side of the square region on window surfaces.
const MaxSide = 500

// Center is the middle of the logical canvas.
var Center = Point{X: CanvasSize / 2, Y: CanvasSize / 2}

const (
	joinSides      = 8
	maxFlattenStep = 16
	// flatten until segments are about this many device pixels long
	flattenPixels = 2.0
)

// Transform maps canvas units to device pixels.
type Transform struct {
	Scale float64
	OffX  float64
	OffY  float64
}

// Apply maps p into device space.
func (t Transform) Apply(p Point) Point {
	return Point{X: p.X*t.Scale + t.OffX, Y: p.Y*t.Scale + t.OffY}
}

// Fit returns the transform placing the logical canvas in the largest
// centred square of a width×height surface, capped at maxSide pixels when
// maxSide is positive.
func Fit(width, height, maxSide int) Transform {
	side := min(width, height)
	if maxSide > 0 && side > maxSide {
		side = maxSide
	}
	if side <= 0 {
		return Transform{}
	}
	return Transform{
		Scale: float64(side) / CanvasSize,
		OffX:  float64(width-side) / 2,
		OffY:  float64(height-side) / 2,
	}
}

// Rasterizer paints paths into images. It reuses its buffers between frames
// and is not safe for concurrent use.
type Rasterizer struct {
	z    *vector.Rasterizer
	line []Point
	poly []Point
}

// NewRasterizer returns an empty rasterizer.
func NewRasterizer() *Rasterizer {
	return &Rasterizer{z: vector.NewRasterizer(0, 0)}
}

// Rasterize paints path into dst with a throwaway rasterizer.
func Rasterize(dst draw.Image, path Path, tr Transform) {
	NewRasterizer().Draw(dst, path, tr)
}

// Draw paints path into dst. A nil or empty destination, an empty path or a
// degenerate transform draws nothing.
func (r *Rasterizer) Draw(dst draw.Image, path Path, tr Transform) {
	if dst == nil || path.Empty() || !(tr.Scale > 0) {
		return
	}
	b := dst.Bounds()
	if b.Empty() {
		return
	}

	r.z.Reset(b.Dx(), b.Dy())
	if path.Style.Fill {
		r.fill(path, tr)
	} else {
		width := math.Max(1, path.Style.StrokeWidth*tr.Scale)
		r.stroke(path, tr, width)
	}
	r.z.Draw(dst, b, image.NewUniform(path.Style.Color), image.Point{})
}

func (r *Rasterizer) fill(path Path, tr Transform) {
	for _, c := range path.Commands {
		switch c.Op {
		case MoveTo:
			p := tr.Apply(c.Pts[0])
			r.z.MoveTo(f32(p.X), f32(p.Y))
		case CubicTo:
			c1, c2, end := tr.Apply(c.Pts[0]), tr.Apply(c.Pts[1]), tr.Apply(c.Pts[2])
			r.z.CubeTo(f32(c1.X), f32(c1.Y), f32(c2.X), f32(c2.Y), f32(end.X), f32(end.Y))
		case Close:
			r.z.ClosePath()
		}
	}
}

// stroke flattens the outline and fills one quad per segment plus a small
// polygon at every vertex. All polygons share one winding so overlaps
// saturate instead of cancelling.
func (r *Rasterizer) stroke(path Path, tr Transform, width float64) {
	r.line = Flatten(r.line[:0], path, tr)
	if len(r.line) < 2 {
		return
	}
	half := width / 2
	for i := 1; i < len(r.line); i++ {
		a, b := r.line[i-1], r.line[i]
		dx, dy := b.X-a.X, b.Y-a.Y
		l := math.Hypot(dx, dy)
		if l == 0 {
			continue
		}
		nx, ny := -dy/l*half, dx/l*half
		r.poly = append(r.poly[:0],
			Point{a.X + nx, a.Y + ny},
			Point{b.X + nx, b.Y + ny},
			Point{b.X - nx, b.Y - ny},
			Point{a.X - nx, a.Y - ny},
		)
		r.addPolygon(r.poly)
	}
	if width < 1.5 {
		return
	}
	for _, p := range r.line {
		r.poly = r.poly[:0]
		for k := 0; k < joinSides; k++ {
			s, c := math.Sincos(2 * math.Pi * float64(k) / joinSides)
			r.poly = append(r.poly, Point{p.X + half*c, p.Y + half*s})
		}
		r.addPolygon(r.poly)
	}
}

func (r *Rasterizer) addPolygon(pts []Point) {
	if signedArea(pts) < 0 {
		for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
			pts[i], pts[j] = pts[j], pts[i]
		}
	}
	r.z.MoveTo(f32(pts[0].X), f32(pts[0].Y))
	for _, p := range pts[1:] {
		r.z.LineTo(f32(p.X), f32(p.Y))
	}
	r.z.ClosePath()
}

// Flatten appends the device-space polyline approximating path to dst.
func Flatten(dst []Point, path Path, tr Transform) []Point {
	var start, cur Point
	for _, c := range path.Commands {
		switch c.Op {
		case MoveTo:
			start = tr.Apply(c.Pts[0])
			cur = start
			dst = append(dst, cur)
		case CubicTo:
			c1, c2, end := tr.Apply(c.Pts[0]), tr.Apply(c.Pts[1]), tr.Apply(c.Pts[2])
			steps := flattenSteps(cur, c1, c2, end)
			for k := 1; k <= steps; k++ {
				dst = append(dst, cubicAt(cur, c1, c2, end, float64(k)/float64(steps)))
			}
			cur = end
		case Close:
			if cur != start {
				dst = append(dst, start)
			}
			cur = start
		}
	}
	return dst
}

func flattenSteps(p0, p1, p2, p3 Point) int {
	l := dist(p0, p1) + dist(p1, p2) + dist(p2, p3)
	steps := int(math.Ceil(l / flattenPixels))
	return max(1, min(steps, maxFlattenStep))
}

func cubicAt(p0, p1, p2, p3 Point, t float64) Point {
	mt := 1 - t
	a := mt * mt * mt
	b := 3 * mt * mt * t
	c := 3 * mt * t * t
	d := t * t * t
	return Point{
		X: a*p0.X + b*p1.X + c*p2.X + d*p3.X,
		Y: a*p0.Y + b*p1.Y + c*p2.Y + d*p3.Y,
	}
}

func signedArea(pts []Point) float64 {
	area := 0.0
	for i := range pts {
		j := (i + 1) % len(pts)
		area += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return area / 2
}

func dist(a, b Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

func f32(v float64) float32 {
	return float32(v)
}
