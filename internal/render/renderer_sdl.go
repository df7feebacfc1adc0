//go:build sdl

package render

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/veandco/go-sdl2/sdl"

	"github.com/guidoenr/soundcircle/internal/curve"
)

type sdlState struct {
	initialized bool
	window      *sdl.Window
	renderer    *sdl.Renderer
	texture     *sdl.Texture
	canvas      *image.RGBA
	width       int
	height      int
	windowTitle string
}

func (r *Renderer) initSDL(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid window size %dx%d", width, height)
	}
	if r.sdl != nil {
		r.mode = backendSDL
		r.useANSI = false
		return nil
	}
	if err := sdl.InitSubSystem(sdl.INIT_VIDEO); err != nil {
		return err
	}
	r.sdl = &sdlState{
		initialized: true,
		width:       width,
		height:      height,
	}
	r.mode = backendSDL
	r.useANSI = false
	return nil
}

func (r *Renderer) ensureSDLResources() error {
	if r.sdl == nil {
		return fmt.Errorf("SDL backend not initialized")
	}
	state := r.sdl
	if state.window == nil {
		window, err := sdl.CreateWindow(
			"soundcircle",
			sdl.WINDOWPOS_CENTERED, sdl.WINDOWPOS_CENTERED,
			int32(state.width), int32(state.height),
			sdl.WINDOW_SHOWN|sdl.WINDOW_RESIZABLE,
		)
		if err != nil {
			return err
		}
		state.window = window
	}
	if state.renderer == nil {
		renderer, err := sdl.CreateRenderer(state.window, -1, sdl.RENDERER_ACCELERATED|sdl.RENDERER_PRESENTVSYNC)
		if err != nil {
			return err
		}
		state.renderer = renderer
	}
	if state.texture == nil || state.canvas == nil ||
		state.canvas.Rect.Dx() != state.width || state.canvas.Rect.Dy() != state.height {
		if state.texture != nil {
			state.texture.Destroy()
			state.texture = nil
		}
		tex, err := state.renderer.CreateTexture(
			sdl.PIXELFORMAT_ABGR8888,
			sdl.TEXTUREACCESS_STREAMING,
			int32(state.width), int32(state.height),
		)
		if err != nil {
			return err
		}
		state.texture = tex
		state.canvas = image.NewRGBA(image.Rect(0, 0, state.width, state.height))
	}
	return nil
}

func (r *Renderer) renderSDL(path curve.Path, st Status) Frame {
	if err := r.ensureSDLResources(); err != nil {
		return Frame{
			Status: fmt.Sprintf("SDL init error: %v", err),
			Present: func(string) error {
				return err
			},
		}
	}
	state := r.sdl
	canvas := state.canvas

	draw.Draw(canvas, canvas.Rect, image.Black, image.Point{}, draw.Src)
	r.raster.Draw(canvas, path, curve.Fit(state.width, state.height, curve.MaxSide))

	status := r.buildStatus(st)

	return Frame{
		Status: status,
		Present: func(status string) error {
			if status != "" && status != state.windowTitle && state.window != nil {
				state.window.SetTitle(status)
				state.windowTitle = status
			}
			if err := state.texture.Update(nil, canvas.Pix, canvas.Stride); err != nil {
				return err
			}
			if err := state.renderer.Clear(); err != nil {
				return err
			}
			if err := state.renderer.Copy(state.texture, nil, nil); err != nil {
				return err
			}
			state.renderer.Present()
			for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
				switch e := event.(type) {
				case *sdl.QuitEvent:
					return ErrRendererQuit
				case *sdl.WindowEvent:
					if e.Event == sdl.WINDOWEVENT_SIZE_CHANGED && e.Data1 > 0 && e.Data2 > 0 {
						state.width = int(e.Data1)
						state.height = int(e.Data2)
					}
				}
			}
			return nil
		},
	}
}

func (r *Renderer) closeSDL() error {
	if r.sdl == nil {
		return nil
	}
	if r.sdl.texture != nil {
		r.sdl.texture.Destroy()
		r.sdl.texture = nil
	}
	if r.sdl.renderer != nil {
		r.sdl.renderer.Destroy()
		r.sdl.renderer = nil
	}
	if r.sdl.window != nil {
		r.sdl.window.Destroy()
		r.sdl.window = nil
	}
	r.sdl.canvas = nil
	if r.sdl.initialized {
		sdl.QuitSubSystem(sdl.INIT_VIDEO)
		r.sdl.initialized = false
	}
	r.sdl = nil
	r.mode = backendANSI
	return nil
}

func (r *Renderer) windowedSDL() bool {
	return r.sdl != nil
}

// SupportsSDL reports whether the binary was built with the SDL backend.
func SupportsSDL() bool { return true }
