//go:build !sdl

package render

import (
	"errors"

	"github.com/guidoenr/soundcircle/internal/curve"
)

type sdlState struct{}

func (r *Renderer) initSDL(width, height int) error {
	return errors.New("SDL backend not enabled; rebuild with -tags sdl")
}

func (r *Renderer) renderSDL(path curve.Path, st Status) Frame {
	return Frame{
		Status: "SDL backend unavailable (build without -tags sdl)",
		Present: func(string) error {
			return ErrRendererQuit
		},
	}
}

func (r *Renderer) closeSDL() error { return nil }

func (r *Renderer) windowedSDL() bool { return false }

// SupportsSDL reports whether the binary was built with the SDL backend.
func SupportsSDL() bool { return false }
