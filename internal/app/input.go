package app

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"

	"github.com/eiannone/keyboard"

	"github.com/guidoenr/soundcircle/internal/params"
	"github.com/guidoenr/soundcircle/internal/render"
)

type inputEvent int

const (
	inputEventQuit inputEvent = iota
	inputEventRandomize
	inputEventToggleFill
	inputEventTogglePointy
	inputEventSelectPrev
	inputEventSelectNext
	inputEventDecrease
	inputEventIncrease
	inputEventCyclePalette
)

func (a *App) startInputListener(ctx context.Context) {
	if err := keyboard.Open(); err != nil {
		a.log.Printf("keyboard input disabled: %v", err)
		a.inputEvents = nil
		return
	}

	events := make(chan inputEvent, 16)
	a.inputEvents = events

	closeOnce := &sync.Once{}
	go func() {
		<-ctx.Done()
		closeOnce.Do(func() {
			_ = keyboard.Close()
		})
	}()

	go func() {
		defer close(events)
		defer closeOnce.Do(func() {
			_ = keyboard.Close()
		})
		for {
			char, key, err := keyboard.GetKey()
			if err != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
			evt, ok := translateKey(char, key)
			if !ok {
				continue
			}
			if evt == inputEventQuit {
				events <- evt
				return
			}
			select {
			case events <- evt:
			default:
			}
		}
	}()
}

func translateKey(char rune, key keyboard.Key) (inputEvent, bool) {
	switch key {
	case keyboard.KeyEsc, keyboard.KeyCtrlC:
		return inputEventQuit, true
	case keyboard.KeyArrowUp:
		return inputEventSelectPrev, true
	case keyboard.KeyArrowDown:
		return inputEventSelectNext, true
	case keyboard.KeyArrowLeft:
		return inputEventDecrease, true
	case keyboard.KeyArrowRight:
		return inputEventIncrease, true
	}
	switch char {
	case 'q', 'Q':
		return inputEventQuit, true
	case 'r', 'R':
		return inputEventRandomize, true
	case 'f', 'F':
		return inputEventToggleFill, true
	case 'p', 'P':
		return inputEventTogglePointy, true
	case 'c', 'C':
		return inputEventCyclePalette, true
	}
	return 0, false
}

func (a *App) handleInput(evt inputEvent) {
	opts := params.Options()
	switch evt {
	case inputEventRandomize:
		a.randomizeShape()
	case inputEventToggleFill:
		a.toggle(params.OptFill)
	case inputEventTogglePointy:
		a.toggle(params.OptPointyDistortion)
	case inputEventSelectPrev:
		a.selected = (a.selected - 1 + len(opts)) % len(opts)
	case inputEventSelectNext:
		a.selected = (a.selected + 1) % len(opts)
	case inputEventDecrease, inputEventIncrease:
		steps := 1
		if evt == inputEventDecrease {
			steps = -1
		}
		name := opts[a.selected].Name
		if _, err := a.store.Adjust(name, steps); err != nil {
			a.log.Printf("adjust %s: %v", name, err)
		}
	case inputEventCyclePalette:
		names := render.PaletteNames()
		next := names[0]
		for i, n := range names {
			if n == a.renderer.PaletteName() {
				next = names[(i+1)%len(names)]
				break
			}
		}
		a.applyPalette(next)
	}
}

func (a *App) toggle(name string) {
	p, err := a.store.Toggle(name)
	if err != nil {
		a.log.Printf("toggle %s: %v", name, err)
		return
	}
	v, _ := p.Value(name)
	a.log.Printf("%s -> %t", name, v != 0)
}

// randomizeShape rolls the distortion-related parameters within their
// slider ranges.
func (a *App) randomizeShape() {
	p := a.store.Update(func(p *params.Parameters) {
		for _, name := range []string{params.OptMaxDistortion, params.OptPointCount, params.OptPulseTime, params.OptPointyDistortion} {
			opt, _ := params.LookupOption(name)
			_ = p.SetValue(name, randomStep(opt, a.rng.Intn))
		}
	})
	a.log.Printf("Randomize shape -> distortion=%.2f points=%d pulse=%.2f pointy=%t",
		p.MaxDistortion, p.PointCount, p.PulseTime, p.PointyDistortion)
}

// randomStep picks a value on the option's step grid.
func randomStep(opt params.Option, intn func(int) int) float64 {
	steps := int(math.Round((opt.Max - opt.Min) / opt.Step))
	return opt.Min + float64(intn(steps+1))*opt.Step
}

func (a *App) selectedLabel(p params.Parameters) string {
	opts := params.Options()
	if a.selected < 0 || a.selected >= len(opts) {
		return ""
	}
	opt := opts[a.selected]
	v, err := p.Value(opt.Name)
	if err != nil {
		return opt.Label
	}
	if opt.Bool {
		return fmt.Sprintf("%s %t", opt.Label, v != 0)
	}
	return opt.Label + " " + strconv.FormatFloat(v, 'f', stepDecimals(opt.Step), 64)
}

func stepDecimals(step float64) int {
	if step <= 0 || step >= 1 {
		return 0
	}
	return int(math.Ceil(-math.Log10(step) - 1e-9))
}
