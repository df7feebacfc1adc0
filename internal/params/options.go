package params

import (
	"fmt"
	"math"
)

// Option names, as used by the keyboard controls and the web API.
const (
	OptBaseRadius       = "baseRadius"
	OptFill             = "fill"
	OptStrokeWidth      = "strokeWidth"
	OptPointCount       = "pointCount"
	OptMaxDistortion    = "maxDistortion"
	OptPointyDistortion = "pointyDistortion"
	OptPulseTime        = "pulseTime"
	OptCircleDecayRate  = "circleDecayRate"
	OptAudioDecayRate   = "audioDecayRate"
	OptMinAudioLevel    = "minAudioLevel"
	OptMaxAudioLevel    = "maxAudioLevel"
)

// Option describes one adjustable parameter. Boolean options use Min 0,
// Max 1 and Step 1.
type Option struct {
	Name  string  `json:"name"`
	Label string  `json:"label"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Step  float64 `json:"step"`
	Bool  bool    `json:"bool,omitempty"`
}

var options = []Option{
	{Name: OptBaseRadius, Label: "Radius", Min: 1, Max: 200, Step: 1},
	{Name: OptFill, Label: "Fill?", Min: 0, Max: 1, Step: 1, Bool: true},
	{Name: OptStrokeWidth, Label: "Line width", Min: 1, Max: 20, Step: 1},
	{Name: OptPointCount, Label: "Points", Min: 2, Max: 300, Step: 1},
	{Name: OptMaxDistortion, Label: "Distortion", Min: 0, Max: 1, Step: 0.01},
	{Name: OptPointyDistortion, Label: "Pointy distortion?", Min: 0, Max: 1, Step: 1, Bool: true},
	{Name: OptPulseTime, Label: "Pulse time", Min: 0, Max: 1, Step: 0.01},
	{Name: OptCircleDecayRate, Label: "Circle decay rate", Min: 0, Max: 5, Step: 0.1},
	{Name: OptAudioDecayRate, Label: "Audio decay rate", Min: 0, Max: 10, Step: 0.1},
	{Name: OptMinAudioLevel, Label: "Audio min pickup", Min: 0, Max: 1, Step: 0.01},
	{Name: OptMaxAudioLevel, Label: "Audio max pickup", Min: 0, Max: 1, Step: 0.01},
}

var optionByName = func() map[string]Option {
	m := make(map[string]Option, len(options))
	for _, o := range options {
		m[o.Name] = o
	}
	return m
}()

// Options returns the adjustable parameters in display order.
func Options() []Option {
	out := make([]Option, len(options))
	copy(out, options)
	return out
}

// LookupOption returns the option with the given name.
func LookupOption(name string) (Option, bool) {
	o, ok := optionByName[name]
	return o, ok
}

// Value returns the named parameter as a float (booleans are 0 or 1).
func (p Parameters) Value(name string) (float64, error) {
	switch name {
	case OptBaseRadius:
		return p.BaseRadius, nil
	case OptFill:
		return boolFloat(p.Fill), nil
	case OptStrokeWidth:
		return p.StrokeWidth, nil
	case OptPointCount:
		return float64(p.PointCount), nil
	case OptMaxDistortion:
		return p.MaxDistortion, nil
	case OptPointyDistortion:
		return boolFloat(p.PointyDistortion), nil
	case OptPulseTime:
		return p.PulseTime, nil
	case OptCircleDecayRate:
		return p.CircleDecayRate, nil
	case OptAudioDecayRate:
		return p.AudioDecayRate, nil
	case OptMinAudioLevel:
		return p.MinAudioLevel, nil
	case OptMaxAudioLevel:
		return p.MaxAudioLevel, nil
	}
	return 0, fmt.Errorf("unknown parameter %q", name)
}

// SetValue assigns the named parameter. The result is not sanitized.
func (p *Parameters) SetValue(name string, v float64) error {
	switch name {
	case OptBaseRadius:
		p.BaseRadius = v
	case OptFill:
		p.Fill = v >= 0.5
	case OptStrokeWidth:
		p.StrokeWidth = v
	case OptPointCount:
		p.PointCount = int(math.Round(v))
	case OptMaxDistortion:
		p.MaxDistortion = v
	case OptPointyDistortion:
		p.PointyDistortion = v >= 0.5
	case OptPulseTime:
		p.PulseTime = v
	case OptCircleDecayRate:
		p.CircleDecayRate = v
	case OptAudioDecayRate:
		p.AudioDecayRate = v
	case OptMinAudioLevel:
		p.MinAudioLevel = v
	case OptMaxAudioLevel:
		p.MaxAudioLevel = v
	default:
		return fmt.Errorf("unknown parameter %q", name)
	}
	return nil
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
