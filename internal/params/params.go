package params

import (
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"
)

// Parameters is the mutable configuration read by the engine and the curve
// renderer on every tick.
type Parameters struct {
	BaseRadius       float64 `json:"baseRadius"`
	MaxDistortion    float64 `json:"maxDistortion"`
	PointCount       int     `json:"pointCount"`
	AudioDecayRate   float64 `json:"audioDecayRate"`
	CircleDecayRate  float64 `json:"circleDecayRate"`
	PulseTime        float64 `json:"pulseTime"`
	PointyDistortion bool    `json:"pointyDistortion"`
	Fill             bool    `json:"fill"`
	MinAudioLevel    float64 `json:"minAudioLevel"`
	MaxAudioLevel    float64 `json:"maxAudioLevel"`
	StrokeWidth      float64 `json:"strokeWidth"`
	Color            string  `json:"color"`
}

// Source supplies the current parameter set.
type Source interface {
	Params() Parameters
}

// DefaultColor is the stroke/fill colour used when none is configured.
const DefaultColor = "#1DB954"

const levelEpsilon = 1e-9

// Defaults returns the values the visualizer starts with.
func Defaults() Parameters {
	return Parameters{
		BaseRadius:      150,
		MaxDistortion:   0.3,
		PointCount:      150,
		AudioDecayRate:  3,
		CircleDecayRate: 0.3,
		PulseTime:       0.1,
		MinAudioLevel:   0,
		MaxAudioLevel:   0.5,
		StrokeWidth:     4,
		Color:           DefaultColor,
	}
}

// Params lets a plain Parameters value act as a Source.
func (p Parameters) Params() Parameters {
	return p
}

// Sanitize clamps every field into its published range. Non-finite values
// fall back to the default and the audio levels are kept at least one step
// apart.
func (p Parameters) Sanitize() Parameters {
	def := Defaults()

	p.BaseRadius = clampRange(finiteOr(p.BaseRadius, def.BaseRadius), OptBaseRadius)
	p.MaxDistortion = clampRange(finiteOr(p.MaxDistortion, def.MaxDistortion), OptMaxDistortion)
	p.PointCount = int(clampRange(float64(p.PointCount), OptPointCount))
	p.AudioDecayRate = clampRange(finiteOr(p.AudioDecayRate, def.AudioDecayRate), OptAudioDecayRate)
	p.CircleDecayRate = clampRange(finiteOr(p.CircleDecayRate, def.CircleDecayRate), OptCircleDecayRate)
	p.PulseTime = clampRange(finiteOr(p.PulseTime, def.PulseTime), OptPulseTime)
	p.StrokeWidth = clampRange(finiteOr(p.StrokeWidth, def.StrokeWidth), OptStrokeWidth)

	minOpt := optionByName[OptMinAudioLevel]
	maxOpt := optionByName[OptMaxAudioLevel]
	p.MinAudioLevel = clamp(finiteOr(p.MinAudioLevel, def.MinAudioLevel), minOpt.Min, minOpt.Max-minOpt.Step)
	p.MaxAudioLevel = clamp(finiteOr(p.MaxAudioLevel, def.MaxAudioLevel), maxOpt.Min+maxOpt.Step, maxOpt.Max)
	if p.MaxAudioLevel-p.MinAudioLevel < minOpt.Step-levelEpsilon {
		p.MaxAudioLevel = math.Min(maxOpt.Max, p.MinAudioLevel+minOpt.Step)
		p.MinAudioLevel = p.MaxAudioLevel - minOpt.Step
	}

	if _, err := ParseColor(p.Color); err != nil {
		p.Color = def.Color
	}
	return p
}

// RGBA returns the parsed colour, or the default colour if it does not parse.
func (p Parameters) RGBA() color.RGBA {
	c, err := ParseColor(p.Color)
	if err != nil {
		c, _ = ParseColor(DefaultColor)
	}
	return c
}

// ParseColor parses "#rgb" and "#rrggbb" colours.
func ParseColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid colour %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

func clampRange(v float64, name string) float64 {
	opt := optionByName[name]
	return clamp(v, opt.Min, opt.Max)
}

func finiteOr(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}

func clamp(v, minVal, maxVal float64) float64 {
	if v < minVal {
		return minVal
	}
	if v > maxVal {
		return maxVal
	}
	return v
}
