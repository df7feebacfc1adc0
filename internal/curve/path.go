// Package curve turns the sound circle radii into a closed cubic Bézier path
// and rasterizes it.
package curve

import (
	"image/color"
	"math"

	"github.com/guidoenr/soundcircle/internal/params"
)

// Point is a position in canvas units.
type Point struct {
	X, Y float64
}

// Op is a drawing command kind.
type Op int

const (
	MoveTo Op = iota
	CubicTo
	Close
	Fill
	Stroke
)

func (o Op) String() string {
	switch o {
	case MoveTo:
		return "moveTo"
	case CubicTo:
		return "cubicTo"
	case Close:
		return "close"
	case Fill:
		return "fill"
	case Stroke:
		return "stroke"
	default:
		return "unknown"
	}
}

// Command is one drawing command. MoveTo uses Pts[0]; CubicTo uses the two
// control points Pts[0], Pts[1] and the end point Pts[2].
type Command struct {
	Op  Op
	Pts [3]Point
}

// Style describes how a path is painted.
type Style struct {
	Fill        bool
	StrokeWidth float64
	Color       color.RGBA
}

// Path is the command list for one frame.
type Path struct {
	Commands []Command
	Style    Style
}

// Empty reports whether the path draws nothing.
func (p Path) Empty() bool {
	return len(p.Commands) == 0
}

// ControlOffset is the tangent length that makes a cubic Bézier approximate a
// circular arc of radius over one of n equal segments.
func ControlOffset(radius float64, n int) float64 {
	return radius * 4 / 3 * math.Tan(math.Pi/2/float64(n))
}

// Build produces the closed curve through radii around center. Point i sits
// at angle 2πi/N. It depends on nothing but its arguments.
func Build(radii []float64, p params.Parameters, center Point) Path {
	n := len(radii)
	if n < 2 || !(p.BaseRadius > 0) {
		return Path{}
	}

	d := ControlOffset(p.BaseRadius, n)
	ad := math.Atan(d / p.BaseRadius)
	d2 := d * d

	cmds := make([]Command, 0, n+3)
	cmds = append(cmds, Command{Op: MoveTo, Pts: [3]Point{polar(center, radii[0], 0)}})

	for i := 0; i < n; i++ {
		j := (i + 1) % n
		source := 2 * math.Pi * float64(i) / float64(n)
		target := 2 * math.Pi * float64(i+1) / float64(n)

		cp1 := polar(center, math.Sqrt(d2+radii[i]*radii[i]), source+ad)
		cp2 := polar(center, math.Sqrt(d2+radii[j]*radii[j]), target-ad)
		end := polar(center, radii[j], target)

		if p.PointyDistortion {
			cp1, cp2 = cp2, cp1
		}
		cmds = append(cmds, Command{Op: CubicTo, Pts: [3]Point{cp1, cp2, end}})
	}

	cmds = append(cmds, Command{Op: Close})
	if p.Fill {
		cmds = append(cmds, Command{Op: Fill})
	} else {
		cmds = append(cmds, Command{Op: Stroke})
	}

	return Path{
		Commands: cmds,
		Style: Style{
			Fill:        p.Fill,
			StrokeWidth: p.StrokeWidth,
			Color:       p.RGBA(),
		},
	}
}

func polar(c Point, r, angle float64) Point {
	s, co := math.Sincos(angle)
	return Point{X: c.X + r*co, Y: c.Y + r*s}
}
