package trace

import (
	"io"

	"github.com/fogleman/gg"
)

// Style controls the rendered image
type Style struct {
	Step   float64 // pixels per tick
	Row    float64 // pixels per signal
	Margin float64 // width of the label column
}

// DefaultStyle fits a few hundred ticks on a screen
var DefaultStyle = Style{Step: 12, Row: 28, Margin: 140}

// Render draws one row per signal. Every signal starts low.
func Render(samples []Sample, style Style) *gg.Context {
	signals := Signals(samples)
	var first, last uint64
	for i, s := range samples {
		if i == 0 || s.Tick-1 < first {
			first = s.Tick - 1
		}
		last = max(last, s.Tick+1)
	}
	width := int(style.Margin + float64(last-first)*style.Step + 10)
	height := int(float64(len(signals))*style.Row + 10)

	dc := gg.NewContext(width, max(height, int(style.Row)))
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	x := func(tick uint64) float64 { return style.Margin + float64(tick-first)*style.Step }
	for row, name := range signals {
		top := 5 + float64(row)*style.Row
		high, low := top+4, top+style.Row-8

		dc.SetRGB(0.85, 0.85, 0.85)
		dc.SetLineWidth(1)
		dc.DrawLine(0, top+style.Row-2, float64(width), top+style.Row-2)
		dc.Stroke()

		dc.SetRGB(0, 0, 0)
		dc.DrawStringAnchored(name, 4, top+style.Row/2, 0, 0.5)

		dc.SetHexColor("#1565c0")
		dc.SetLineWidth(2)
		level, at := false, first
		y := func(l bool) float64 {
			if l {
				return high
			}
			return low
		}
		for _, s := range samples {
			if s.Signal != name {
				continue
			}
			dc.DrawLine(x(at), y(level), x(s.Tick), y(level))
			dc.DrawLine(x(s.Tick), y(level), x(s.Tick), y(s.Level))
			level, at = s.Level, s.Tick
		}
		dc.DrawLine(x(at), y(level), x(last), y(level))
		dc.Stroke()
	}
	return dc
}

// WritePNG renders samples as a PNG image
func WritePNG(w io.Writer, samples []Sample, style Style) error {
	return Render(samples, style).EncodePNG(w)
}
