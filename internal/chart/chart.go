package chart

import (
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/loykin/kudoman/internal/store"
)

// Renderer draws the kudos series (and the enabled derived series) to a PNG.
// It only reads rows produced by the store; render failures are reported to
// the caller, which treats them as non-fatal.
type Renderer struct {
	Path     string
	ShowMA   bool
	ShowD1   bool
	ShowMAD1 bool
}

var (
	colorKudos = color.RGBA{B: 0xff, A: 0xff}
	colorMA    = color.RGBA{R: 0xff, A: 0xff}
	colorD1    = color.RGBA{G: 0x80, A: 0xff}
	colorMAD1  = color.RGBA{R: 0xcc, G: 0xaa, A: 0xff}
)

// Render writes the chart for rows. An empty series produces no file.
func (r *Renderer) Render(rows []store.Row) error {
	if len(rows) == 0 {
		return nil
	}
	p := plot.New()
	p.Title.Text = "Kudos plot"
	p.X.Label.Text = "Time (seconds since first sample)"
	p.Y.Label.Text = "Kudos"
	p.Add(plotter.NewGrid())

	// Time axis relative to the first sample, like the source data's
	// timestamps are relative to the epoch.
	t0 := rows[0].Time

	if err := addLine(p, "Kudos", colorKudos, false, series(rows, t0, func(row store.Row) (float64, bool) {
		return float64(row.Kudos), true
	})); err != nil {
		return err
	}
	if r.ShowMA {
		if err := addLine(p, "Kudos (Moving Average)", colorMA, false, series(rows, t0, func(row store.Row) (float64, bool) {
			return row.MA, true
		})); err != nil {
			return err
		}
	}
	if r.ShowD1 {
		if err := addLine(p, "Kudos 1st difference", colorD1, true, series(rows, t0, func(row store.Row) (float64, bool) {
			return row.D1, row.HasDiff
		})); err != nil {
			return err
		}
	}
	if r.ShowMAD1 {
		if err := addLine(p, "Kudos 1st difference (M.A.)", colorMAD1, true, series(rows, t0, func(row store.Row) (float64, bool) {
			return row.MAD1, row.HasDiff
		})); err != nil {
			return err
		}
	}

	return p.Save(10*vg.Inch, 10*vg.Inch*9/16, r.Path)
}

func series(rows []store.Row, t0 float64, val func(store.Row) (float64, bool)) plotter.XYs {
	xys := make(plotter.XYs, 0, len(rows))
	for _, row := range rows {
		v, ok := val(row)
		if !ok {
			continue
		}
		xys = append(xys, plotter.XY{X: row.Time - t0, Y: v})
	}
	return xys
}

func addLine(p *plot.Plot, name string, c color.Color, dashed bool, xys plotter.XYs) error {
	if len(xys) == 0 {
		return nil
	}
	line, err := plotter.NewLine(xys)
	if err != nil {
		return err
	}
	line.Color = c
	if dashed {
		line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	}
	p.Add(line)
	p.Legend.Add(name, line)
	return nil
}
