// Package report renders diagnostic plots of a cascade: the power spectrum
// with its fitted slopes, the per-level model, and the history of level
// statistics across cycles.
package report

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/scalesep/internal/cascade"
	"github.com/banshee-data/scalesep/internal/cascade/spectral"
)

// ErrNoData is returned when there is nothing to plot.
var ErrNoData = errors.New("report: nothing to plot")

// PlotSpectrum saves the radially averaged power spectrum as a PNG, with
// the two fitted power-law segments drawn over it.
func PlotSpectrum(path string, s spectral.Spectrum) error {
	pts := make(plotter.XYs, 0, len(s.PowerDB))
	for wn := 1; wn < len(s.PowerDB) && wn < len(s.FreqDB); wn++ {
		if isFinite(s.PowerDB[wn]) && isFinite(s.FreqDB[wn]) {
			pts = append(pts, plotter.XY{X: s.FreqDB[wn], Y: s.PowerDB[wn]})
		}
	}
	if len(pts) == 0 {
		return ErrNoData
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Power spectrum (β1 %.2f, β2 %.2f)", s.BetaOne, s.BetaTwo)
	p.X.Label.Text = "Frequency (dB km⁻¹)"
	p.Y.Label.Text = "Power (dB)"

	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add("power", line)

	segments := []struct {
		name     string
		from, to int
		beta     float64
		colour   color.Color
	}{
		{"β1 fit", s.LZero, s.ScaleBreak, s.BetaOne, color.RGBA{R: 200, A: 255}},
		{"β2 fit", s.ScaleBreak, s.BetaTwoEnd, s.BetaTwo, color.RGBA{B: 200, A: 255}},
	}
	for _, seg := range segments {
		fit := fitSegment(s, seg.from, seg.to, seg.beta)
		if len(fit) < 2 {
			continue
		}
		l, err := plotter.NewLine(fit)
		if err != nil {
			return err
		}
		l.Color = seg.colour
		l.Width = vg.Points(1.5)
		l.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(l)
		p.Legend.Add(seg.name, l)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(10*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save spectrum plot: %w", err)
	}
	return nil
}

// fitSegment returns the endpoints of the line with slope -beta through the
// centroid of the populated wavenumbers in [from, to].
func fitSegment(s spectral.Spectrum, from, to int, beta float64) plotter.XYs {
	var x, y []float64
	for wn := max(from, 1); wn <= to && wn < len(s.PowerDB); wn++ {
		if isFinite(s.PowerDB[wn]) {
			x = append(x, s.FreqDB[wn])
			y = append(y, s.PowerDB[wn])
		}
	}
	if len(x) < 2 {
		return nil
	}
	intercept := stat.Mean(y, nil) + beta*stat.Mean(x, nil)
	first, last := x[0], x[len(x)-1]
	return plotter.XYs{
		{X: first, Y: intercept - beta*first},
		{X: last, Y: intercept - beta*last},
	}
}

// PlotLevelStats saves a two-panel PNG: the per-level standard deviation
// and the lag-1 autocorrelation, both against the level's nominal scale.
func PlotLevelStats(path string, cascadeSize int, pixelSize float64, p cascade.Parameters) error {
	if p.Levels == 0 || len(p.Stds) < p.Levels {
		return ErrNoData
	}

	stds := make(plotter.XYs, 0, p.Levels)
	corr := make(plotter.XYs, 0, p.Levels)
	for l := 0; l < p.Levels; l++ {
		scale := spectral.NominalScale(cascadeSize, p.ScaleRatio, l) * pixelSize
		x := math.Log10(scale)
		stds = append(stds, plotter.XY{X: x, Y: float64(p.Stds[l])})
		if l < len(p.Correlations) && isFinite(float64(p.Correlations[l])) {
			corr = append(corr, plotter.XY{X: x, Y: float64(p.Correlations[l])})
		}
	}

	pStd := plot.New()
	pStd.Title.Text = "Level standard deviation"
	pStd.X.Label.Text = "log10(scale km)"
	pStd.Y.Label.Text = "Std (dBR)"
	if err := addPoints(pStd, stds); err != nil {
		return err
	}

	pCorr := plot.New()
	pCorr.Title.Text = "Lag-1 autocorrelation"
	pCorr.X.Label.Text = "log10(scale km)"
	pCorr.Y.Label.Text = "ρ1"
	pCorr.Y.Min, pCorr.Y.Max = 0, 1
	if len(corr) > 0 {
		if err := addPoints(pCorr, corr); err != nil {
			return err
		}
	}

	const w, h = 10 * vg.Inch, 8 * vg.Inch
	img, err := draw.NewFormattedCanvas(w, h, "png")
	if err != nil {
		return err
	}
	tiles := draw.Tiles{Rows: 2, Cols: 1, PadX: vg.Millimeter, PadY: 2 * vg.Millimeter, PadTop: vg.Millimeter, PadBottom: vg.Millimeter}
	canvases := plot.Align([][]*plot.Plot{{pStd}, {pCorr}}, tiles, draw.New(img))
	pStd.Draw(canvases[0][0])
	pCorr.Draw(canvases[1][0])

	var buf bytes.Buffer
	if _, err := img.WriteTo(&buf); err != nil {
		return fmt.Errorf("render level plot: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func addPoints(p *plot.Plot, pts plotter.XYs) error {
	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return err
	}
	line.Width = vg.Points(1)
	points.Shape = draw.CircleGlyph{}
	p.Add(line, points, plotter.NewGrid())
	return nil
}

// LevelSample is the per-level state after one cycle.
type LevelSample struct {
	Time         time.Time
	Stds         []float32
	Correlations []float32 // lag 1
	RainFrac     float32
}

// SampleFrom captures the current state of e.
func SampleFrom(e *cascade.Engine, t time.Time) LevelSample {
	p := e.Parameters()
	lag1 := p.Correlations
	if len(lag1) > p.Levels {
		lag1 = lag1[:p.Levels]
	}
	return LevelSample{
		Time:         t,
		Stds:         p.Stds,
		Correlations: append([]float32(nil), lag1...),
		RainFrac:     e.Stats().RainFrac,
	}
}

// WriteLevelChart renders an HTML page with one line per level for the
// level standard deviations and lag-1 correlations across history.
func WriteLevelChart(w io.Writer, history []LevelSample) error {
	if len(history) == 0 {
		return ErrNoData
	}
	levels := len(history[0].Stds)

	x := make([]string, len(history))
	for i, s := range history {
		x[i] = s.Time.UTC().Format("15:04")
	}

	stdChart := levelLine("Level standard deviation", "dBR", x)
	corrChart := levelLine("Lag-1 autocorrelation", "ρ1", x)
	for l := 0; l < levels; l++ {
		name := "level " + strconv.Itoa(l)
		stdChart.AddSeries(name, seriesOf(history, l, func(s LevelSample) []float32 { return s.Stds }))
		corrChart.AddSeries(name, seriesOf(history, l, func(s LevelSample) []float32 { return s.Correlations }))
	}

	frac := levelLine("Rain fraction", "fraction", x)
	data := make([]opts.LineData, len(history))
	for i, s := range history {
		data[i] = opts.LineData{Value: s.RainFrac}
	}
	frac.AddSeries("rain fraction", data)

	page := components.NewPage()
	page.SetPageTitle("Cascade levels")
	page.AddCharts(stdChart, corrChart, frac)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return fmt.Errorf("render level chart: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func levelLine(title, yName string, x []string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "100%", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithYAxisOpts(opts.YAxis{Name: yName}),
	)
	line.SetXAxis(x)
	return line
}

func seriesOf(history []LevelSample, l int, values func(LevelSample) []float32) []opts.LineData {
	data := make([]opts.LineData, len(history))
	for i, s := range history {
		v := values(s)
		if l >= len(v) || !isFinite(float64(v[l])) {
			data[i] = opts.LineData{Value: "-"}
			continue
		}
		data[i] = opts.LineData{Value: v[l]}
	}
	return data
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
