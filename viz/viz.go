// Package viz renders result plots with gonum/plot.
package viz

import (
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/YuminosukeSato/neurocpm/linear"
	"github.com/YuminosukeSato/neurocpm/pkg/errors"
)

const (
	width  = 4 * vg.Inch
	height = 4 * vg.Inch
)

var (
	pointColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	lineColor  = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// PredictionScatter draws predicted against observed values with the
// least-squares line and writes it to w in format ("png", "svg", "pdf", ...).
// The title carries the correlation r and its p-value.
func PredictionScatter(w io.Writer, format string, predictions, response []float64, r, p float64) error {
	if len(predictions) != len(response) {
		return errors.NewDimensionError("viz.PredictionScatter", len(response), len(predictions), 0)
	}
	if len(predictions) == 0 {
		return errors.NewValueError("viz.PredictionScatter", "nothing to plot")
	}

	pl := plot.New()
	pl.Title.Text = fmt.Sprintf("r = %.3f, p = %.3g", r, p)
	pl.X.Label.Text = "observed"
	pl.Y.Label.Text = "predicted"

	pts := make(plotter.XYs, len(predictions))
	for i := range pts {
		pts[i].X = response[i]
		pts[i].Y = predictions[i]
	}
	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return errors.Wrap(err, "scatter")
	}
	sc.GlyphStyle.Color = pointColor
	sc.GlyphStyle.Radius = vg.Points(3)
	pl.Add(sc, plotter.NewGrid())

	lr := linear.NewLinearRegression()
	if err := lr.FitVector(response, predictions); err == nil {
		line := plotter.NewFunction(func(x float64) float64 {
			y, _ := lr.PredictScalar(x)
			return y
		})
		line.Color = lineColor
		pl.Add(line)
	}

	return write(pl, w, format, width, height)
}

// SavePredictionScatter is PredictionScatter writing to path; the format is
// taken from the file extension.
func SavePredictionScatter(path string, predictions, response []float64, r, p float64) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()
	if err := PredictionScatter(f, formatOf(path), predictions, response, r, p); err != nil {
		return err
	}
	return errors.WithStack(f.Close())
}

// FitDiagnostics draws the fitted coupling histogram, the loss histogram and
// coupling against loss side by side as PNG.
func FitDiagnostics(w io.Writer, fittedG, losses []float64) error {
	if len(fittedG) != len(losses) {
		return errors.NewDimensionError("viz.FitDiagnostics", len(fittedG), len(losses), 0)
	}
	if len(fittedG) == 0 {
		return errors.NewValueError("viz.FitDiagnostics", "nothing to plot")
	}

	gHist, err := histogram(fittedG, "G")
	if err != nil {
		return err
	}
	lossHist, err := histogram(losses, "loss")
	if err != nil {
		return err
	}

	scatter := plot.New()
	scatter.X.Label.Text = "G"
	scatter.Y.Label.Text = "loss"
	pts := make(plotter.XYs, len(fittedG))
	for i := range pts {
		pts[i].X, pts[i].Y = fittedG[i], losses[i]
	}
	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return errors.Wrap(err, "scatter")
	}
	sc.GlyphStyle.Color = pointColor
	scatter.Add(sc)

	img := vgimg.New(3*width, height)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows: 1,
		Cols: 3,
		PadX: vg.Millimeter,
		PadY: vg.Millimeter,
	}
	plots := [][]*plot.Plot{{gHist, lossHist, scatter}}
	canvases := plot.Align(plots, tiles, dc)
	for j, pl := range plots[0] {
		pl.Draw(canvases[0][j])
	}

	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(w); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

func histogram(v []float64, label string) (*plot.Plot, error) {
	pl := plot.New()
	mean, std := stat.PopMeanStdDev(v, nil)
	pl.Title.Text = fmt.Sprintf("mean = %.3g, std = %.3g", mean, std)
	pl.X.Label.Text = label
	pl.Y.Label.Text = "count"

	bins := 10
	if len(v) < bins {
		bins = len(v)
	}
	h, err := plotter.NewHist(plotter.Values(v), bins)
	if err != nil {
		return nil, errors.Wrapf(err, "%s histogram", label)
	}
	h.FillColor = pointColor
	pl.Add(h)
	return pl, nil
}

func write(pl *plot.Plot, w io.Writer, format string, wd, ht vg.Length) error {
	wt, err := pl.WriterTo(wd, ht, format)
	if err != nil {
		return errors.Wrapf(err, "format %q", format)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

func formatOf(path string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return "png"
	}
	return ext
}
