package main

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/Noofbiz/sleepEvents/anchors"
	"github.com/Noofbiz/sleepEvents/datamodule"
	"github.com/Noofbiz/sleepEvents/datasets"
)

func newPlotCmd(opts *rootOptions) *cobra.Command {
	var (
		subset string
		index  int
		out    string
	)
	cmd := &cobra.Command{
		Use:   "plot",
		Short: "Plot one dataset item with its events and positive anchors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dm, err := datamodule.New(opts.cfg)
			if err != nil {
				return err
			}
			defer dm.Close()
			ds, err := dm.Dataset(cmd.Context(), subset)
			if err != nil {
				return err
			}
			it, err := ds.Item(index)
			if err != nil {
				return err
			}
			if err := plotItem(out, it, ds.Anchors(), opts.cfg.Fs, dm.WindowSize()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s window %d, %d events)\n", out, it.RecordID, it.Window, len(it.Events))
			return nil
		},
	}
	cmd.Flags().StringVar(&subset, "subset", "train", "partition to take the item from")
	cmd.Flags().IntVarP(&index, "index", "i", 0, "item index")
	cmd.Flags().StringVarP(&out, "out", "o", "output/item.png", "output PNG path")
	return cmd
}

// plotItem writes a PNG of an item: the first channel (grey) when the item
// holds raw samples, events (red) above it and positive anchors (blue) below
// it, one row per anchor.
func plotItem(path string, it datasets.Item, anchorSet []anchors.Anchor, fs float64, windowSize int) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s window %d at %.1fs", it.RecordID, it.Window, float64(it.Start)/fs)
	p.X.Label.Text = "time in window (s)"
	p.Y.Label.Text = "amplitude"

	var signal plotter.XYs
	if len(it.Shape) == 2 {
		n := it.Shape[1]
		signal = make(plotter.XYs, n)
		for i := range signal {
			signal[i].X = float64(i) / fs
			signal[i].Y = float64(it.Input[i])
		}
		line, err := plotter.NewLine(signal)
		if err != nil {
			return err
		}
		line.Color = color.RGBA{R: 120, G: 120, B: 120, A: 200}
		line.Width = vg.Points(0.6)
		p.Add(line)
		p.Legend.Add("signal", line)
	}
	_, _, ymin, ymax := autoRange(signal)
	step := (ymax - ymin) * 0.04

	for k, e := range it.Events {
		seg, err := segment(e.Start/fs, e.End()/fs, ymax+step, color.RGBA{R: 200, G: 30, B: 30, A: 230}, 3)
		if err != nil {
			return err
		}
		p.Add(seg)
		if k == 0 {
			p.Legend.Add("events", seg)
		}
	}
	row := 0
	for a, c := range it.Classes {
		if c <= 0 {
			continue
		}
		an := anchorSet[a]
		seg, err := segment(an.Start()/fs, an.End()/fs, ymin-float64(row+1)*step, color.RGBA{R: 20, G: 80, B: 200, A: 220}, 2)
		if err != nil {
			return err
		}
		p.Add(seg)
		if row == 0 {
			p.Legend.Add("positive anchors", seg)
		}
		row++
	}

	p.Add(plotter.NewGrid())
	p.X.Min = 0
	p.X.Max = float64(windowSize) / fs
	p.Y.Min = ymin - float64(row+2)*step
	p.Y.Max = ymax + 3*step

	if err := ensureDir(filepath.Dir(path)); err != nil {
		return err
	}
	return p.Save(10*vg.Inch, 4*vg.Inch, path)
}

func segment(x0, x1, y float64, c color.Color, width float64) (*plotter.Line, error) {
	line, err := plotter.NewLine(plotter.XYs{{X: x0, Y: y}, {X: x1, Y: y}})
	if err != nil {
		return nil, err
	}
	line.Color = c
	line.Width = vg.Points(width)
	return line, nil
}

// autoRange computes padded min/max for X and Y for a set of points.
func autoRange(xs plotter.XYs) (xmin, xmax, ymin, ymax float64) {
	if len(xs) == 0 {
		return -1, 1, -1, 1
	}
	xmin, xmax = math.Inf(1), math.Inf(-1)
	ymin, ymax = math.Inf(1), math.Inf(-1)
	for _, p := range xs {
		xmin, xmax = math.Min(xmin, p.X), math.Max(xmax, p.X)
		ymin, ymax = math.Min(ymin, p.Y), math.Max(ymax, p.Y)
	}
	padx := (xmax - xmin) * 0.06
	pady := (ymax - ymin) * 0.06
	if padx == 0 {
		padx = 1.0
	}
	if pady == 0 {
		pady = 1.0
	}
	return xmin - padx, xmax + padx, ymin - pady, ymax + pady
}

func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	return os.MkdirAll(path, 0755)
}
