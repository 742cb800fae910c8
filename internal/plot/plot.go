// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.


package plot

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"io/ioutil"
	"math"
	"path/filepath"

	"github.com/fogleman/gg"
	"github.com/mlnoga/aoreduce/internal/fits"
	"github.com/mlnoga/aoreduce/internal/stats"
	"golang.org/x/image/draw"
)

// Maximum number of panels in one plot
const MaxPanels = 50

// Renders arrays of images into PNG files, as configured per plot type
type Plotter struct {
	Config Config
	Log    io.Writer
}

// Creates a plotter with the given settings. Log may be nil
func NewPlotter(config Config, log io.Writer) *Plotter {
	if log == nil {
		log = ioutil.Discard
	}
	return &Plotter{Config: config, Log: log}
}

// Checks if plots of the given type are enabled
func (p *Plotter) Enabled(plotType string) bool {
	tc, err := p.Config.For(plotType)
	return err == nil && tc.Plot
}

// Returns the number of panel rows and columns for n images: up to five in one row,
// otherwise four rows. Returns zeros if there are too many images
func GridSize(n int) (rows, cols int) {
	switch {
	case n <= 0 || n > MaxPanels:
		return 0, 0
	case n <= 5:
		return 1, n
	default:
		return 4, (n + 3) / 4
	}
}

// Returns a display range covering the 0.5 to 99.5 percentiles of all given images
func AutoRange(frames []*fits.Image) (vmin, vmax float32) {
	vmin, vmax = float32(math.MaxFloat32), float32(-math.MaxFloat32)
	for _, f := range frames {
		lo, hi := stats.PercentileRange(f.Data, 0.005, 0.995, 4096)
		if lo < vmin {
			vmin = lo
		}
		if hi > vmax {
			vmax = hi
		}
	}
	if !(vmax > vmin) {
		vmax = vmin + 1
	}
	return vmin, vmax
}

// Plots the given images side by side into directory/fileName, mapping vmin..vmax linearly
// before scaling onto the colormap. Each panel is rotated by 180 degrees and drawn with
// the origin at the bottom. Does nothing if the plot type is disabled, and logs a message
// if there are more than MaxPanels images
func (p *Plotter) PlotArray(plotType string, frames []*fits.Image, vmin, vmax float32, directory, fileName string) error {
	tc, err := p.Config.For(plotType)
	if err != nil {
		return err
	}
	if !tc.Plot {
		return nil
	}
	cm, ok := colormaps[tc.Colormap]
	if !ok {
		return fmt.Errorf("%s: unknown colormap '%s'", plotType, tc.Colormap)
	}
	sc, ok := scalings[tc.Scaling]
	if !ok {
		return fmt.Errorf("%s: unknown scaling '%s'", plotType, tc.Scaling)
	}
	if len(frames) > MaxPanels {
		fmt.Fprintf(p.Log, "Too many images to plot.\n")
		return nil
	}
	rows, cols := GridSize(len(frames))
	if rows == 0 {
		return nil
	}

	const margin, barWidth = 10, 110
	panel := p.Config.PanelSize
	width, height := cols*(panel+margin)+margin, rows*(panel+margin)+margin
	if tc.Colorbars {
		width += barWidth
	}
	dc := gg.NewContext(width, height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	for i, f := range frames {
		src := render(f, cm, sc, vmin, vmax)
		dst := fitRect(src.Bounds(), panel)
		x0, y0 := margin+(i%cols)*(panel+margin), margin+(i/cols)*(panel+margin)
		scaled := image.NewRGBA(image.Rect(0, 0, panel, panel))
		draw.NearestNeighbor.Scale(scaled, dst, src, src.Bounds(), draw.Over, nil)
		dc.DrawImage(scaled, x0, y0)
	}

	if tc.Colorbars {
		drawColorbar(dc, width-barWidth+margin, margin, height-2*margin, cm, sc, vmin, vmax,
			fmt.Sprintf("%s, %s scaling", label(plotType), tc.Scaling))
	}
	return dc.SavePNG(filepath.Join(directory, fileName))
}

func label(plotType string) string {
	if plotType == TypeRots {
		return "Residuals"
	}
	return "Counts"
}

// Converts one image into colors. Output pixel (x,y) shows input pixel (width-1-x, y),
// which is a rotation by 180 degrees viewed with the origin at the bottom
func render(f *fits.Image, cm colormap, sc scaling, vmin, vmax float32) *image.RGBA {
	width, height := int(f.Width()), int(f.Height())
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	scale := 1 / float64(vmax-vmin)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := f.Data[y*width+(width-1-x)]
			c := badColor
			if v == v {
				t := (float64(v) - float64(vmin)) * scale
				if t < 0 {
					t = 0
				} else if t > 1 {
					t = 1
				}
				c = cm.at(sc(t))
			}
			r, g, b := c.RGB255()
			img.SetRGBA(x, y, color.RGBA{r, g, b, 255})
		}
	}
	return img
}

// Returns the largest rectangle with the aspect ratio of r fitting centered into a square of the given size
func fitRect(r image.Rectangle, size int) image.Rectangle {
	w, h := r.Dx(), r.Dy()
	if w >= h {
		sh := size * h / w
		off := (size - sh) / 2
		return image.Rect(0, off, size, off+sh)
	}
	sw := size * w / h
	off := (size - sw) / 2
	return image.Rect(off, 0, off+sw, size)
}

func drawColorbar(dc *gg.Context, x, y, height int, cm colormap, sc scaling, vmin, vmax float32, text string) {
	const barW = 20
	for i := 0; i < height; i++ {
		t := 1 - float64(i)/float64(height-1)
		r, g, b := cm.at(sc(t)).RGB255()
		dc.SetColor(color.RGBA{r, g, b, 255})
		dc.DrawRectangle(float64(x), float64(y+i), barW, 1)
		dc.Fill()
	}
	dc.SetRGB(0, 0, 0)
	dc.SetLineWidth(1)
	dc.DrawRectangle(float64(x), float64(y), barW, float64(height))
	dc.Stroke()
	dc.DrawStringAnchored(fmt.Sprintf("%.3g", vmax), float64(x+barW+4), float64(y), 0, 1)
	dc.DrawStringAnchored(fmt.Sprintf("%.3g", vmin), float64(x+barW+4), float64(y+height), 0, 0)

	cx, cy := float64(x+barW+60), float64(y+height/2)
	dc.Push()
	dc.RotateAbout(gg.Radians(-90), cx, cy)
	dc.DrawStringAnchored(text, cx, cy, 0.5, 0.5)
	dc.Pop()
}
