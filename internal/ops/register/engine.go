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


// Package register aligns frames of a single point source with sub-pixel accuracy.
package register

import (
	"fmt"
	"io"
	"io/ioutil"

	"github.com/mlnoga/aoreduce/internal/fits"
	"github.com/mlnoga/aoreduce/internal/median"
	"github.com/mlnoga/aoreduce/internal/stats"
)

// Displacement in pixels which aligns a frame with the reference when applied to it
type Shift struct {
	Row float64
	Col float64
}

func (s Shift) String() string {
	return fmt.Sprintf("(%+.3f, %+.3f)", s.Row, s.Col)
}

// Outcome of registering one frame against the reference
type Result struct {
	Shift     Shift
	Ambiguous bool        // optimum on the boundary of the search range, shift is best effort
	Score     float64     // correlation for the default method, symmetry residual for the saturated method
	Residuals *fits.Image // residual map over the search range, centered on the starting point
}

// Registration engine
type Engine struct {
	Log         io.Writer
	HalfWidth   int     // search range in pixels in each direction
	Window      int     // half-width of the comparison window around the star
	SatFraction float32 // pixels at or above this fraction of the maximum count as saturated
}

// Creates an engine with the given search half-width and default window and saturation level
func NewEngine(log io.Writer, halfWidth int) *Engine {
	if log == nil {
		log = ioutil.Discard
	}
	return &Engine{Log: log, HalfWidth: halfWidth, Window: 20, SatFraction: 0.9}
}

// Returns the position of the brightest pixel after 3x3 median filtering,
// which suppresses hot pixels. NaNs count as background
func (e *Engine) Peak(img *fits.Image) (row, col int) {
	width, height := img.Width(), img.Height()
	bg := stats.Median(img.Data)
	if bg != bg {
		bg = 0
	}
	index, _ := median.FilteredPeak(img.Data, width, bg, 1, 1, width-1, height-1)
	if index < 0 {
		return int(height / 2), int(width / 2)
	}
	return int(index / width), int(index % width)
}

// Returns the integer shift which moves the peak of the image to the frame center
func (e *Engine) Center(img *fits.Image) Shift {
	row, col := e.Peak(img)
	return Shift{
		Row: float64(int(img.Height())/2 - row),
		Col: float64(int(img.Width())/2 - col),
	}
}

// Returns a square image holding the given map of (2*halfWidth+1)^2 values
func residualImage(values []float32, halfWidth int) *fits.Image {
	size := int32(2*halfWidth + 1)
	return fits.NewImageFromNaxisn([]int32{size, size}, values)
}

// Returns the pixel value at integer coordinates, or NaN outside the image
func at(img *fits.Image, row, col int) float32 {
	if row < 0 || col < 0 || row >= int(img.Height()) || col >= int(img.Width()) {
		return nan32
	}
	return img.Data[row*int(img.Width())+col]
}
