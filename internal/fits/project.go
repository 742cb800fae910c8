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


package fits

import (
	"math"

	"github.com/mlnoga/aoreduce/internal/geom"
)

// Projects an image into a new coordinate system with the given transformation.
// Fills in missing pixels with the given out of bounds value. Uses bilinear interpolation.
// Integral translations reproduce source pixels exactly
func (img *Image) Project(destNaxisn []int32, trans geom.Transform2D, outOfBounds float32) (res *Image, err error) {
	// Invert transformation so we can sample from the target coordinate system PoV
	invTrans, err := trans.Invert()
	if err != nil {
		return nil, err
	}

	// Create new FITS image for the result
	destWidth := destNaxisn[0]
	res = NewImageFromNaxisn(destNaxisn, nil)
	res.ID, res.FileName, res.Exposure = img.ID, img.FileName, img.Exposure
	res.Header = img.Header.Clone()

	// Resample image from the target coordinate system PoV
	d := img.Data
	origWidth, origHeight := img.Naxisn[0], img.Height()

	for row := int32(0); row < destNaxisn[1]; row++ {
		for col := int32(0); col < destWidth; col++ {
			proj := invTrans.Apply(geom.Point2D{X: float32(col), Y: float32(row)})
			res.Data[col+row*destWidth] = sampleBilinear(d, origWidth, origHeight, proj.X, proj.Y, outOfBounds)
		}
	}
	res.Touch()
	return res, nil
}

// Samples the data at the given fractional position with bilinear interpolation.
// Terms with zero weight are skipped, so NaN neighbors do not spread into exact samples
func sampleBilinear(d []float32, width, height int32, x, y float32, outOfBounds float32) float32 {
	xlf, ylf := math.Floor(float64(x)), math.Floor(float64(y))
	xl, yl := int32(xlf), int32(ylf)
	xr, yr := x-float32(xlf), y-float32(ylf)
	xh, yh := xl, yl
	if xr > 0 {
		xh++
	}
	if yr > 0 {
		yh++
	}
	if xl < 0 || xh >= width || yl < 0 || yh >= height {
		// Replace out of bounds values. Stacking excludes NaNs
		return outOfBounds
	}

	v := float32(0)
	if w := (1 - xr) * (1 - yr); w > 0 {
		v += w * d[xl+yl*width]
	}
	if w := xr * (1 - yr); w > 0 {
		v += w * d[xh+yl*width]
	}
	if w := (1 - xr) * yr; w > 0 {
		v += w * d[xl+yh*width]
	}
	if w := xr * yr; w > 0 {
		v += w * d[xh+yh*width]
	}
	return v
}

// Returns a copy of the image moved by the given number of rows and columns,
// which may be fractional. Uncovered pixels are set to the out of bounds value
func (img *Image) Shift(dRow, dCol float32, outOfBounds float32) (*Image, error) {
	return img.Project(img.Naxisn[:2], geom.NewTranslation2D(dRow, dCol), outOfBounds)
}

// Samples the image at a fractional position, returning NaN outside
func (img *Image) Sample(row, col float32) float32 {
	return sampleBilinear(img.Data, img.Naxisn[0], img.Height(), col, row, float32(math.NaN()))
}
