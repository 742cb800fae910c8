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
	"fmt"
)

// Reverses the order of rows in place
func (f *Image) FlipVertical() {
	width, height := f.Naxisn[0], f.Height()
	for top, bottom := int32(0), height-1; top < bottom; top, bottom = top+1, bottom-1 {
		a := f.Data[top*width : (top+1)*width]
		b := f.Data[bottom*width : (bottom+1)*width]
		for i := range a {
			a[i], b[i] = b[i], a[i]
		}
	}
	f.Touch()
}

// Rotates the image by 180 degrees in place
func (f *Image) Rotate180() {
	d := f.Data[:f.Naxisn[0]*f.Height()]
	for l, r := 0, len(d)-1; l < r; l, r = l+1, r-1 {
		d[l], d[r] = d[r], d[l]
	}
	f.Touch()
}

// Crops the image in place to the rectangle with the given origin and size
func (f *Image) Crop(x0, y0, width, height int32) error {
	if x0 < 0 || y0 < 0 || width <= 0 || height <= 0 || x0+width > f.Naxisn[0] || y0+height > f.Height() {
		return fmt.Errorf("%d: crop %dx%d+%d+%d outside image of size %s",
			f.ID, width, height, x0, y0, f.DimensionsToString())
	}
	res := make([]float32, width*height)
	for row := int32(0); row < height; row++ {
		src := (y0+row)*f.Naxisn[0] + x0
		copy(res[row*width:(row+1)*width], f.Data[src:src+width])
	}
	f.Data, f.Naxisn, f.Pixels = res, []int32{width, height}, width*height
	f.Touch()
	return nil
}

// Reduces a data cube to its first 2D plane in place. No-op for 2D images
func (f *Image) FirstPlane() {
	if len(f.Naxisn) <= 2 {
		return
	}
	pixels := f.Naxisn[0] * f.Naxisn[1]
	f.Data, f.Naxisn, f.Pixels = f.Data[:pixels:pixels], f.Naxisn[:2], pixels
	f.Touch()
}
