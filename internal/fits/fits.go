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
	"strings"

	"github.com/mlnoga/aoreduce/internal/stats"
)

// A FITS image.
// Spec here:   https://fits.gsfc.nasa.gov/standard40/fits_standard40aa-le.pdf
// Primer here: https://fits.gsfc.nasa.gov/fits_primer.html
type Image struct {
	ID       int    // Sequential ID number, for log output. Counted upwards from 0 for raw frames. By convention, dark is -1, flat is -2 and sky is -3
	FileName string // Original file name, if any, for log output.

	Header Header  // The header with all keys, values, comments, history entries etc.
	Bitpix int32   // Bits per pixel value from the header. Positive values are integral, negative floating.
	Bzero  float32 // Zero offset. True pixel value is Bzero + Bscale * Data[i].
	Bscale float32 // Value scaler. True pixel value is Bzero + Bscale * Data[i].
	Naxisn []int32 // Axis dimensions. Most quickly varying dimension first (i.e. X,Y)
	Pixels int32   // Number of pixels in the image. Product of Naxisn[]

	Data []float32 // The image data, row-major with X varying fastest

	Exposure float32 // Image exposure in seconds

	Stats *stats.Stats // Basic image statistics, lazily evaluated
}

// IDs for master frames in log output
const (
	IDDark = -1
	IDFlat = -2
	IDSky  = -3
)

// Creates a FITS image initialized with empty header
func NewImage() *Image {
	return &Image{
		Header: NewHeader(),
		Bscale: 1,
	}
}

// Creates a FITS image from given naxisn. Data is not copied, allocated if nil. naxisn is deep copied
func NewImageFromNaxisn(naxisn []int32, data []float32) *Image {
	numPixels := int32(1)
	for _, naxis := range naxisn {
		numPixels *= naxis
	}
	if data == nil {
		data = make([]float32, numPixels)
	}
	return &Image{
		Header: NewHeader(),
		Bitpix: -32,
		Bscale: 1,
		Naxisn: append([]int32(nil), naxisn...), // clone slice
		Pixels: numPixels,
		Data:   data,
		Stats:  stats.NewStats(data, naxisn[0]),
	}
}

// Creates a FITS image with the metadata of the given image. New zeroed data array will be allocated
func NewImageFromImage(img *Image) *Image {
	data := make([]float32, img.Pixels)
	return &Image{
		ID:       img.ID,
		FileName: img.FileName,
		Header:   img.Header.Clone(),
		Bitpix:   img.Bitpix,
		Bzero:    img.Bzero,
		Bscale:   img.Bscale,
		Naxisn:   append([]int32(nil), img.Naxisn...), // clone slice
		Pixels:   img.Pixels,
		Data:     data,
		Exposure: img.Exposure,
		Stats:    stats.NewStats(data, img.Naxisn[0]),
	}
}

// Creates a deep copy of the given image, including pixel data
func (f *Image) Clone() *Image {
	res := NewImageFromImage(f)
	copy(res.Data, f.Data)
	return res
}

// Width of the image in pixels, i.e. number of columns
func (f *Image) Width() int32 { return f.Naxisn[0] }

// Height of the image in pixels, i.e. number of rows
func (f *Image) Height() int32 {
	if len(f.Naxisn) < 2 {
		return 1
	}
	return f.Naxisn[1]
}

// Returns the pixel value at the given row and column
func (f *Image) At(row, col int32) float32 {
	return f.Data[row*f.Naxisn[0]+col]
}

// Marks image data as changed, discarding cached statistics
func (f *Image) Touch() {
	f.Stats = stats.NewStats(f.Data, f.Naxisn[0])
}

func (f *Image) DimensionsToString() string {
	b := strings.Builder{}
	for i, naxis := range f.Naxisn {
		if i > 0 {
			fmt.Fprintf(&b, "x%d", naxis)
		} else {
			fmt.Fprintf(&b, "%d", naxis)
		}
	}
	return b.String()
}

// Checks that the other image has the same dimensions as this one
func (f *Image) CheckSameShape(other *Image) error {
	if !EqualInt32Slice(f.Naxisn, other.Naxisn) {
		return fmt.Errorf("%d: size %s differs from %d: size %s",
			f.ID, f.DimensionsToString(), other.ID, other.DimensionsToString())
	}
	return nil
}

// Equal tells whether a and b contain the same elements.
// A nil argument is equivalent to an empty slice.
func EqualInt32Slice(a, b []int32) bool {
	if len(a) != len(b) {
		return false
	}
	for i, v := range a {
		if v != b[i] {
			return false
		}
	}
	return true
}
