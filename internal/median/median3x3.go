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


// Package median provides the 3x3 median filter used to find stars without being fooled by hot pixels.
package median

import (
	"math"
)

// Applies a 3x3 median filter to data of the given width, writing to output.
// Border pixels are copied unchanged
func MedianFilter3x3(output, data []float32, width int32) {
	w := int(width)
	height := len(data) / w
	copy(output, data)
	if height < 3 || w < 3 {
		return
	}
	window := make([]float32, 9)
	for y := 1; y < height-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			copy(window[0:3], data[i-w-1:i-w+2])
			copy(window[3:6], data[i-1:i+2])
			copy(window[6:9], data[i+w-1:i+w+2])
			output[i] = MedianFloat32Slice9(window)
		}
	}
}

// Returns the median of exactly nine values with a fixed network of min/max
// exchanges. Reorders the slice
func MedianFloat32Slice9(a []float32) float32 {
	sort2 := func(i, j int) {
		if a[i] > a[j] {
			a[i], a[j] = a[j], a[i]
		}
	}
	max2 := func(i, j int) { // a[j] = max(a[i], a[j])
		if a[i] > a[j] {
			a[j] = a[i]
		}
	}
	min2 := func(i, j int) { // a[i] = min(a[i], a[j])
		if a[i] > a[j] {
			a[i] = a[j]
		}
	}

	// sort each row of three
	for _, r := range [3]int{0, 3, 6} {
		sort2(r, r+1)
		sort2(r+1, r+2)
		sort2(r, r+1)
	}
	max2(0, 3) // largest of the row minima
	max2(3, 6)
	sort2(1, 4) // median of the row medians
	min2(4, 7)
	max2(1, 4)
	min2(5, 8) // smallest of the row maxima
	min2(2, 5)
	sort2(2, 4) // median of the three candidates
	min2(4, 6)
	max2(2, 4)
	return a[4]
}

// Returns the index and value of the brightest pixel after 3x3 median filtering,
// which suppresses hot pixels and cosmic ray hits. NaNs are treated as the given fill value.
// Only pixels within the given rectangle [x0,x1)x[y0,y1) are considered
func FilteredPeak(data []float32, width int32, fill float32, x0, y0, x1, y1 int32) (index int32, value float32) {
	clean := make([]float32, len(data))
	for i, d := range data {
		if d != d {
			d = fill
		}
		clean[i] = d
	}
	filtered := make([]float32, len(data))
	MedianFilter3x3(filtered, clean, width)

	height := int32(len(data)) / width
	if x0 < 0 {
		x0 = 0
	}
	if y0 < 0 {
		y0 = 0
	}
	if x1 > width {
		x1 = width
	}
	if y1 > height {
		y1 = height
	}

	index, value = -1, float32(-math.MaxFloat32)
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			if v := filtered[y*width+x]; v > value {
				index, value = y*width+x, v
			}
		}
	}
	return index, value
}
