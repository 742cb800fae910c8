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


package stats

import (
	"math"
)

// Calculate histogram of data between min and max into given bins.
// Values outside [min,max] are clamped into the outermost bins, NaNs are skipped
func Histogram(data []float32, min, max float32, bins []int32) {
	for i := range bins {
		bins[i] = 0
	}
	if max <= min {
		bins[0] = int32(len(data))
		return
	}
	last := len(bins) - 1
	scale := float32(last) / (max - min)
	for _, d := range data {
		if d != d {
			continue
		}
		index := int((d - min) * scale)
		if index < 0 {
			index = 0
		} else if index > last {
			index = last
		}
		bins[index]++
	}
}

// Returns the location and the value of the histogram peak
func GetPeak(bins []int32, min, max float32) (x, y float32) {
	maxIndex, maxValue := -1, int32(math.MinInt32)
	for i, v := range bins {
		if v > maxValue {
			maxIndex, maxValue = i, v
		}
	}
	x = min + (float32(maxIndex)+0.5)*(max-min)/float32(len(bins)-1)
	return x, float32(maxValue)
}

// Returns the approximate value below which the given fraction of the histogram mass lies
func Percentile(bins []int32, min, max float32, fraction float32) float32 {
	total := int64(0)
	for _, b := range bins {
		total += int64(b)
	}
	if total == 0 {
		return min
	}
	target := int64(float64(fraction) * float64(total))
	cum := int64(0)
	for i, b := range bins {
		cum += int64(b)
		if cum > target {
			return min + (float32(i)+0.5)*(max-min)/float32(len(bins)-1)
		}
	}
	return max
}

// Returns a display range clipping the given low and high fractions of the data,
// using a histogram with the given number of bins
func PercentileRange(data []float32, low, high float32, numBins int) (lo, hi float32) {
	s := NewStats(data, int32(len(data)))
	min, max := s.Min(), s.Max()
	if min != min || max <= min {
		return min, max
	}
	bins := make([]int32, numBins)
	Histogram(data, min, max, bins)
	return Percentile(bins, min, max, low), Percentile(bins, min, max, 1-high)
}
