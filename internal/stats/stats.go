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
	"fmt"
	"math"

	"github.com/mlnoga/aoreduce/internal/qsort"
)

// Lazily evaluated statistics on a 2D data array. NaN values are ignored.
type Stats struct {
	data  []float32
	width int32

	min    float32
	max    float32
	mean   float32
	stdDev float32

	location float32 // median
	scale    float32 // normalized median absolute deviation

	haveMMM    bool
	haveStdDev bool
	haveLS     bool
}

// Creates statistics for the given data with the given line width. Evaluation is deferred until first use
func NewStats(data []float32, width int32) *Stats {
	return &Stats{data: data, width: width}
}

// Creates statistics for the given data, with known minimum, maximum and mean
func NewStatsWithMMM(data []float32, width int32, min, max, mean float32) *Stats {
	return &Stats{data: data, width: width, min: min, max: max, mean: mean, haveMMM: true}
}

func (s *Stats) Min() float32 {
	s.calcMMM()
	return s.min
}

func (s *Stats) Max() float32 {
	s.calcMMM()
	return s.max
}

func (s *Stats) Mean() float32 {
	s.calcMMM()
	return s.mean
}

func (s *Stats) StdDev() float32 {
	if !s.haveStdDev {
		s.calcMMM()
		s.stdDev = float32(math.Sqrt(calcVariance(s.data, s.mean)))
		s.haveStdDev = true
	}
	return s.stdDev
}

// Location is the median of all non-NaN values
func (s *Stats) Location() float32 {
	s.calcLS()
	return s.location
}

// Scale is the median absolute deviation from the median, normalized to a gaussian sigma
func (s *Stats) Scale() float32 {
	s.calcLS()
	return s.scale
}

// Pretty print stats to string
func (s *Stats) String() string {
	return fmt.Sprintf("Min %.6g Max %.6g Mean %.6g StdDev %.6g Location %.6g Scale %.6g",
		s.Min(), s.Max(), s.Mean(), s.StdDev(), s.Location(), s.Scale())
}

func (s *Stats) calcMMM() {
	if s.haveMMM {
		return
	}
	s.min, s.mean, s.max = calcMinMeanMax(s.data)
	s.haveMMM = true
}

func (s *Stats) calcLS() {
	if s.haveLS {
		return
	}
	tmp := qsort.WithoutNaNs(s.data)
	if len(tmp) == 0 {
		s.location, s.scale = float32(math.NaN()), float32(math.NaN())
		s.haveLS = true
		return
	}
	s.location = qsort.QSelectMedianFloat32(tmp)
	for i, d := range tmp {
		tmp[i] = float32(math.Abs(float64(d - s.location)))
	}
	s.scale = qsort.QSelectMedianFloat32(tmp) * 1.4826
	s.haveLS = true
}

// Calculate minimum, mean and maximum of given data, skipping NaNs.
// Returns NaNs if no valid data is present
func calcMinMeanMax(data []float32) (min, mean, max float32) {
	mmin, mmax := float32(math.MaxFloat32), float32(-math.MaxFloat32)
	sum, n := float64(0), 0
	for _, v := range data {
		if v != v {
			continue
		}
		if v < mmin {
			mmin = v
		}
		if v > mmax {
			mmax = v
		}
		sum += float64(v)
		n++
	}
	if n == 0 {
		nan := float32(math.NaN())
		return nan, nan, nan
	}
	return mmin, float32(sum / float64(n)), mmax
}

// Calculate variance of given data from provided mean, skipping NaNs
func calcVariance(data []float32, mean float32) float64 {
	variance, n := float64(0), 0
	for _, v := range data {
		if v != v {
			continue
		}
		diff := float64(v - mean)
		variance += diff * diff
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return variance / float64(n)
}

// Returns mean and standard deviation of the given values
func MeanStdDev(xs []float32) (mean, stdDev float32) {
	_, xmean, _ := calcMinMeanMax(xs)
	return xmean, float32(math.Sqrt(calcVariance(xs, xmean)))
}

// Returns the median of the given data, ignoring NaNs. Does not change the data.
// Returns NaN if no valid data is present
func Median(data []float32) float32 {
	tmp := qsort.WithoutNaNs(data)
	if len(tmp) == 0 {
		return float32(math.NaN())
	}
	return qsort.QSelectMedianFloat32(tmp)
}
