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
	"runtime"

	"github.com/mlnoga/aoreduce/internal/stats"
)

// A pixel function. Operates in-place. For parallelization across CPUs.
type PixelFunction func(data []float32, params interface{})

// Apply given pixel function to the image. Uses thead parallelism across all available CPUs. Operates in-place.
func (f *Image) ApplyPixelFunction(pf PixelFunction, args interface{}) {
	data := f.Data

	// split into 8*NumCPU() work packages, limit parallelism to NumCPUS()
	numBatches := 8 * runtime.NumCPU()
	batchSize := (len(data) + numBatches - 1) / (numBatches)
	sem := make(chan bool, runtime.NumCPU())
	for lower := 0; lower < len(data); lower += batchSize {
		upper := lower + batchSize
		if upper > len(data) {
			upper = len(data)
		}

		sem <- true
		go func(data []float32) {
			pf(data, args)
			<-sem
		}(data[lower:upper])
	}

	for i := 0; i < cap(sem); i++ { // wait for goroutines to finish
		sem <- true
	}
	f.Touch()
}

type scaleOffsetParams struct {
	scale  float32
	offset float32
}

func pfScaleOffset(data []float32, params interface{}) {
	p := params.(scaleOffsetParams)
	for i, d := range data {
		data[i] = d*p.scale + p.offset
	}
}

// Multiplies all pixels with the given scale, then adds the given offset
func (f *Image) ApplyScaleOffset(scale, offset float32) {
	f.ApplyPixelFunction(pfScaleOffset, scaleOffsetParams{scale, offset})
}

type replaceNaNParams struct {
	value float32
}

func pfReplaceNaN(data []float32, params interface{}) {
	p := params.(replaceNaNParams)
	for i, d := range data {
		if d != d {
			data[i] = p.value
		}
	}
}

// Replaces all IEEE NaN pixels with the given value
func (f *Image) ReplaceNaN(value float32) {
	f.ApplyPixelFunction(pfReplaceNaN, replaceNaNParams{value})
}

// Subtracts the other image pixel by pixel. Images must have the same shape
func (f *Image) Subtract(other *Image) error {
	if err := f.CheckSameShape(other); err != nil {
		return err
	}
	for i, o := range other.Data {
		f.Data[i] -= o
	}
	f.Touch()
	return nil
}

// Divides by the other image pixel by pixel. Images must have the same shape.
// Follows IEEE semantics for division by zero
func (f *Image) Divide(other *Image) error {
	if err := f.CheckSameShape(other); err != nil {
		return err
	}
	for i, o := range other.Data {
		f.Data[i] /= o
	}
	f.Touch()
	return nil
}

// Returns the median of all non-NaN pixels
func (f *Image) Median() float32 {
	return stats.Median(f.Data)
}
