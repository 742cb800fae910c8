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


package ops

import (
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/mlnoga/aoreduce/internal/fits"
	"github.com/mlnoga/aoreduce/internal/qsort"
	"github.com/mlnoga/aoreduce/internal/stats"
)

// Combines a set of frames pixel by pixel with the given mode, skipping NaNs.
// Pixels without any valid value become NaN. The result carries the metadata of
// the first frame. Limits parallelism to maxThreads
func Combine(f []*fits.Image, mode string, sigmaLow, sigmaHigh float32, maxThreads int, log io.Writer) (result *fits.Image, err error) {
	if len(f) == 0 {
		return nil, fmt.Errorf("no frames to combine")
	}
	for _, l := range f[1:] {
		if err := f[0].CheckSameShape(l); err != nil {
			return nil, err
		}
	}
	if mode != CombineMedian && mode != CombineMean && mode != CombineSigma {
		return nil, fmt.Errorf("invalid combination mode '%s'", mode)
	}
	if maxThreads < 1 {
		maxThreads = 1
	}

	data := make([]float32, len(f[0].Data))

	// split into at least 8 work packages per thread
	numBatches := 8 * maxThreads
	batchSize := (len(data) + numBatches - 1) / numBatches
	sem := make(chan bool, maxThreads)

	numClippedLock, numClippedLow, numClippedHigh := sync.Mutex{}, int32(0), int32(0)
	for lower := 0; lower < len(data); lower += batchSize {
		upper := lower + batchSize
		if upper > len(data) {
			upper = len(data)
		}

		sem <- true
		go func(lower, upper int) {
			defer func() { <-sem }()

			// subslice frame data elements for given batch
			ldBatch := make([][]float32, len(f))
			for i, l := range f {
				ldBatch[i] = l.Data[lower:upper]
			}

			switch mode {
			case CombineMedian:
				StackMedian(ldBatch, data[lower:upper])
			case CombineMean:
				StackMean(ldBatch, data[lower:upper])
			case CombineSigma:
				clipLow, clipHigh := StackSigma(ldBatch, sigmaLow, sigmaHigh, data[lower:upper])
				numClippedLock.Lock()
				numClippedLow += clipLow
				numClippedHigh += clipHigh
				numClippedLock.Unlock()
			}
		}(lower, upper)
	}
	for i := 0; i < cap(sem); i++ { // wait for goroutines to finish
		sem <- true
	}

	if mode == CombineSigma && log != nil {
		fmt.Fprintf(log, "Clipped low %d (%.2f%%) high %d (%.2f%%)\n",
			numClippedLow, float32(numClippedLow)*100.0/(float32(len(data)*len(f))),
			numClippedHigh, float32(numClippedHigh)*100.0/(float32(len(data)*len(f))))
	}

	result = fits.NewImageFromNaxisn(f[0].Naxisn, data)
	result.Header = f[0].Header.Clone()
	result.Exposure = f[0].Exposure
	return result, nil
}

var nan32 = float32(math.NaN())

// Stacking with median function. The median of an even count is the mean of the two middle values
func StackMedian(lightsData [][]float32, res []float32) {
	gatheredFull := make([]float32, len(lightsData))

	// for all pixels
	for i := range res {
		// gather data for this pixel across all lights, skipping NaNs
		numGathered := 0
		for li := range lightsData {
			value := lightsData[li][i]
			if value == value {
				gatheredFull[numGathered] = value
				numGathered++
			}
		}
		if numGathered == 0 {
			res[i] = nan32
			continue
		}
		res[i] = qsort.QSelectMedianFloat32(gatheredFull[:numGathered])
	}
}

// Stacking with mean function
func StackMean(lightsData [][]float32, res []float32) {
	// for all pixels
	for i := range res {
		// gather data for this pixel across all lights, skipping NaNs
		numGathered := 0
		sum := float32(0)
		for li := range lightsData {
			value := lightsData[li][i]
			if value == value {
				sum += value
				numGathered++
			}
		}
		if numGathered == 0 {
			res[i] = nan32
			continue
		}
		res[i] = sum / float32(numGathered)
	}
}

// Mean stacking with sigma clipping. Values which are more than sigmaLow/sigmaHigh
// standard deviations away from the median are excluded from the average calculation.
func StackSigma(lightsData [][]float32, sigmaLow, sigmaHigh float32, res []float32) (clipLow, clipHigh int32) {
	gatheredFull := make([]float32, len(lightsData))
	numClippedLow, numClippedHigh := int32(0), int32(0)

	// for all pixels
	for i := range res {
		// gather data for this pixel across all lights, skipping NaNs
		numGathered := 0
		for li := range lightsData {
			value := lightsData[li][i]
			if value == value {
				gatheredFull[numGathered] = value
				numGathered++
			}
		}
		if numGathered == 0 {
			res[i] = nan32
			continue
		}
		gatheredCur := gatheredFull[:numGathered]

		// repeat until results for this pixel are stable
		for {
			// calculate median, mean and standard deviation across gathered data
			mean, stdDev := stats.MeanStdDev(gatheredCur)
			median := qsort.QSelectMedianFloat32(gatheredCur)

			// remove out-of-bounds values
			lowBound := median - sigmaLow*stdDev
			highBound := median + sigmaHigh*stdDev
			prevClipped := numClippedLow + numClippedHigh
			for j := 0; j < len(gatheredCur); j++ {
				g := gatheredCur[j]
				if g < lowBound {
					gatheredCur[j] = gatheredCur[len(gatheredCur)-1]
					gatheredCur = gatheredCur[:len(gatheredCur)-1]
					numClippedLow++
					j--
				} else if g > highBound {
					gatheredCur[j] = gatheredCur[len(gatheredCur)-1]
					gatheredCur = gatheredCur[:len(gatheredCur)-1]
					numClippedHigh++
					j--
				}
			}

			// terminate if no more values are out of bounds, or all but one value consumed
			if (numClippedLow+numClippedHigh) == prevClipped || len(gatheredCur) <= 1 {
				if (numClippedLow + numClippedHigh) != prevClipped {
					mean, _ = stats.MeanStdDev(gatheredCur)
				}
				res[i] = mean
				break
			}
		}
	}
	return numClippedLow, numClippedHigh
}
