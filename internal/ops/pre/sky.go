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


package pre

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mlnoga/aoreduce/internal/fits"
	"github.com/mlnoga/aoreduce/internal/ops"
)

// Estimates the sky background for one target and filter from the raw frames with the given numbers.
// Frames are dark subtracted and flat divided, then combined with the per-pixel median,
// or with a sigma-clipped mean if sky rejection is enabled. Writes sDir/<filt>/sky.fits
func CreateSkies(c *ops.Context, rawDir, redDir, sDir string, nums []int, filterName string) (*fits.Image, error) {
	cube, err := LoadCube(c, rawDir, nums)
	if err != nil {
		return nil, err
	}
	head, err := c.Inst.Head(cube.Files[0])
	if err != nil {
		return nil, err
	}
	filt := c.Inst.Filt(len(nums), head, filterName)

	cal, err := LoadCalibration(c, redDir, sDir, expTimeOf(c, cube.Frames[0]), filt, false)
	if err != nil {
		return nil, err
	}
	for _, f := range cube.Frames {
		if err := cal.Apply(f); err != nil {
			return nil, err
		}
	}

	mode := ops.CombineMedian
	if c.SkyRejection {
		mode = ops.CombineSigma
	}
	fmt.Fprintf(c.Log, "Combining %d sky frames for filter %s with %s:\n", cube.Len(), filt, mode)
	sky, err := ops.Combine(cube.Frames, mode, c.SkySigmaLow, c.SkySigmaHigh, c.MaxThreads, c.Log)
	if err != nil {
		return nil, err
	}
	sky.ID, sky.FileName = fits.IDSky, SkyFileName(sDir, filt)
	sky.Header.SetString("DATAFILE", FormatNums(nums))
	sky.Header.SetInt("NCOMBINE", int64(cube.Len()))

	if err := os.MkdirAll(filepath.Dir(sky.FileName), 0755); err != nil {
		return nil, err
	}
	fmt.Fprintf(c.Log, "%d: Writing %s pixel sky with %v to %s\n", sky.ID, sky.DimensionsToString(), sky.Stats, sky.FileName)
	if err := sky.WriteFile(sky.FileName); err != nil {
		return nil, fmt.Errorf("%d: writing %s: %w", sky.ID, sky.FileName, err)
	}
	return sky, nil
}
