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
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mlnoga/aoreduce/internal/fits"
	"github.com/mlnoga/aoreduce/internal/ops"
	"github.com/mlnoga/aoreduce/internal/plot"
)

// Returns the master flat file name for the given filter
func FlatFileName(redDir, filt string) string {
	return filepath.Join(redDir, fmt.Sprintf("flat_%s.fits", filt))
}

// Builds the master flat for one filter from the raw frames with the given numbers.
// Each frame is dark subtracted and normalized by its own median, then the per-pixel median
// is normalized to a median of one. In test mode no dark is subtracted.
// Writes the result to redDir and returns it. Nothing is written on failure
func CreateFlats(c *ops.Context, rawDir, redDir string, nums []int, darkFile, filterName string, test bool) (*fits.Image, error) {
	cube, err := LoadCube(c, rawDir, nums)
	if err != nil {
		return nil, err
	}
	head, err := c.Inst.Head(cube.Files[0])
	if err != nil {
		return nil, err
	}
	filt := c.Inst.Filt(len(nums), head, filterName)

	var dark *fits.Image
	if !test {
		if dark, err = OpenDarks(darkFile, c.Log); err != nil {
			return nil, err
		}
		if err := checkShape(cube.Frames[0], dark); err != nil {
			return nil, err
		}
	}

	for _, f := range cube.Frames {
		if dark != nil {
			if err := f.Subtract(dark); err != nil {
				return nil, err
			}
		}
		med := f.Median()
		if med == 0 || med != med {
			return nil, fmt.Errorf("%d: cannot normalize flat frame with median %g", f.ID, med)
		}
		f.ApplyScaleOffset(1/med, 0)
	}

	fmt.Fprintf(c.Log, "Combining %d flats for filter %s:\n", cube.Len(), filt)
	flat, err := ops.Combine(cube.Frames, ops.CombineMedian, 0, 0, c.MaxThreads, c.Log)
	if err != nil {
		return nil, err
	}
	med := flat.Median()
	if med == 0 || med != med {
		return nil, fmt.Errorf("%d: cannot normalize master flat with median %g", fits.IDFlat, med)
	}
	flat.ApplyScaleOffset(1/med, 0)

	if c.Plotter != nil {
		if err := c.Plotter.PlotArray(plot.TypeIntermediate, cube.Frames, -2, 2, redDir, fmt.Sprintf("flat_cube_%s.png", filt)); err != nil {
			fmt.Fprintf(c.Log, "Warning: plotting flat cube: %s\n", err.Error())
		}
	}

	flat.ID, flat.FileName = fits.IDFlat, FlatFileName(redDir, filt)
	flat.Header.SetString("DATAFILE", FormatNums(nums))
	flat.Header.SetInt("NCOMBINE", int64(cube.Len()))

	if err := os.MkdirAll(redDir, 0755); err != nil {
		return nil, err
	}
	fmt.Fprintf(c.Log, "%d: Writing %s pixel master flat with %v to %s\n", flat.ID, flat.DimensionsToString(), flat.Stats, flat.FileName)
	if err := flat.WriteFile(flat.FileName); err != nil {
		return nil, fmt.Errorf("%d: writing %s: %w", flat.ID, flat.FileName, err)
	}
	return flat, nil
}

// Opens a master flat. Only FITS files are supported
func OpenFlats(flatFile string, log io.Writer) (*fits.Image, error) {
	if !strings.HasSuffix(flatFile, "fits") {
		return nil, fmt.Errorf("%w: flat %s", ErrUnsupportedFormat, flatFile)
	}
	if _, err := os.Stat(flatFile); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFlatNotFound, flatFile)
	}
	return fits.NewImageFromFile(flatFile, fits.IDFlat, log)
}
