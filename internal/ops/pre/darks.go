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
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/mlnoga/aoreduce/internal/fits"
	"github.com/mlnoga/aoreduce/internal/ops"
)

// Returns the master dark file name for the given exposure time, rounded to whole seconds
func DarkFileName(redDir string, expTime float64) string {
	return filepath.Join(redDir, fmt.Sprintf("dark_%dsec.fits", int(math.Round(expTime))))
}

// Returns the exposure time of a frame from its header, or from the exposure read with it
func expTimeOf(c *ops.Context, f *fits.Image) float64 {
	if et := c.Inst.ExpTime(f.Header); et > 0 {
		return float64(et)
	}
	return float64(f.Exposure)
}

// Builds the master dark from the raw frames with the given numbers, as the per-pixel median.
// Writes it to redDir, named after the exposure time of the first frame
func CreateDarks(c *ops.Context, rawDir, redDir string, nums []int) (*fits.Image, error) {
	cube, err := LoadCube(c, rawDir, nums)
	if err != nil {
		return nil, err
	}
	expTime := expTimeOf(c, cube.Frames[0])

	fmt.Fprintf(c.Log, "Combining %d darks with %.3gs exposure:\n", cube.Len(), expTime)
	dark, err := ops.Combine(cube.Frames, ops.CombineMedian, 0, 0, c.MaxThreads, c.Log)
	if err != nil {
		return nil, err
	}
	dark.ID, dark.FileName = fits.IDDark, DarkFileName(redDir, expTime)
	dark.Header.SetString("DATAFILE", FormatNums(nums))
	dark.Header.SetInt("NCOMBINE", int64(cube.Len()))

	if err := os.MkdirAll(redDir, 0755); err != nil {
		return nil, err
	}
	fmt.Fprintf(c.Log, "%d: Writing %s pixel master dark with %v to %s\n", dark.ID, dark.DimensionsToString(), dark.Stats, dark.FileName)
	if err := dark.WriteFile(dark.FileName); err != nil {
		return nil, fmt.Errorf("%d: writing %s: %w", dark.ID, dark.FileName, err)
	}
	return dark, nil
}

// Opens a master dark. Only FITS files are supported
func OpenDarks(darkFile string, log io.Writer) (*fits.Image, error) {
	if !strings.HasSuffix(darkFile, "fits") {
		return nil, fmt.Errorf("%w: dark %s", ErrUnsupportedFormat, darkFile)
	}
	if _, err := os.Stat(darkFile); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDarkNotFound, darkFile)
	}
	return fits.NewImageFromFile(darkFile, fits.IDDark, log)
}
