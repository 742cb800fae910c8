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
	"strconv"
	"strings"

	"github.com/mlnoga/aoreduce/internal/fits"
	"github.com/mlnoga/aoreduce/internal/inst"
	"github.com/mlnoga/aoreduce/internal/ops"
)

// An ordered set of frames with identical dimensions
type Cube struct {
	Files  []string
	Frames []*fits.Image
}

// Number of frames in the cube
func (c *Cube) Len() int { return len(c.Frames) }

// Returns the raw file paths for the given file numbers
func MakeFileList(rawDir string, nums []int, instrument inst.Instrument) []string {
	res := make([]string, len(nums))
	for i, n := range nums {
		res[i] = filepath.Join(rawDir, instrument.FileName(n))
	}
	return res
}

// Formats file numbers like the Filenums column, e.g. [1108, 1109, 1110]
func FormatNums(nums []int) string {
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = strconv.Itoa(n)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Reads the given files into a cube, in order
func ReadImCube(files []string, log io.Writer) (*Cube, error) {
	return readImCube(files, 1, log)
}

// Checks all file names and existence before reading any data
func checkFiles(files []string) error {
	if len(files) == 0 {
		return fmt.Errorf("%w: empty file list", ErrFrameNotFound)
	}
	for _, f := range files {
		if !fits.IsFITSName(f) {
			return fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
		}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("%w: %s", ErrFrameNotFound, f)
		}
	}
	return nil
}

func readImCube(files []string, maxThreads int, log io.Writer) (*Cube, error) {
	if err := checkFiles(files); err != nil {
		return nil, err
	}
	promises := make([]ops.Promise, len(files))
	for i, file := range files {
		id, fileName := i, file
		promises[i] = func() (*fits.Image, error) {
			f, err := fits.NewImageFromFile(fileName, id, log)
			if err != nil {
				return nil, err
			}
			warning := ""
			if f.Stats.Max()-f.Stats.Min() < 1e-8 {
				warning = "; WARNING low dynamic range"
			}
			fmt.Fprintf(log, "%d: Loaded %s image with %v from %s%s\n",
				f.ID, f.DimensionsToString(), f.Stats, f.FileName, warning)
			return f, nil
		}
	}
	frames, err := ops.MaterializeAll(promises, maxThreads)
	if err != nil {
		return nil, err
	}
	for _, f := range frames[1:] {
		if f.Width() != frames[0].Width() || f.Height() != frames[0].Height() {
			return nil, fmt.Errorf("%w: %d: size %s differs from %d: size %s", ErrShapeMismatch,
				f.ID, f.DimensionsToString(), frames[0].ID, frames[0].DimensionsToString())
		}
	}
	return &Cube{Files: files, Frames: frames}, nil
}

// Loads the raw frames with the given numbers and brings them into standard orientation
func LoadCube(c *ops.Context, rawDir string, nums []int) (*Cube, error) {
	files := MakeFileList(rawDir, nums, c.Inst)
	if err := checkFiles(files); err != nil {
		return nil, err
	}

	// estimate memory use from the first header
	first := fits.NewImage()
	if err := first.ReadFile(files[0], false, c.Log); err == nil {
		estMB := int64(first.Pixels) * 4 * int64(len(files)) / 1024 / 1024
		if c.CubeMemoryMB > 0 && estMB > int64(c.CubeMemoryMB) {
			fmt.Fprintf(c.Log, "Warning: cube of %d frames needs an estimated %d MB, more than 70%% of %d MB physical memory\n",
				len(files), estMB, c.MemoryMB)
		}
	}

	cube, err := readImCube(files, c.MaxThreads, c.Log)
	if err != nil {
		return nil, err
	}
	if err := c.Inst.AdjustArray(cube.Frames, len(nums)); err != nil {
		return nil, err
	}
	return cube, nil
}
