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
	"io"
	"io/ioutil"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/mlnoga/aoreduce/internal/inst"
	"github.com/mlnoga/aoreduce/internal/plot"
	"github.com/pbnjay/memory"
)

// Combination modes for registered frames
const (
	CombineMedian = "median"
	CombineMean   = "mean"
	CombineSigma  = "sigma" // mean with iterative sigma clipping around the median
)

// An execution context for the reduction steps
type Context struct {
	Log          io.Writer
	MemoryMB     int // memory.TotalMemory()/1024/1024
	CubeMemoryMB int // MemoryMB*7/10, warn above this
	MaxThreads   int
	Inst         inst.Instrument
	Plotter      *plot.Plotter // nil disables plots
	Combine      string        // CombineMedian, CombineMean or CombineSigma for registered frames
	SkyRejection bool          // sigma-clipped mean instead of median for skies
	SkySigmaLow  float32
	SkySigmaHigh float32
	SatFraction  float32 // fraction of the peak above which pixels count as saturated
	Window       int     // half-width of the cross-correlation window around the reference peak
	WriteTIFF    bool    // write 16-bit TIFF previews of final images
}

func NewContext(log io.Writer, instrument inst.Instrument) *Context {
	if log == nil {
		log = ioutil.Discard
	}
	memoryMB := int(memory.TotalMemory() / 1024 / 1024)
	return &Context{
		Log:          log,
		MemoryMB:     memoryMB,
		CubeMemoryMB: memoryMB * 7 / 10,
		MaxThreads:   runtime.GOMAXPROCS(0),
		Inst:         instrument,
		Combine:      CombineMedian,
		SkySigmaLow:  3,
		SkySigmaHigh: 3,
		SatFraction:  0.9,
		Window:       20,
	}
}

// Returns true if a path is considered safe, i.e. not an absolute path,
// and doesn't contain the ".." characters to change to a parent directory
func IsPathAllowed(p string) bool {
	if filepath.IsAbs(p) {
		return false // relative paths only
	}
	if strings.Contains(p, "..") {
		return false // no going outside the tree
	}
	return true
}
