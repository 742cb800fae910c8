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


package stack

import (
	"fmt"
	"io/ioutil"
	"math"
	"path/filepath"
	"sort"

	"github.com/mlnoga/aoreduce/internal/fits"
	"github.com/mlnoga/aoreduce/internal/ops"
	"github.com/mlnoga/aoreduce/internal/ops/pre"
	"github.com/mlnoga/aoreduce/internal/ops/register"
	"github.com/mlnoga/aoreduce/internal/plot"
)

// Name of the final image in a filter directory
const FinalFileName = "final_im.fits"

// Registers the centered frames of each filter directory of a target against the first frame
// with the given method, searching npix pixels in each direction, and combines them into
// final_im.fits. Processes the given filter subdirectories of sDir, or all that hold centered
// frames. The method is checked before any file is touched
func CreateIm(c *ops.Context, sDir string, npix int, method string, filterDirs ...string) error {
	m, err := ParseMethod(method)
	if err != nil {
		return err
	}
	if len(filterDirs) == 0 {
		if filterDirs, err = FilterDirs(sDir); err != nil {
			return err
		}
		if len(filterDirs) == 0 {
			return fmt.Errorf("%s: no filter directories with centered frames", sDir)
		}
	}

	errs := make([]error, 0)
	for _, fd := range filterDirs {
		if err := createIm(c, filepath.Join(sDir, fd), npix, m); err != nil {
			fmt.Fprintf(c.Log, "Error: %s: %s\n", fd, err.Error())
			errs = append(errs, fmt.Errorf("%s: %w", fd, err))
		}
	}
	return ops.JoinErrors(errs)
}

// Returns the names of the subdirectories of sDir which hold centered frames, sorted
func FilterDirs(sDir string) ([]string, error) {
	entries, err := ioutil.ReadDir(sDir)
	if err != nil {
		return nil, err
	}
	res := []string{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if files, _ := filepath.Glob(filepath.Join(sDir, e.Name(), "sh*.fits")); len(files) > 0 {
			res = append(res, e.Name())
		}
	}
	sort.Strings(res)
	return res, nil
}

func createIm(c *ops.Context, dir string, npix int, m Method) error {
	files, err := filepath.Glob(filepath.Join(dir, "sh*.fits"))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("%w: no centered frames in %s", pre.ErrFrameNotFound, dir)
	}
	sort.Strings(files)
	cube, err := pre.ReadImCube(files, c.Log)
	if err != nil {
		return err
	}

	e := newEngine(c, npix)
	ref := cube.Frames[0]
	registered := []*fits.Image{ref}
	shifts := []register.Shift{{}}
	rots := []*fits.Image{}
	for _, f := range cube.Frames[1:] {
		var res register.Result
		if m == MethodSaturated {
			res, err = e.RegisterSaturated(ref, f)
		} else {
			res, err = e.RegisterDefault(ref, f)
		}
		if err != nil {
			fmt.Fprintf(c.Log, "%d: Warning: skipping frame, %s\n", f.ID, err.Error())
			continue
		}
		fmt.Fprintf(c.Log, "%d: Registered with %s method, shift %v score %.4g\n", f.ID, m, res.Shift, res.Score)
		shifted, err := f.Shift(float32(res.Shift.Row), float32(res.Shift.Col), float32(math.NaN()))
		if err != nil {
			return err
		}
		registered = append(registered, shifted)
		shifts = append(shifts, res.Shift)
		if res.Residuals != nil {
			rots = append(rots, res.Residuals)
		}
	}

	mode := ops.CombineMedian
	if c.Combine == ops.CombineMean || c.Combine == ops.CombineSigma {
		mode = c.Combine
	}
	fmt.Fprintf(c.Log, "Combining %d registered frames in %s with %s:\n", len(registered), dir, mode)
	final, err := ops.Combine(registered, mode, 3, 3, c.MaxThreads, c.Log)
	if err != nil {
		return err
	}
	final.FileName = filepath.Join(dir, FinalFileName)
	final.Header.SetInt("NCOMBINE", int64(len(registered)))
	final.Header.SetString("REGMETHD", m.String())
	fmt.Fprintf(c.Log, "Writing %s pixel final image with %v to %s\n", final.DimensionsToString(), final.Stats, final.FileName)
	if err := final.WriteFile(final.FileName); err != nil {
		return fmt.Errorf("writing %s: %w", final.FileName, err)
	}
	if err := writeShifts(filepath.Join(dir, "regshifts.txt"), shifts); err != nil {
		return err
	}

	if c.WriteTIFF {
		if err := final.WritePreviewTIFF16ToFile(filepath.Join(dir, "final_im.tif")); err != nil {
			fmt.Fprintf(c.Log, "Warning: writing TIFF preview: %s\n", err.Error())
		}
	}
	if c.Plotter != nil {
		frames := []*fits.Image{final}
		vmin, vmax := plot.AutoRange(frames)
		if err := c.Plotter.PlotArray(plot.TypeFinalIm, frames, vmin, vmax, dir, "final_im.png"); err != nil {
			fmt.Fprintf(c.Log, "Warning: plotting final image: %s\n", err.Error())
		}
		if m == MethodSaturated && len(rots) > 0 {
			vmin, vmax = plot.AutoRange(rots)
			if err := c.Plotter.PlotArray(plot.TypeRots, rots, vmin, vmax, dir, "rots.png"); err != nil {
				fmt.Fprintf(c.Log, "Warning: plotting residuals: %s\n", err.Error())
			}
		}
	}
	return nil
}
