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
	"bufio"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/mlnoga/aoreduce/internal/ops"
	"github.com/mlnoga/aoreduce/internal/ops/pre"
	"github.com/mlnoga/aoreduce/internal/ops/register"
)

// Name of the centered frame with the given index
func ShiftedFileName(dir string, index int) string {
	return filepath.Join(dir, fmt.Sprintf("sh%02d.fits", index))
}

// Calibrates the science frames with the given numbers as (raw - dark) / flat - sky,
// moves the peak of each to the frame center and writes the results as sDir/<filt>/sh%02d.fits,
// together with the applied shifts in shifts.txt. Returns the calibrated, unshifted cube
// and the shifts in frame order
func CreateImStack(c *ops.Context, rawDir, redDir, sDir string, nums []int, filterName string) (*pre.Cube, []register.Shift, error) {
	cube, err := pre.LoadCube(c, rawDir, nums)
	if err != nil {
		return nil, nil, err
	}
	head, err := c.Inst.Head(cube.Files[0])
	if err != nil {
		return nil, nil, err
	}
	filt := c.Inst.Filt(len(nums), head, filterName)
	expTime := float64(c.Inst.ExpTime(head))
	if expTime == 0 {
		expTime = float64(cube.Frames[0].Exposure)
	}

	dir := filepath.Join(sDir, filt)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, nil, err
	}
	if err := removeShifted(dir); err != nil {
		return nil, nil, err
	}

	cal, err := pre.LoadCalibration(c, redDir, sDir, expTime, filt, true)
	if err != nil {
		return nil, nil, err
	}

	e := newEngine(c, 0)
	shifts := make([]register.Shift, len(cube.Frames))
	for i, f := range cube.Frames {
		if err := cal.Apply(f); err != nil {
			return nil, nil, err
		}
		shifts[i] = e.Center(f)
		shifted, err := f.Shift(float32(shifts[i].Row), float32(shifts[i].Col), float32(math.NaN()))
		if err != nil {
			return nil, nil, err
		}
		shifted.Header.SetFloat("SHIFTROW", shifts[i].Row)
		shifted.Header.SetFloat("SHIFTCOL", shifts[i].Col)
		fileName := ShiftedFileName(dir, i)
		fmt.Fprintf(c.Log, "%d: Centered by %v, writing to %s\n", f.ID, shifts[i], fileName)
		if err := shifted.WriteFile(fileName); err != nil {
			return nil, nil, fmt.Errorf("%d: writing %s: %w", f.ID, fileName, err)
		}
	}

	if err := writeShifts(filepath.Join(dir, "shifts.txt"), shifts); err != nil {
		return nil, nil, err
	}
	return cube, shifts, nil
}

// Removes centered frames of earlier runs
func removeShifted(dir string) error {
	old, err := filepath.Glob(filepath.Join(dir, "sh[0-9][0-9]*.fits"))
	if err != nil {
		return err
	}
	for _, f := range old {
		if err := os.Remove(f); err != nil {
			return err
		}
	}
	return nil
}

// Writes one line per shift: index, row shift and column shift
func writeShifts(fileName string, shifts []register.Shift) error {
	f, err := os.Create(fileName)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for i, s := range shifts {
		fmt.Fprintf(w, "%d %g %g\n", i, s.Row, s.Col)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func newEngine(c *ops.Context, halfWidth int) *register.Engine {
	e := register.NewEngine(c.Log, halfWidth)
	if c.Window > 0 {
		e.Window = c.Window
	}
	if c.SatFraction > 0 {
		e.SatFraction = c.SatFraction
	}
	return e
}
