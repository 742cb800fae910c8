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


package register

import (
	"math"
	"testing"

	"github.com/mlnoga/aoreduce/internal/fits"
	"github.com/valyala/fastrand"
)

const testSize = 64

// Renders a Gaussian star at the given fractional position, clipped at the saturation level
func star(row, col, sigma, amp, sat float64) *fits.Image {
	img := fits.NewImageFromNaxisn([]int32{testSize, testSize}, nil)
	for r := 0; r < testSize; r++ {
		for c := 0; c < testSize; c++ {
			dr, dc := float64(r)-row, float64(c)-col
			v := 10 + amp*math.Exp(-(dr*dr+dc*dc)/(2*sigma*sigma))
			if v > sat {
				v = sat
			}
			noise := float64(fastrand.Uint32n(1000))/1000 - 0.5
			img.Data[r*testSize+c] = float32(v + 0.1*noise)
		}
	}
	img.Touch()
	return img
}

func checkShift(t *testing.T, got Shift, wantRow, wantCol, tol float64) {
	t.Helper()
	if math.Abs(got.Row-wantRow) > tol || math.Abs(got.Col-wantCol) > tol {
		t.Errorf("shift=%v; want (%+.3f, %+.3f) within %g", got, wantRow, wantCol, tol)
	}
}

func TestPeakIgnoresHotPixel(t *testing.T) {
	img := star(20, 25, 2.5, 500, math.Inf(1))
	img.Data[5*testSize+50] = 1e5
	img.Data[6*testSize+7] = float32(math.NaN())
	e := NewEngine(nil, 10)
	if row, col := e.Peak(img); row != 20 || col != 25 {
		t.Errorf("peak=(%d,%d); want (20,25)", row, col)
	}
	if s := e.Center(img); s.Row != 12 || s.Col != 7 {
		t.Errorf("center shift=%v; want (+12, +7)", s)
	}
}

func TestRegisterDefaultInteger(t *testing.T) {
	ref, img := star(32, 32, 2.5, 1000, math.Inf(1)), star(35, 29, 2.5, 1000, math.Inf(1))
	e := NewEngine(nil, 10)
	res, err := e.RegisterDefault(ref, img)
	if err != nil {
		t.Fatalf("register: %s", err)
	}
	checkShift(t, res.Shift, -3, 3, 0.1)
	if res.Ambiguous {
		t.Errorf("ambiguous; want unambiguous")
	}
	if res.Residuals.Width() != 21 || res.Residuals.Height() != 21 {
		t.Errorf("residual map %s; want 21x21", res.Residuals.DimensionsToString())
	}
	if res.Score < 0.99 {
		t.Errorf("score=%f; want at least 0.99", res.Score)
	}
}

func TestRegisterDefaultSubpixel(t *testing.T) {
	ref, img := star(32, 32, 2.5, 1000, math.Inf(1)), star(34.4, 30.7, 2.5, 1000, math.Inf(1))
	res, err := NewEngine(nil, 10).RegisterDefault(ref, img)
	if err != nil {
		t.Fatalf("register: %s", err)
	}
	checkShift(t, res.Shift, -2.4, 1.3, 0.3)

	// applying the shift aligns the peaks
	shifted, err := img.Shift(float32(res.Shift.Row), float32(res.Shift.Col), float32(math.NaN()))
	if err != nil {
		t.Fatalf("shift: %s", err)
	}
	e := NewEngine(nil, 10)
	if row, col := e.Peak(shifted); row != 32 || col != 32 {
		t.Errorf("shifted peak=(%d,%d); want (32,32)", row, col)
	}
}

func TestRegisterDefaultAmbiguous(t *testing.T) {
	ref, img := star(32, 32, 2.5, 1000, math.Inf(1)), star(32, 40, 2.5, 1000, math.Inf(1))
	res, err := NewEngine(nil, 3).RegisterDefault(ref, img)
	if err != nil {
		t.Fatalf("register: %s", err)
	}
	if !res.Ambiguous {
		t.Errorf("shift beyond search range not flagged ambiguous, shift=%v", res.Shift)
	}
}

func TestRegisterSaturated(t *testing.T) {
	ref, img := star(32, 32, 2.5, 5000, 1000), star(29.6, 34.3, 2.5, 5000, 1000)
	e := NewEngine(nil, 10)
	res, err := e.RegisterSaturated(ref, img)
	if err != nil {
		t.Fatalf("register: %s", err)
	}
	checkShift(t, res.Shift, 2.4, -2.3, 0.15)
	if res.Ambiguous {
		t.Errorf("ambiguous; want unambiguous")
	}
	if res.Residuals == nil || res.Residuals.Width() != 21 {
		t.Errorf("missing 21x21 residual map")
	}
}

func TestSymmetryCenter(t *testing.T) {
	img := star(30.25, 33.5, 3, 8000, 2000)
	row, col, _, _, _, err := NewEngine(nil, 5).SymmetryCenter(img)
	if err != nil {
		t.Fatalf("symmetry center: %s", err)
	}
	if math.Abs(row-30.25) > 0.1 || math.Abs(col-33.5) > 0.1 {
		t.Errorf("center=(%.3f, %.3f); want (30.25, 33.50)", row, col)
	}
}

func TestSymmetryCenterSubpixelSweep(t *testing.T) {
	e := NewEngine(nil, 10)
	for i := 0; i < 20; i++ {
		f := float64(i) * 0.05
		row, col, _, _, ambiguous, err := e.SymmetryCenter(star(32+f, 32, 2.5, 5000, 1000))
		if err != nil {
			t.Fatalf("symmetry center at +%.2f: %s", f, err)
		}
		if math.Abs(row-(32+f)) > 0.1 || math.Abs(col-32) > 0.1 || ambiguous {
			t.Errorf("center=(%.3f, %.3f) ambiguous %v; want (%.2f, 32.00)", row, col, ambiguous, 32+f)
		}
	}
}

func TestRegisterSaturatedHalfPixel(t *testing.T) {
	ref, img := star(30, 31, 2.5, 5000, 1000), star(32.5, 32.5, 2.5, 5000, 1000)
	res, err := NewEngine(nil, 10).RegisterSaturated(ref, img)
	if err != nil {
		t.Fatalf("register: %s", err)
	}
	checkShift(t, res.Shift, -2.5, -1.5, 0.15)
}

func TestParabolicOffset(t *testing.T) {
	// parabola -(x-0.25)^2 sampled at -1, 0, 1
	f := func(x float64) float64 { return -(x - 0.25) * (x - 0.25) }
	if off := parabolicOffset(f(-1), f(0), f(1)); math.Abs(off-0.25) > 1e-9 {
		t.Errorf("offset=%f; want 0.25", off)
	}
	if off := parabolicOffset(math.Inf(-1), 1, 0.5); off != 0 {
		t.Errorf("offset=%f with missing neighbor; want 0", off)
	}
}

func TestShapeMismatch(t *testing.T) {
	a := star(32, 32, 2.5, 1000, math.Inf(1))
	b := fits.NewImageFromNaxisn([]int32{10, 10}, nil)
	e := NewEngine(nil, 3)
	if _, err := e.RegisterDefault(a, b); err == nil {
		t.Errorf("default: shape mismatch without error")
	}
	if _, err := e.RegisterSaturated(a, b); err == nil {
		t.Errorf("saturated: shape mismatch without error")
	}
}
