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
	"fmt"
	"math"

	"github.com/mlnoga/aoreduce/internal/fits"
)

var nan32 = float32(math.NaN())

// Registers an image against the reference by normalized cross-correlation of a window
// around the reference peak, over all integer shifts within the search range.
// A parabolic fit through the neighbors of the best shift refines each axis to sub-pixel
func (e *Engine) RegisterDefault(ref, img *fits.Image) (Result, error) {
	if err := ref.CheckSameShape(img); err != nil {
		return Result{}, err
	}
	pr, pc := e.Peak(ref)
	h := e.HalfWidth
	size := 2*h + 1
	scores := make([]float64, size*size)
	residuals := make([]float32, size*size)

	best, bestDr, bestDc := math.Inf(-1), 0, 0
	for dr := -h; dr <= h; dr++ {
		for dc := -h; dc <= h; dc++ {
			s := e.ncc(ref, img, pr, pc, dr, dc)
			idx := (dr+h)*size + dc + h
			scores[idx] = s
			residuals[idx] = float32(1 - s)
			if s > best {
				best, bestDr, bestDc = s, dr, dc
			}
		}
	}
	if math.IsInf(best, -1) {
		return Result{}, fmt.Errorf("%d: no overlap with reference %d for cross-correlation", img.ID, ref.ID)
	}

	res := Result{
		Shift:     Shift{Row: float64(bestDr), Col: float64(bestDc)},
		Score:     best,
		Residuals: residualImage(residuals, h),
	}
	if bestDr == -h || bestDr == h || bestDc == -h || bestDc == h {
		res.Ambiguous = true
		fmt.Fprintf(e.Log, "%d: Warning: correlation maximum at search boundary %d, shift %v is ambiguous\n", img.ID, h, res.Shift)
	}

	score := func(dr, dc int) float64 {
		if dr < -h || dr > h || dc < -h || dc > h {
			return math.Inf(-1)
		}
		return scores[(dr+h)*size+dc+h]
	}
	res.Shift.Row += parabolicOffset(score(bestDr-1, bestDc), best, score(bestDr+1, bestDc))
	res.Shift.Col += parabolicOffset(score(bestDr, bestDc-1), best, score(bestDr, bestDc+1))
	return res, nil
}

// Returns the vertex offset of the parabola through (-1,sm), (0,s0), (1,sp),
// limited to half a pixel. Zero if a neighbor is missing or the curvature is not negative
func parabolicOffset(sm, s0, sp float64) float64 {
	if math.IsInf(sm, 0) || math.IsInf(sp, 0) || math.IsNaN(sm) || math.IsNaN(sp) {
		return 0
	}
	denom := sm - 2*s0 + sp
	if denom >= 0 {
		return 0
	}
	off := 0.5 * (sm - sp) / denom
	if off > 0.5 {
		off = 0.5
	} else if off < -0.5 {
		off = -0.5
	}
	return off
}

// Normalized cross-correlation between the reference window around (pr, pc) and
// the image moved by (dr, dc). Pixel pairs with NaNs or outside the image are skipped
func (e *Engine) ncc(ref, img *fits.Image, pr, pc, dr, dc int) float64 {
	w := e.Window
	var n, sa, sb, saa, sbb, sab float64
	for r := pr - w; r <= pr+w; r++ {
		for c := pc - w; c <= pc+w; c++ {
			a, b := at(ref, r, c), at(img, r-dr, c-dc)
			if a != a || b != b {
				continue
			}
			fa, fb := float64(a), float64(b)
			n++
			sa += fa
			sb += fb
			saa += fa * fa
			sbb += fb * fb
			sab += fa * fb
		}
	}
	if n < 2 {
		return math.Inf(-1)
	}
	cov := sab - sa*sb/n
	va, vb := saa-sa*sa/n, sbb-sb*sb/n
	if va <= 0 || vb <= 0 {
		return math.Inf(-1)
	}
	return cov / math.Sqrt(va*vb)
}
