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
	"gonum.org/v1/gonum/optimize"
)

// Registers an image against the reference by locating the center of rotational symmetry
// of the star in both frames. Saturated pixels are excluded, so this works for stars with
// a flat-topped core where cross-correlation fails. Returns the residual map of the image
func (e *Engine) RegisterSaturated(ref, img *fits.Image) (Result, error) {
	if err := ref.CheckSameShape(img); err != nil {
		return Result{}, err
	}
	refRow, refCol, _, _, _, err := e.SymmetryCenter(ref)
	if err != nil {
		return Result{}, err
	}
	row, col, residual, rots, ambiguous, err := e.SymmetryCenter(img)
	if err != nil {
		return Result{}, err
	}
	res := Result{
		Shift:     Shift{Row: refRow - row, Col: refCol - col},
		Score:     residual,
		Residuals: rots,
		Ambiguous: ambiguous,
	}
	if res.Ambiguous {
		fmt.Fprintf(e.Log, "%d: Warning: symmetry minimum at search boundary %d, shift %v is ambiguous\n", img.ID, e.HalfWidth, res.Shift)
	}
	return res, nil
}

// Symmetry residual evaluation for one frame
type symmetry struct {
	img      *fits.Image
	satLevel float32
	rIn      float64
	rOut     float64
}

// Finds the center of rotational symmetry of the star in the image. A grid search over
// the search range around the centroid of the saturated core yields the residual map,
// which is refined to sub-pixel accuracy, then polished by Nelder-Mead. Ambiguous is set if the
// best grid point lies on the boundary of the search range
func (e *Engine) SymmetryCenter(img *fits.Image) (row, col, residual float64, rots *fits.Image, ambiguous bool, err error) {
	pr, pc := e.Peak(img)
	max := float32(-math.MaxFloat32)
	w := e.Window
	for r := pr - w; r <= pr+w; r++ {
		for c := pc - w; c <= pc+w; c++ {
			if v := at(img, r, c); v == v && v > max {
				max = v
			}
		}
	}
	if max <= 0 {
		return 0, 0, 0, nil, false, fmt.Errorf("%d: no positive signal around peak (%d,%d)", img.ID, pr, pc)
	}
	satLevel := e.SatFraction * max

	// centroid of the core
	sumR, sumC, n := 0.0, 0.0, 0.0
	for r := pr - w; r <= pr+w; r++ {
		for c := pc - w; c <= pc+w; c++ {
			if v := at(img, r, c); v == v && v >= satLevel {
				sumR, sumC, n = sumR+float64(r), sumC+float64(c), n+1
			}
		}
	}
	r0, c0 := int(math.Round(sumR/n)), int(math.Round(sumC/n))

	s := &symmetry{
		img:      img,
		satLevel: satLevel,
		rIn:      math.Sqrt(n / math.Pi),
		rOut:     float64(w),
	}

	h := e.HalfWidth
	size := 2*h + 1
	values := make([]float32, size*size)
	best, bestR, bestC := math.Inf(1), r0, c0
	for dr := -h; dr <= h; dr++ {
		for dc := -h; dc <= h; dc++ {
			v := s.residual(float64(r0+dr), float64(c0+dc))
			values[(dr+h)*size+dc+h] = float32(v)
			if v < best {
				best, bestR, bestC = v, r0+dr, c0+dc
			}
		}
	}
	if math.IsInf(best, 1) {
		return 0, 0, 0, nil, false, fmt.Errorf("%d: no unsaturated pixels for symmetry fit", img.ID)
	}
	rots = residualImage(values, h)
	ambiguous = bestR == r0-h || bestR == r0+h || bestC == c0-h || bestC == c0+h

	row, col, residual = s.refine(bestR, bestC, best, values, bestR-r0+h, bestC-c0+h, size)
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			v := s.residual(x[0], x[1])
			if math.IsInf(v, 1) {
				return math.MaxFloat64
			}
			return v
		},
	}
	result, err := optimize.Minimize(problem, []float64{row, col}, nil, &optimize.NelderMead{SimplexSize: refineStep})
	if err != nil {
		fmt.Fprintf(e.Log, "%d: Warning: sub-pixel refinement failed: %s\n", img.ID, err.Error())
	} else if result.F < residual && math.Abs(result.X[0]-float64(bestR)) <= 1 && math.Abs(result.X[1]-float64(bestC)) <= 1 {
		row, col, residual = result.X[0], result.X[1], result.F
	}
	return row, col, residual, rots, ambiguous, nil
}

// Step of the sub-pixel search grid around the parabolic estimate
const refineStep = 0.05

// Refines the best grid point (bestR, bestC) at index (gr, gc) of the residual map.
// The parabolas through the neighboring residuals on each axis give a sub-pixel estimate,
// then a fine grid of refineStep within half a pixel of it picks the lowest residual.
// The residual is only piecewise smooth, as pixels enter and leave the annulus
func (s *symmetry) refine(bestR, bestC int, best float64, values []float32, gr, gc, size int) (row, col, residual float64) {
	row, col, residual = float64(bestR), float64(bestC), best
	grid := func(r, c int) float64 {
		if r < 0 || c < 0 || r >= size || c >= size {
			return math.Inf(1)
		}
		return float64(values[r*size+c])
	}
	seedR := row + parabolicOffset(-grid(gr-1, gc), -best, -grid(gr+1, gc))
	seedC := col + parabolicOffset(-grid(gr, gc-1), -best, -grid(gr, gc+1))

	n := int(math.Round(0.5 / refineStep))
	for i := -n; i <= n; i++ {
		for j := -n; j <= n; j++ {
			r, c := seedR+float64(i)*refineStep, seedC+float64(j)*refineStep
			if v := s.residual(r, c); v < residual {
				row, col, residual = r, c, v
			}
		}
	}
	return row, col, residual
}

// Mean squared difference between pixels in the annulus around the given center and their
// point reflections through it. Saturated pixels and NaNs on either side are skipped.
// Returns +Inf if no pairs remain
func (s *symmetry) residual(cr, cc float64) float64 {
	rOut := int(math.Ceil(s.rOut))
	rIn2, rOut2 := s.rIn*s.rIn, s.rOut*s.rOut
	r0, c0 := int(math.Floor(cr)), int(math.Floor(cc))
	sum, n := 0.0, 0
	for r := r0 - rOut; r <= r0+rOut+1; r++ {
		for c := c0 - rOut; c <= c0+rOut+1; c++ {
			dr, dc := float64(r)-cr, float64(c)-cc
			d2 := dr*dr + dc*dc
			if d2 < rIn2 || d2 > rOut2 {
				continue
			}
			a := at(s.img, r, c)
			if a != a || a >= s.satLevel {
				continue
			}
			b := s.img.Sample(float32(cr-dr), float32(cc-dc))
			if b != b || b >= s.satLevel {
				continue
			}
			d := float64(a - b)
			sum += d * d
			n++
		}
	}
	if n == 0 {
		return math.Inf(1)
	}
	return sum / float64(n)
}
