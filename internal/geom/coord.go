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


package geom

import (
	"fmt"
)

// A 2-dimensional point with floating point coordinates. X is the column, Y the row.
type Point2D struct {
	X float32
	Y float32
}

// A 2D affine coordinate transformation
//   x' = a*x + b*y + c
//   y' = d*x + e*y + f
type Transform2D struct {
	A float32
	B float32
	C float32
	D float32
	E float32
	F float32
}

func (p Point2D) String() string {
	return fmt.Sprintf("(%.2f, %.2f)", p.X, p.Y)
}

func (t Transform2D) String() string {
	return fmt.Sprintf("x'=%.5gx %+.5gy %+.3g, y'=%.5gx %+.5gy %+.3g",
		t.A, t.B, t.C, t.D, t.E, t.F)
}

// Returns a pure translation which moves a point by dRow rows and dCol columns
func NewTranslation2D(dRow, dCol float32) Transform2D {
	return Transform2D{1, 0, dCol, 0, 1, dRow}
}

// Apply given 2D transformation to the given coordinates
func (t *Transform2D) Apply(p Point2D) (pP Point2D) {
	xP := t.A*p.X + t.B*p.Y + t.C
	yP := t.D*p.X + t.E*p.Y + t.F
	return Point2D{xP, yP}
}

// Invert a given 2D transformation. Returns error if the matrix is singular
func (t *Transform2D) Invert() (inv Transform2D, err error) {
	det := t.A*t.E - t.B*t.D
	if det < 1e-8 && -det < 1e-8 {
		return Transform2D{}, fmt.Errorf("matrix has no inverse, determinant=%g", det)
	}
	return Transform2D{
		A: t.E / det,
		B: -t.B / det,
		C: (t.B*t.F - t.C*t.E) / det,
		D: -t.D / det,
		E: t.A / det,
		F: (t.C*t.D - t.A*t.F) / det,
	}, nil
}
