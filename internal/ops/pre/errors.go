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


// Package pre loads raw frames and builds the master calibration frames.
package pre

import (
	"errors"
	"fmt"

	"github.com/mlnoga/aoreduce/internal/fits"
)

var (
	ErrFrameNotFound     = errors.New("frame not found")
	ErrUnsupportedFormat = errors.New("unsupported file format, only FITS is supported")
	ErrDarkNotFound      = errors.New("dark not found, check that there is a dark for every exposure time used")
	ErrFlatNotFound      = errors.New("flat not found, check that there is a flat for every filter used")
	ErrSkyNotFound       = errors.New("sky not found")
	ErrShapeMismatch     = errors.New("frame shapes differ")
)

// Checks that both images have the same dimensions
func checkShape(a, b *fits.Image) error {
	if err := a.CheckSameShape(b); err != nil {
		return fmt.Errorf("%w: %s", ErrShapeMismatch, err.Error())
	}
	return nil
}
