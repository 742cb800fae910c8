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


// Package stack centers, registers and combines calibrated science frames.
package stack

import (
	"errors"
	"fmt"
	"strings"
)

// Returned for registration method names other than default and saturated
var ErrUnknownMethod = errors.New("unknown registration method")

// Registration method
type Method int

const (
	MethodDefault   Method = iota // cross-correlation, for unsaturated stars
	MethodSaturated               // rotational symmetry, for stars with saturated cores
)

func (m Method) String() string {
	switch m {
	case MethodDefault:
		return "default"
	case MethodSaturated:
		return "saturated"
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// Parses a registration method name, ignoring case and surrounding whitespace.
// The empty string selects the default method
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return MethodDefault, nil
	case "saturated":
		return MethodSaturated, nil
	}
	return MethodDefault, fmt.Errorf("%w: '%s', use default or saturated", ErrUnknownMethod, s)
}
