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


package plot

import (
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// Value scalings
const (
	ScalingLinear = "linear"
	ScalingLog    = "log"
	ScalingSqrt   = "sqrt"
)

// Maps a normalized value in [0,1] onto [0,1]
type scaling func(t float64) float64

var scalings = map[string]scaling{
	ScalingLinear: func(t float64) float64 { return t },
	ScalingLog:    func(t float64) float64 { return math.Log10(1+999*t) / 3 },
	ScalingSqrt:   math.Sqrt,
}

// A colormap given by equidistant anchor colors, blended in CIE L*a*b* space
type colormap []colorful.Color

func mustHex(s string) colorful.Color {
	c, err := colorful.Hex(s)
	if err != nil {
		panic(err)
	}
	return c
}

func hexes(ss ...string) colormap {
	res := make(colormap, len(ss))
	for i, s := range ss {
		res[i] = mustHex(s)
	}
	return res
}

var colormaps = map[string]colormap{
	"plasma":  hexes("#0d0887", "#6a00a8", "#b12a90", "#e16462", "#fca636", "#f0f921"),
	"viridis": hexes("#440154", "#414487", "#2a788e", "#22a884", "#7ad151", "#fde725"),
	"magma":   hexes("#000004", "#3b0f70", "#8c2981", "#de4968", "#fe9f6d", "#fcfdbf"),
	"inferno": hexes("#000004", "#420a68", "#932667", "#dd513a", "#fca50a", "#fcffa4"),
	"gray":    hexes("#000000", "#ffffff"),
}

// Color for bad (NaN) values
var badColor = colorful.Color{R: 1, G: 1, B: 1}

// Returns the color for a normalized value in [0,1]
func (cm colormap) at(t float64) colorful.Color {
	if t <= 0 {
		return cm[0]
	}
	if t >= 1 {
		return cm[len(cm)-1]
	}
	pos := t * float64(len(cm)-1)
	i := int(pos)
	return cm[i].BlendLab(cm[i+1], pos-float64(i)).Clamped()
}
