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


package stats

import (
	"math"
	"testing"

	"github.com/valyala/fastrand"
)

func TestStatsSkipNaN(t *testing.T) {
	nan := float32(math.NaN())
	data := []float32{1, nan, 2, 3, nan, 4}
	s := NewStats(data, 3)
	if s.Min() != 1 || s.Max() != 4 {
		t.Errorf("min,max=%f,%f; want 1,4", s.Min(), s.Max())
	}
	if s.Mean() != 2.5 {
		t.Errorf("mean=%f; want 2.5", s.Mean())
	}
	if s.Location() != 2.5 {
		t.Errorf("location=%f; want 2.5", s.Location())
	}
	if data[1] == data[1] {
		t.Errorf("input data was modified")
	}
}

func TestScaleOfGaussian(t *testing.T) {
	rng := fastrand.RNG{}
	data := make([]float32, 20000)
	for i := range data {
		// sum of uniforms, approximately gaussian with sigma 1
		sum := float32(0)
		for j := 0; j < 12; j++ {
			sum += float32(rng.Uint32n(1<<20)) / (1 << 20)
		}
		data[i] = sum - 6 + 100
	}
	s := NewStats(data, 200)
	if d := math.Abs(float64(s.Location() - 100)); d > 0.05 {
		t.Errorf("location=%f; want 100", s.Location())
	}
	if d := math.Abs(float64(s.Scale() - 1)); d > 0.1 {
		t.Errorf("scale=%f; want 1", s.Scale())
	}
	if d := math.Abs(float64(s.StdDev() - 1)); d > 0.1 {
		t.Errorf("stddev=%f; want 1", s.StdDev())
	}
}

func TestPercentileRange(t *testing.T) {
	data := make([]float32, 1000)
	for i := range data {
		data[i] = float32(i)
	}
	lo, hi := PercentileRange(data, 0.01, 0.01, 1000)
	if lo < 5 || lo > 15 {
		t.Errorf("lo=%f; want about 10", lo)
	}
	if hi < 984 || hi > 994 {
		t.Errorf("hi=%f; want about 989", hi)
	}
}
