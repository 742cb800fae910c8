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


package ops

import (
	"errors"
	"fmt"
	"testing"

	"github.com/mlnoga/aoreduce/internal/fits"
)

var errTest = errors.New("test failure")

func TestMaterializeAllKeepsOrder(t *testing.T) {
	ins := make([]Promise, 10)
	for i := range ins {
		id := i
		ins[i] = func() (*fits.Image, error) {
			if id == 3 || id == 7 {
				return nil, fmt.Errorf("%d: %w", id, errTest)
			}
			f := fits.NewImageFromNaxisn([]int32{1, 1}, nil)
			f.ID = id
			return f, nil
		}
	}
	outs, err := MaterializeAll(ins, 4)
	if len(outs) != 8 {
		t.Fatalf("outputs=%d; want 8", len(outs))
	}
	for i := 1; i < len(outs); i++ {
		if outs[i].ID <= outs[i-1].ID {
			t.Errorf("output %d has id %d after %d", i, outs[i].ID, outs[i-1].ID)
		}
	}
	if !errors.Is(err, errTest) {
		t.Errorf("err=%v; want errTest", err)
	}
	if err.Error() != "3: test failure; 7: test failure" {
		t.Errorf("err=%q; want joined errors", err.Error())
	}
}

func TestJoinErrors(t *testing.T) {
	if err := JoinErrors([]error{nil, nil}); err != nil {
		t.Errorf("err=%v; want nil", err)
	}
	if err := JoinErrors([]error{nil, errTest}); err != errTest {
		t.Errorf("err=%v; want errTest unchanged", err)
	}
}

func TestIsPathAllowed(t *testing.T) {
	for p, want := range map[string]bool{"raw/s0001.fits": true, "/etc/passwd": false, "../x": false} {
		if got := IsPathAllowed(p); got != want {
			t.Errorf("IsPathAllowed(%q)=%v; want %v", p, got, want)
		}
	}
}
