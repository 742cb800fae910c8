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


package fits

import (
	"bytes"
	"compress/gzip"
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestImage(width, height int32) *Image {
	img := NewImageFromNaxisn([]int32{width, height}, nil)
	for i := range img.Data {
		img.Data[i] = float32(i)
	}
	img.Touch()
	return img
}

func TestWriteReadRoundTrip(t *testing.T) {
	img := newTestImage(5, 3)
	img.Data[7] = float32(math.NaN())
	long := "[" + strings.Repeat("1108, ", 30) + "1109]"
	img.Header.SetString("DATAFILE", long)
	img.Header.SetString("OBJECT", "HD 1160 'b'")
	img.Header.SetFloat("ITIME", 1.5)
	img.Header.SetInt("NCOMBINE", 4)
	img.Header.SetBool("FLIPPED", true)
	img.Header.History = append(img.Header.History, "created by test")

	fileName := filepath.Join(t.TempDir(), "rt.fits")
	if err := img.WriteFile(fileName); err != nil {
		t.Fatalf("write: %s", err)
	}
	fi, err := os.Stat(fileName)
	if err != nil {
		t.Fatalf("stat: %s", err)
	}
	if fi.Size()%int64(fitsBlockSize) != 0 {
		t.Errorf("file size=%d; want multiple of %d", fi.Size(), fitsBlockSize)
	}

	got, err := NewImageFromFile(fileName, 0, ioutil.Discard)
	if err != nil {
		t.Fatalf("read: %s", err)
	}
	if !EqualInt32Slice(got.Naxisn, img.Naxisn) {
		t.Fatalf("naxisn=%v; want %v", got.Naxisn, img.Naxisn)
	}
	for i, v := range img.Data {
		g := got.Data[i]
		if math.IsNaN(float64(v)) {
			if !math.IsNaN(float64(g)) {
				t.Errorf("data[%d]=%f; want NaN", i, g)
			}
		} else if g != v {
			t.Errorf("data[%d]=%f; want %f", i, g, v)
		}
	}
	if s, _ := got.Header.GetString("DATAFILE"); s != long {
		t.Errorf("DATAFILE=%q; want %q", s, long)
	}
	if s, _ := got.Header.GetString("OBJECT"); s != "HD 1160 'b'" {
		t.Errorf("OBJECT=%q; want %q", s, "HD 1160 'b'")
	}
	if v, _ := got.Header.GetFloat("ITIME"); v != 1.5 {
		t.Errorf("ITIME=%f; want 1.5", v)
	}
	if v := got.Header.Ints["NCOMBINE"]; v != 4 {
		t.Errorf("NCOMBINE=%d; want 4", v)
	}
	if !got.Header.Bools["FLIPPED"] {
		t.Errorf("FLIPPED missing")
	}
	if len(got.Header.History) != 1 || got.Header.History[0] != "created by test" {
		t.Errorf("history=%v; want [created by test]", got.Header.History)
	}
	want := []string{"DATAFILE", "OBJECT", "ITIME", "NCOMBINE", "FLIPPED"}
	if keys := got.Header.OrderedKeys(); strings.Join(keys, ",") != strings.Join(want, ",") {
		t.Errorf("keys=%v; want %v", keys, want)
	}
}

func TestReadGzip(t *testing.T) {
	img := newTestImage(4, 4)
	buf := bytes.Buffer{}
	if err := img.Write(&buf); err != nil {
		t.Fatalf("write: %s", err)
	}
	fileName := filepath.Join(t.TempDir(), "frame.fits.gz")
	f, err := os.Create(fileName)
	if err != nil {
		t.Fatalf("create: %s", err)
	}
	gz := gzip.NewWriter(f)
	gz.Write(buf.Bytes())
	gz.Close()
	f.Close()

	got, err := NewImageFromFile(fileName, 3, ioutil.Discard)
	if err != nil {
		t.Fatalf("read: %s", err)
	}
	if got.Data[15] != 15 {
		t.Errorf("data[15]=%f; want 15", got.Data[15])
	}
}

func TestReadInt16WithBzero(t *testing.T) {
	sb := strings.Builder{}
	writeBool(&sb, "SIMPLE", true, "")
	writeInt(&sb, "BITPIX", 16, "")
	writeInt(&sb, "NAXIS", 2, "")
	writeInt(&sb, "NAXIS1", 2, "")
	writeInt(&sb, "NAXIS2", 1, "")
	writeFloat(&sb, "BZERO", 32768, "")
	writeFloat(&sb, "EXPTIME", 2.5, "")
	writeEnd(&sb)
	sb.WriteString(strings.Repeat(" ", fitsBlockSize-sb.Len()))
	data := []byte{0x80, 0x00, 0x7f, 0xff} // -32768 and 32767
	raw := append([]byte(sb.String()), data...)
	raw = append(raw, make([]byte, fitsBlockSize-len(data))...)

	img := NewImage()
	if err := img.Read(bytes.NewReader(raw), true, ioutil.Discard); err != nil {
		t.Fatalf("read: %s", err)
	}
	if img.Data[0] != 0 || img.Data[1] != 65535 {
		t.Errorf("data=%v; want [0 65535]", img.Data)
	}
	if img.Exposure != 2.5 {
		t.Errorf("exposure=%f; want 2.5", img.Exposure)
	}
	if img.Header.Has("BZERO") {
		t.Errorf("BZERO still in header")
	}
}

func TestIsFITSName(t *testing.T) {
	for name, want := range map[string]bool{
		"s0001.fits": true, "S0001.FIT": true, "a.fts.gz": true, "a.fits.gzip": true,
		"a.png": false, "a.fits.txt": false, "fits": false,
	} {
		if got := IsFITSName(name); got != want {
			t.Errorf("IsFITSName(%q)=%v; want %v", name, got, want)
		}
	}
}

func TestShiftIntegral(t *testing.T) {
	img := newTestImage(6, 5)
	img.Data[0] = float32(math.NaN())
	res, err := img.Shift(1, 2, float32(math.NaN()))
	if err != nil {
		t.Fatalf("shift: %s", err)
	}
	for row := int32(0); row < 5; row++ {
		for col := int32(0); col < 6; col++ {
			got := res.At(row, col)
			if row < 1 || col < 2 || (row == 1 && col == 2) {
				if !math.IsNaN(float64(got)) {
					t.Errorf("(%d,%d)=%f; want NaN", row, col, got)
				}
				continue
			}
			if want := img.At(row-1, col-2); got != want {
				t.Errorf("(%d,%d)=%f; want %f", row, col, got, want)
			}
		}
	}
}

func TestShiftFractional(t *testing.T) {
	img := newTestImage(4, 4)
	res, err := img.Shift(0, 0.5, 0)
	if err != nil {
		t.Fatalf("shift: %s", err)
	}
	// linear ramp along columns stays linear
	if got := res.At(2, 2); math.Abs(float64(got-9.5)) > 1e-5 {
		t.Errorf("(2,2)=%f; want 9.5", got)
	}
}

func TestOrientation(t *testing.T) {
	img := newTestImage(3, 2)
	img.Rotate180()
	if img.Data[0] != 5 || img.Data[5] != 0 {
		t.Errorf("rotate180=%v", img.Data)
	}
	img = newTestImage(3, 2)
	img.FlipVertical()
	if img.Data[0] != 3 || img.Data[3] != 0 {
		t.Errorf("flipVertical=%v", img.Data)
	}
	img = newTestImage(4, 4)
	if err := img.Crop(1, 1, 2, 2); err != nil {
		t.Fatalf("crop: %s", err)
	}
	if img.Data[0] != 5 || img.Data[3] != 10 || img.Width() != 2 {
		t.Errorf("crop=%v", img.Data)
	}
	if err := img.Crop(1, 1, 2, 2); err == nil {
		t.Errorf("crop outside image without error")
	}
	cube := NewImageFromNaxisn([]int32{2, 2, 3}, nil)
	cube.FirstPlane()
	if len(cube.Data) != 4 || len(cube.Naxisn) != 2 {
		t.Errorf("first plane size=%d naxisn=%v", len(cube.Data), cube.Naxisn)
	}
}

func TestSubtractDivide(t *testing.T) {
	a, b := newTestImage(3, 3), newTestImage(3, 3)
	if err := a.Subtract(b); err != nil {
		t.Fatalf("subtract: %s", err)
	}
	if a.Data[8] != 0 {
		t.Errorf("subtract=%f; want 0", a.Data[8])
	}
	if err := a.Divide(newTestImage(4, 2)); err == nil {
		t.Errorf("divide with mismatching shape without error")
	}
	c := newTestImage(2, 1)
	d := NewImageFromNaxisn([]int32{2, 1}, []float32{2, 0})
	if err := c.Divide(d); err != nil {
		t.Fatalf("divide: %s", err)
	}
	if c.Data[0] != 0 || !math.IsInf(float64(c.Data[1]), 1) {
		t.Errorf("divide=%v", c.Data)
	}
}
