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


package pre

import (
	"errors"
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/mlnoga/aoreduce/internal/fits"
	"github.com/mlnoga/aoreduce/internal/inst"
	"github.com/mlnoga/aoreduce/internal/ops"
	"github.com/valyala/fastrand"
)

const testWidth, testHeight = 16, 12

func newTestContext() *ops.Context {
	c := ops.NewContext(ioutil.Discard, inst.NewShARCS())
	c.MaxThreads = 2
	return c
}

// Writes a raw ShARCS frame with the given pixel function and header values
func writeRaw(t *testing.T, dir string, n int, pixel func(i int) float32, itime float64, filter string) {
	t.Helper()
	f := fits.NewImageFromNaxisn([]int32{testWidth, testHeight}, nil)
	for i := range f.Data {
		f.Data[i] = pixel(i)
	}
	f.Header.SetString("FILT1NAM", filter)
	f.Header.SetFloat("ITIME", itime)
	if err := f.WriteFile(filepath.Join(dir, inst.NewShARCS().FileName(n))); err != nil {
		t.Fatalf("write raw %d: %s", n, err)
	}
}

func constant(v float32) func(int) float32 { return func(int) float32 { return v } }

func TestMakeFileList(t *testing.T) {
	got := MakeFileList("raw", []int{1108, 1109}, inst.NewShARCS())
	if len(got) != 2 || got[0] != filepath.Join("raw", "s1108.fits") || got[1] != filepath.Join("raw", "s1109.fits") {
		t.Errorf("file list=%v", got)
	}
	if s := FormatNums([]int{1108, 1109, 1110}); s != "[1108, 1109, 1110]" {
		t.Errorf("FormatNums=%s; want [1108, 1109, 1110]", s)
	}
}

func TestReadImCubeErrors(t *testing.T) {
	dir := t.TempDir()
	writeRaw(t, dir, 1, constant(1), 1, "J")
	if _, err := ReadImCube([]string{filepath.Join(dir, "s0001.fits"), filepath.Join(dir, "s0002.png")}, ioutil.Discard); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("err=%v; want ErrUnsupportedFormat", err)
	}
	if _, err := ReadImCube([]string{filepath.Join(dir, "s0001.fits"), filepath.Join(dir, "s0002.fits")}, ioutil.Discard); !errors.Is(err, ErrFrameNotFound) {
		t.Errorf("err=%v; want ErrFrameNotFound", err)
	}

	other := fits.NewImageFromNaxisn([]int32{4, 4}, nil)
	if err := other.WriteFile(filepath.Join(dir, "s0002.fits")); err != nil {
		t.Fatalf("write: %s", err)
	}
	if _, err := ReadImCube([]string{filepath.Join(dir, "s0001.fits"), filepath.Join(dir, "s0002.fits")}, ioutil.Discard); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("err=%v; want ErrShapeMismatch", err)
	}
}

func TestCreateDarksMedian(t *testing.T) {
	raw, red := t.TempDir(), t.TempDir()
	values := map[int]float32{1: 10, 2: 30, 3: 20, 4: 40}
	for n, v := range values {
		writeRaw(t, raw, n, constant(v), 29.7, "Unknown")
	}
	c := newTestContext()
	dark, err := CreateDarks(c, raw, red, []int{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("create darks: %s", err)
	}
	for i, v := range dark.Data {
		if v != 25 {
			t.Fatalf("dark[%d]=%f; want 25", i, v)
		}
	}

	stored, err := OpenDarks(filepath.Join(red, "dark_30sec.fits"), ioutil.Discard)
	if err != nil {
		t.Fatalf("open dark: %s", err)
	}
	if s, _ := stored.Header.GetString("DATAFILE"); s != "[1, 2, 3, 4]" {
		t.Errorf("DATAFILE=%s; want [1, 2, 3, 4]", s)
	}

	shuffled, err := CreateDarks(c, raw, red, []int{3, 1, 4, 2})
	if err != nil {
		t.Fatalf("create darks: %s", err)
	}
	for i := range dark.Data {
		if shuffled.Data[i] != dark.Data[i] {
			t.Fatalf("dark[%d]=%f after reordering; want %f", i, shuffled.Data[i], dark.Data[i])
		}
	}
}

func TestCreateFlatsTestMode(t *testing.T) {
	raw, red := t.TempDir(), t.TempDir()
	for i, n := range []int{1108, 1109, 1110} {
		writeRaw(t, raw, n, constant(float32(100*(i+1))), 1.5, "Unknown")
	}
	flat, err := CreateFlats(newTestContext(), raw, red, []int{1108, 1109, 1110}, "", "Ks", true)
	if err != nil {
		t.Fatalf("create flats: %s", err)
	}
	for i, v := range flat.Data {
		if v != 1 {
			t.Fatalf("flat[%d]=%f; want 1", i, v)
		}
	}
	stored, err := OpenFlats(filepath.Join(red, "flat_Ks.fits"), ioutil.Discard)
	if err != nil {
		t.Fatalf("open flat: %s", err)
	}
	if s, _ := stored.Header.GetString("DATAFILE"); s != "[1108, 1109, 1110]" {
		t.Errorf("DATAFILE=%s; want [1108, 1109, 1110]", s)
	}
}

func TestCreateFlatsMedianIsOne(t *testing.T) {
	raw, red := t.TempDir(), t.TempDir()
	c := newTestContext()
	for n := 1; n <= 3; n++ {
		writeRaw(t, raw, n, constant(5), 2, "J")
	}
	if _, err := CreateDarks(c, raw, red, []int{1, 2, 3}); err != nil {
		t.Fatalf("create darks: %s", err)
	}
	for n := 11; n <= 15; n++ {
		scale := float32(n) * 100
		writeRaw(t, raw, n, func(i int) float32 {
			return 5 + scale*(0.8+0.4*float32(i%testWidth)/testWidth) + float32(fastrand.Uint32n(10))
		}, 2, "J")
	}
	flat, err := CreateFlats(c, raw, red, []int{11, 12, 13, 14, 15}, DarkFileName(red, 2), "", false)
	if err != nil {
		t.Fatalf("create flats: %s", err)
	}
	if med := flat.Median(); math.Abs(float64(med-1)) > 1e-5 {
		t.Errorf("flat median=%f; want 1", med)
	}
	if _, err := os.Stat(filepath.Join(red, "flat_J.fits")); err != nil {
		t.Errorf("flat_J.fits not written: %s", err)
	}
}

func TestCreateFlatsMissingDark(t *testing.T) {
	raw, red := t.TempDir(), t.TempDir()
	writeRaw(t, raw, 1, constant(100), 1, "H")
	_, err := CreateFlats(newTestContext(), raw, red, []int{1}, filepath.Join(red, "dark_1sec.fits"), "", false)
	if !errors.Is(err, ErrDarkNotFound) {
		t.Fatalf("err=%v; want ErrDarkNotFound", err)
	}
	if _, err := os.Stat(filepath.Join(red, "flat_H.fits")); !os.IsNotExist(err) {
		t.Errorf("flat written despite missing dark")
	}
}

func TestOpenCalibrationFormats(t *testing.T) {
	if _, err := OpenDarks("dark_1sec.png", ioutil.Discard); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("dark err=%v; want ErrUnsupportedFormat", err)
	}
	if _, err := OpenFlats("flat_J.jpg", ioutil.Discard); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("flat err=%v; want ErrUnsupportedFormat", err)
	}
	if _, err := OpenFlats(filepath.Join(t.TempDir(), "flat_J.fits"), ioutil.Discard); !errors.Is(err, ErrFlatNotFound) {
		t.Errorf("flat err=%v; want ErrFlatNotFound", err)
	}
}

func TestCreateSkies(t *testing.T) {
	raw, red := t.TempDir(), t.TempDir()
	c := newTestContext()
	for n := 1; n <= 3; n++ {
		writeRaw(t, raw, n, constant(10), 5, "Ks")
	}
	for n := 11; n <= 13; n++ {
		writeRaw(t, raw, n, constant(1000), 5, "Ks")
	}
	if _, err := CreateDarks(c, raw, red, []int{1, 2, 3}); err != nil {
		t.Fatalf("create darks: %s", err)
	}
	if _, err := CreateFlats(c, raw, red, []int{11, 12, 13}, DarkFileName(red, 5), "", false); err != nil {
		t.Fatalf("create flats: %s", err)
	}
	for n := 21; n <= 25; n++ {
		sky := float32(100 + n - 21) // 100..104
		writeRaw(t, raw, n, func(i int) float32 {
			if i == 50 && n == 22 {
				return 1e6 // star in one frame
			}
			return 10 + sky
		}, 5, "Ks")
	}
	sDir := filepath.Join(red, "HD1160")
	sky, err := CreateSkies(c, raw, red, sDir, []int{21, 22, 23, 24, 25}, "")
	if err != nil {
		t.Fatalf("create skies: %s", err)
	}
	// raw frames are flipped vertically on load
	star := (testHeight-1-50/testWidth)*testWidth + 50%testWidth
	if sky.Data[0] != 102 || sky.Data[star] != 103 {
		t.Errorf("sky=%f, %f; want 102, 103", sky.Data[0], sky.Data[star])
	}
	if _, err := os.Stat(filepath.Join(sDir, "Ks", "sky.fits")); err != nil {
		t.Errorf("sky.fits not written: %s", err)
	}

	c.SkyRejection = true
	c.SkySigmaLow, c.SkySigmaHigh = 1.5, 1.5
	sky, err = CreateSkies(c, raw, red, sDir, []int{21, 22, 23, 24, 25}, "")
	if err != nil {
		t.Fatalf("create skies with rejection: %s", err)
	}
	if math.Abs(float64(sky.Data[star]-102)) > 1.5 {
		t.Errorf("sky[%d]=%f with rejection; want about 102", star, sky.Data[star])
	}
}

func TestCalibrationApply(t *testing.T) {
	frame := func(v float32) *fits.Image {
		f := fits.NewImageFromNaxisn([]int32{4, 3}, nil)
		f.ApplyScaleOffset(1, v)
		return f
	}
	cal := &Calibration{Dark: frame(10), Flat: frame(2), Sky: frame(5)}
	f := frame(110)
	if err := cal.Apply(f); err != nil {
		t.Fatalf("apply: %s", err)
	}
	for i, v := range f.Data {
		if v != 45 {
			t.Fatalf("pixel %d=%f; want 45", i, v)
		}
	}

	cal.Sky = fits.NewImageFromNaxisn([]int32{3, 4}, nil)
	f = frame(110)
	if err := cal.Apply(f); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("err=%v; want ErrShapeMismatch", err)
	}
	if f.Data[0] != 110 {
		t.Errorf("pixel=%f after failed calibration; want untouched 110", f.Data[0])
	}

	if err := (&Calibration{}).Apply(f); err != nil || f.Data[0] != 110 {
		t.Errorf("empty calibration=%v, %f; want no change", err, f.Data[0])
	}
}
