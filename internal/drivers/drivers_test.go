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


package drivers

import (
	"bytes"
	"errors"
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/mlnoga/aoreduce/internal/config"
	"github.com/mlnoga/aoreduce/internal/fits"
	"github.com/mlnoga/aoreduce/internal/inst"
	"github.com/mlnoga/aoreduce/internal/ops/pre"
	"github.com/mlnoga/aoreduce/internal/ops/stack"
)

const testSize = 48

const testTable = `Object,Filter,Filenums,ExpTime,Method,Comments
dark,,"[1, 2, 3]",5,,
flat,Ks,"[11, 12, 13]",5,,
HIP1234,Ks,"[21, 22, 23]",5,,sky
HIP1234,Ks,"[31, 32]",5,saturated,
HIP1234,Ks,"[33, 34]",5,,
`

func writeRaw(t *testing.T, dir string, n int, pixel func(row, col int) float32) {
	t.Helper()
	f := fits.NewImageFromNaxisn([]int32{testSize, testSize}, nil)
	for i := range f.Data {
		f.Data[i] = pixel(i/testSize, i%testSize)
	}
	f.Header.SetString("FILT1NAM", "Ks")
	f.Header.SetFloat("ITIME", 5)
	if err := f.WriteFile(filepath.Join(dir, inst.NewShARCS().FileName(n))); err != nil {
		t.Fatalf("write raw %d: %s", n, err)
	}
}

func constant(v float32) func(int, int) float32 { return func(int, int) float32 { return v } }

// Writes the raw frames for testTable and returns options for a run on them
func setup(t *testing.T) Options {
	t.Helper()
	raw, red := t.TempDir(), t.TempDir()
	for n := 1; n <= 3; n++ {
		writeRaw(t, raw, n, constant(10))
	}
	for n := 11; n <= 13; n++ {
		writeRaw(t, raw, n, constant(1000))
	}
	for n := 21; n <= 23; n++ {
		writeRaw(t, raw, n, constant(60))
	}
	centers := [][2]int{{18, 20}, {22, 25}, {28, 21}, {25, 30}}
	for i, ctr := range centers {
		row, col := ctr[0], ctr[1]
		writeRaw(t, raw, 31+i, func(r, c int) float32 {
			dr, dc := float64(r-row), float64(c-col)
			return float32(60 + 3000*math.Exp(-(dr*dr+dc*dc)/8))
		})
	}
	configFile := filepath.Join(raw, "config.csv")
	if err := ioutil.WriteFile(configFile, []byte(testTable), 0644); err != nil {
		t.Fatalf("write config: %s", err)
	}
	return Options{
		Inst:       inst.NewShARCS(),
		ConfigFile: configFile,
		RawDir:     raw,
		RedDir:     red,
		Log:        ioutil.Discard,
		NPix:       3,
	}
}

func TestAllDriver(t *testing.T) {
	opts := setup(t)
	opts.MaxThreads = 2
	if err := AllDriver(opts); err != nil {
		t.Fatalf("all driver: %s", err)
	}
	dir := filepath.Join(opts.RedDir, "HIP1234", "Ks")
	for _, name := range []string{"sky.fits", "sh00.fits", "sh03.fits", "shifts.txt", stack.FinalFileName, "regshifts.txt"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s not written: %s", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "sh04.fits")); err == nil {
		t.Errorf("sh04.fits written for four frames")
	}
	final, err := fits.NewImageFromFile(filepath.Join(dir, stack.FinalFileName), 0, ioutil.Discard)
	if err != nil {
		t.Fatalf("read final image: %s", err)
	}
	if s, _ := final.Header.GetString("REGMETHD"); s != "saturated" {
		t.Errorf("REGMETHD=%s; want saturated", s)
	}
}

func TestImageStackDriverMethods(t *testing.T) {
	opts := setup(t)
	if err := ConfigDriver(opts); err != nil {
		t.Fatalf("config driver: %s", err)
	}
	methods, err := ImageStackDriver(opts)
	if err != nil {
		t.Fatalf("image stack driver: %s", err)
	}
	if len(methods) != 1 || methods["HIP1234"] != "saturated" {
		t.Errorf("methods=%v; want map[HIP1234:saturated]", methods)
	}

	opts.Method = "default"
	methods, err = ImageStackDriver(opts)
	if err != nil {
		t.Fatalf("image stack driver: %s", err)
	}
	if methods["HIP1234"] != "default" {
		t.Errorf("method=%s with override; want default", methods["HIP1234"])
	}
}

func TestDarkDriverReusesMaster(t *testing.T) {
	opts := setup(t)
	if err := DarkDriver(opts); err != nil {
		t.Fatalf("dark driver: %s", err)
	}
	darkFile := pre.DarkFileName(opts.RedDir, 5)
	marker := fits.NewImageFromNaxisn([]int32{testSize, testSize}, nil)
	marker.ApplyScaleOffset(1, 999)
	if err := marker.WriteFile(darkFile); err != nil {
		t.Fatalf("write marker: %s", err)
	}

	if err := DarkDriver(opts); err != nil {
		t.Fatalf("dark driver: %s", err)
	}
	dark, err := pre.OpenDarks(darkFile, ioutil.Discard)
	if err != nil {
		t.Fatalf("open dark: %s", err)
	}
	if dark.Data[0] != 999 {
		t.Errorf("dark=%f; want existing master 999 to be reused", dark.Data[0])
	}

	opts.Force = true
	if err := DarkDriver(opts); err != nil {
		t.Fatalf("dark driver: %s", err)
	}
	if dark, err = pre.OpenDarks(darkFile, ioutil.Discard); err != nil {
		t.Fatalf("open dark: %s", err)
	}
	if dark.Data[0] != 10 {
		t.Errorf("dark=%f with force; want 10", dark.Data[0])
	}
}

func TestFlatDriverErrors(t *testing.T) {
	opts := setup(t)
	table, err := config.Parse(strings.NewReader(`Object,Filter,Filenums,ExpTime
flat,J,[90],5
flat,H,[91],5
`))
	if err != nil {
		t.Fatalf("parse: %s", err)
	}

	d, err := NewFromTable(opts, table)
	if err != nil {
		t.Fatalf("new driver: %s", err)
	}
	err = d.run(d.Flats)
	if !errors.Is(err, pre.ErrFrameNotFound) {
		t.Errorf("err=%v; want ErrFrameNotFound", err)
	}
	if err == nil || !strings.Contains(err.Error(), "flat J") || !strings.Contains(err.Error(), "flat H") {
		t.Errorf("err=%v; want errors of both flat groups", err)
	}

	opts.AbortOnError = true
	if d, err = NewFromTable(opts, table); err != nil {
		t.Fatalf("new driver: %s", err)
	}
	err = d.run(d.Flats)
	if err == nil || strings.Contains(err.Error(), "flat H") {
		t.Errorf("err=%v; want only the first failing group", err)
	}
}

func TestFlatDriverReusesHeaderFilter(t *testing.T) {
	opts := setup(t)
	if err := DarkDriver(opts); err != nil {
		t.Fatalf("dark driver: %s", err)
	}
	// the raw headers say Ks, which names the master flat
	table, err := config.Parse(strings.NewReader("Object,Filter,Filenums,ExpTime\nflat,K,\"[11, 12, 13]\",5\n"))
	if err != nil {
		t.Fatalf("parse: %s", err)
	}
	d, err := NewFromTable(opts, table)
	if err != nil {
		t.Fatalf("new driver: %s", err)
	}
	if err := d.run(d.Flats); err != nil {
		t.Fatalf("flats: %s", err)
	}
	flatFile := pre.FlatFileName(opts.RedDir, "Ks")
	if _, err := os.Stat(pre.FlatFileName(opts.RedDir, "K")); err == nil {
		t.Errorf("flat written under the table filter K")
	}
	marker := fits.NewImageFromNaxisn([]int32{testSize, testSize}, nil)
	marker.ApplyScaleOffset(1, 2)
	if err := marker.WriteFile(flatFile); err != nil {
		t.Fatalf("write marker: %s", err)
	}

	if err := d.run(d.Flats); err != nil {
		t.Fatalf("flats: %s", err)
	}
	flat, err := pre.OpenFlats(flatFile, ioutil.Discard)
	if err != nil {
		t.Fatalf("open flat: %s", err)
	}
	if flat.Data[0] != 2 {
		t.Errorf("flat=%f; want existing master 2 to be reused", flat.Data[0])
	}
}

func TestNewFromTableThreads(t *testing.T) {
	opts := setup(t)
	opts.MaxThreads = 3
	d, err := New(opts)
	if err != nil {
		t.Fatalf("new driver: %s", err)
	}
	if got := d.Context().MaxThreads; got != 3 {
		t.Errorf("context threads=%d; want 3", got)
	}
	opts.MaxThreads = 0
	if d, err = New(opts); err != nil {
		t.Fatalf("new driver: %s", err)
	}
	if got := d.Context().MaxThreads; got != 1 {
		t.Errorf("context threads=%d; want 1", got)
	}
}

// A log shared by the test and the driver, read only after the run
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestConfigThenImageDriver(t *testing.T) {
	defer runtime.GOMAXPROCS(runtime.GOMAXPROCS(4))
	opts := setup(t)
	// a second target without sky rows takes its sky from the science frames
	table := testTable + "HIP5678,Ks,\"[31, 32, 33, 34]\",5,default,\n"
	if err := ioutil.WriteFile(opts.ConfigFile, []byte(table), 0644); err != nil {
		t.Fatalf("write config: %s", err)
	}
	log := &lockedBuffer{}
	opts.Log = log
	opts.MaxThreads = 4

	if err := ConfigDriver(opts); err != nil {
		t.Fatalf("config driver: %s", err)
	}
	for _, target := range []string{"HIP1234", "HIP5678"} {
		if _, err := os.Stat(filepath.Join(opts.RedDir, target, "Ks", "sky.fits")); err != nil {
			t.Errorf("%s sky not written: %s", target, err)
		}
	}
	if err := ImageDriver(opts); err != nil {
		t.Fatalf("image driver: %s", err)
	}

	for target, method := range map[string]string{"HIP1234": "saturated", "HIP5678": "default"} {
		dir := filepath.Join(opts.RedDir, target, "Ks")
		for _, name := range []string{"sh00.fits", "sh01.fits", "sh02.fits", "sh03.fits", "shifts.txt", stack.FinalFileName} {
			if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
				t.Errorf("%s/%s not written: %s", target, name, err)
			}
		}
		shifts, err := ioutil.ReadFile(filepath.Join(dir, "shifts.txt"))
		if err != nil {
			t.Fatalf("read shifts: %s", err)
		}
		if n := len(strings.Split(strings.TrimSpace(string(shifts)), "\n")); n != 4 {
			t.Errorf("%s shifts lines=%d; want 4", target, n)
		}
		final, err := fits.NewImageFromFile(filepath.Join(dir, stack.FinalFileName), 0, ioutil.Discard)
		if err != nil {
			t.Fatalf("read final image: %s", err)
		}
		if s, _ := final.Header.GetString("REGMETHD"); s != method {
			t.Errorf("%s REGMETHD=%s; want %s", target, s, method)
		}
	}
	if l := log.String(); !strings.Contains(l, "HIP1234") || !strings.Contains(l, "HIP5678") {
		t.Errorf("log does not name both targets:\n%s", l)
	}
}

func TestLookup(t *testing.T) {
	for _, name := range Commands {
		if _, ok := Lookup(name); !ok {
			t.Errorf("Lookup(%s) failed", name)
		}
	}
	if _, ok := Lookup("bogus"); ok {
		t.Errorf("Lookup(bogus) succeeded")
	}
}
