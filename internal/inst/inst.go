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


// Package inst describes the cameras whose raw frames can be reduced.
package inst

import (
	"errors"
	"fmt"
	"io/ioutil"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/mlnoga/aoreduce/internal/fits"
)

// Returned by Lookup for instrument names which are not supported
var ErrUnknownInstrument = errors.New("unknown instrument")

// Filter name written by some instruments when the wheel position is not known
const UnknownFilter = "Unknown"

// An instrument producing raw frames
type Instrument interface {
	// Human-readable instrument name
	Name() string

	// Raw file name for the given file number, without directory
	FileName(n int) string

	// Brings all n frames into standard orientation in place
	AdjustArray(frames []*fits.Image, n int) error

	// Reads the header of the given raw file
	Head(path string) (fits.Header, error)

	// Returns the filter name from the header, or the override if the header does not know it
	Filt(n int, head fits.Header, override string) string

	// Returns the exposure time in seconds from the header
	ExpTime(head fits.Header) float32
}

// Generic instrument parameterized by file naming, header keys and orientation
type generic struct {
	name      string
	template  string
	filterKey string
	expKeys   []string
	orient    func(f *fits.Image)
	trim      *Trim // nil keeps the full detector
}

// A region of interest in oriented frame coordinates. X runs along columns, Y along rows
type Trim struct {
	X0, Y0, Width, Height int32
}

func (t Trim) String() string { return fmt.Sprintf("%d,%d,%d,%d", t.X0, t.Y0, t.Width, t.Height) }

// Parses a trim rectangle of the form x0,y0,width,height
func ParseTrim(s string) (Trim, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Trim{}, fmt.Errorf("trim %q: want x0,y0,width,height", s)
	}
	var vals [4]int32
	for i, p := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(p), 10, 32)
		if err != nil {
			return Trim{}, fmt.Errorf("trim %q: %w", s, err)
		}
		vals[i] = int32(v)
	}
	t := Trim{vals[0], vals[1], vals[2], vals[3]}
	if t.X0 < 0 || t.Y0 < 0 || t.Width <= 0 || t.Height <= 0 {
		return Trim{}, fmt.Errorf("trim %q: negative origin or empty size", s)
	}
	return t, nil
}

// Returns a copy of the instrument which crops every adjusted frame to the given rectangle
func WithTrim(i Instrument, t Trim) (Instrument, error) {
	g, ok := i.(*generic)
	if !ok {
		return nil, fmt.Errorf("%s: trimming not supported", i.Name())
	}
	res := *g
	res.trim = &t
	return &res, nil
}

func (g *generic) Name() string { return g.name }

func (g *generic) FileName(n int) string { return fmt.Sprintf(g.template, n) }

func (g *generic) AdjustArray(frames []*fits.Image, n int) error {
	if len(frames) != n {
		return fmt.Errorf("%s: expected %d frames, got %d", g.name, n, len(frames))
	}
	for _, f := range frames {
		f.FirstPlane()
		g.orient(f)
		if g.trim != nil {
			if err := f.Crop(g.trim.X0, g.trim.Y0, g.trim.Width, g.trim.Height); err != nil {
				return fmt.Errorf("%s: %w", g.name, err)
			}
		}
	}
	return nil
}

func (g *generic) Head(path string) (fits.Header, error) {
	return fits.NewHeaderFromFile(path, 0, ioutil.Discard)
}

func (g *generic) Filt(n int, head fits.Header, override string) string {
	filt, ok := head.GetString(g.filterKey)
	filt = strings.TrimSpace(filt)
	if !ok || filt == "" || strings.EqualFold(filt, UnknownFilter) {
		if override != "" {
			return override
		}
		return UnknownFilter
	}
	return filt
}

func (g *generic) ExpTime(head fits.Header) float32 {
	for _, key := range g.expKeys {
		if v, ok := head.GetFloat(key); ok && !math.IsNaN(v) {
			return float32(v)
		}
	}
	return 0
}

// The ShARCS camera on the Shane telescope at Lick Observatory.
// Frames are stored upside down
func NewShARCS() Instrument {
	return &generic{
		name:      "ShARCS",
		template:  "s%04d.fits",
		filterKey: "FILT1NAM",
		expKeys:   []string{"ITIME", "EXPTIME"},
		orient:    (*fits.Image).FlipVertical,
	}
}

// The PHARO camera on the Hale telescope at Palomar Observatory.
// Frames are stored rotated by 180 degrees
func NewPHARO() Instrument {
	return &generic{
		name:      "PHARO",
		template:  "sph%04d.fits",
		filterKey: "FILTER",
		expKeys:   []string{"EXPTIME"},
		orient:    (*fits.Image).Rotate180,
	}
}

var registry = map[string]func() Instrument{
	"sharcs": NewShARCS,
	"shane":  NewShARCS,
	"pharo":  NewPHARO,
}

// Looks up an instrument by name, ignoring case
func Lookup(name string) (Instrument, error) {
	if ctor, ok := registry[strings.ToLower(strings.TrimSpace(name))]; ok {
		return ctor(), nil
	}
	return nil, fmt.Errorf("%w: %q, supported are %s", ErrUnknownInstrument, name, strings.Join(Names(), ", "))
}

// Returns the names of all supported instruments
func Names() []string {
	res := make([]string, 0, len(registry))
	for k := range registry {
		res = append(res, k)
	}
	sort.Strings(res)
	return res
}
