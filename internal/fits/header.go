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
	"sort"
)

// FITS header data. Values are held in typed maps, and Keys records
// the order in which keys were read or first set, for faithful output
type Header struct {
	Bools    map[string]bool
	Ints     map[string]int64
	Floats   map[string]float64
	Strings  map[string]string
	Dates    map[string]string
	Comments []string
	History  []string
	Keys     []string
	End      bool
	Length   int32

	lastKey string // last string key read, target for CONTINUE lines
}

// Creates a FITS header initialized with empty maps and arrays
func NewHeader() Header {
	return Header{
		Bools:    make(map[string]bool),
		Ints:     make(map[string]int64),
		Floats:   make(map[string]float64),
		Strings:  make(map[string]string),
		Dates:    make(map[string]string),
		Comments: make([]string, 0),
		History:  make([]string, 0),
		Keys:     make([]string, 0),
	}
}

const fitsBlockSize int = 2880 // Block size of FITS header and data units
const HeaderLineSize int = 80   // Line size of a FITS header

// Keys managed by the reader and writer, never carried in the header maps
var structuralKeys = map[string]bool{
	"SIMPLE": true, "BITPIX": true, "NAXIS": true, "NAXIS1": true, "NAXIS2": true, "NAXIS3": true,
	"BZERO": true, "BSCALE": true, "EXTEND": true, "END": true,
}

// Returns a deep copy of the header
func (h *Header) Clone() Header {
	c := NewHeader()
	for k, v := range h.Bools {
		c.Bools[k] = v
	}
	for k, v := range h.Ints {
		c.Ints[k] = v
	}
	for k, v := range h.Floats {
		c.Floats[k] = v
	}
	for k, v := range h.Strings {
		c.Strings[k] = v
	}
	for k, v := range h.Dates {
		c.Dates[k] = v
	}
	c.Comments = append(c.Comments, h.Comments...)
	c.History = append(c.History, h.History...)
	c.Keys = append(c.Keys, h.Keys...)
	c.End, c.Length = h.End, h.Length
	return c
}

// Removes the key from all value maps. Keeps the key order entry, which is skipped on output
func (h *Header) Delete(key string) {
	delete(h.Bools, key)
	delete(h.Ints, key)
	delete(h.Floats, key)
	delete(h.Strings, key)
	delete(h.Dates, key)
}

// Checks if the header holds a value for the given key
func (h *Header) Has(key string) bool {
	if _, ok := h.Bools[key]; ok {
		return true
	}
	if _, ok := h.Ints[key]; ok {
		return true
	}
	if _, ok := h.Floats[key]; ok {
		return true
	}
	if _, ok := h.Strings[key]; ok {
		return true
	}
	_, ok := h.Dates[key]
	return ok
}

func (h *Header) touchKey(key string) {
	if !h.Has(key) {
		for _, k := range h.Keys {
			if k == key {
				return
			}
		}
		h.Keys = append(h.Keys, key)
	}
}

// Sets a boolean value, replacing any previous value of any type
func (h *Header) SetBool(key string, value bool) {
	h.touchKey(key)
	h.Delete(key)
	h.Bools[key] = value
}

// Sets an integer value, replacing any previous value of any type
func (h *Header) SetInt(key string, value int64) {
	h.touchKey(key)
	h.Delete(key)
	h.Ints[key] = value
}

// Sets a floating point value, replacing any previous value of any type
func (h *Header) SetFloat(key string, value float64) {
	h.touchKey(key)
	h.Delete(key)
	h.Floats[key] = value
}

// Sets a string value, replacing any previous value of any type
func (h *Header) SetString(key string, value string) {
	h.touchKey(key)
	h.Delete(key)
	h.Strings[key] = value
}

// Returns the string or date value for the given key
func (h *Header) GetString(key string) (string, bool) {
	if v, ok := h.Strings[key]; ok {
		return v, true
	}
	v, ok := h.Dates[key]
	return v, ok
}

// Returns the numeric value for the given key, accepting integer and floating point entries
func (h *Header) GetFloat(key string) (float64, bool) {
	if v, ok := h.Floats[key]; ok {
		return v, true
	}
	if v, ok := h.Ints[key]; ok {
		return float64(v), true
	}
	return 0, false
}

// Returns all keys with values in output order: first those with a recorded order, then the rest sorted
func (h *Header) OrderedKeys() []string {
	seen := make(map[string]bool)
	res := make([]string, 0, len(h.Keys))
	for _, k := range h.Keys {
		if !seen[k] && h.Has(k) && !structuralKeys[k] {
			res = append(res, k)
			seen[k] = true
		}
	}
	rest := make([]string, 0)
	for _, m := range []map[string]bool{keysOf(h.Bools), keysOf(h.Ints), keysOf(h.Floats), keysOf(h.Strings), keysOf(h.Dates)} {
		for k := range m {
			if !seen[k] && !structuralKeys[k] {
				rest = append(rest, k)
				seen[k] = true
			}
		}
	}
	sort.Strings(rest)
	return append(res, rest...)
}

func keysOf(m interface{}) map[string]bool {
	res := make(map[string]bool)
	switch mm := m.(type) {
	case map[string]bool:
		for k := range mm {
			res[k] = true
		}
	case map[string]int64:
		for k := range mm {
			res[k] = true
		}
	case map[string]float64:
		for k := range mm {
			res[k] = true
		}
	case map[string]string:
		for k := range mm {
			res[k] = true
		}
	}
	return res
}
