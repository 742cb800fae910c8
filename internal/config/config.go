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


// Package config reads the observation table which drives a reduction.
package config

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// Returned when a Filenums cell is not a plain list of integers
var ErrBadFilenums = errors.New("bad file number list")

// Object names marking calibration rows
const (
	ObjectDark = "dark"
	ObjectFlat = "flat"
)

// Comment marking the frames of a row as sky frames
const CommentSky = "sky"

// One row of the observation table
type Row struct {
	Line            int // line number in the source file, for error messages
	Object          string
	Filter          string
	Filenums        []int
	FilenumsLiteral string // as given, recorded in DATAFILE header entries
	ExpTime         float64
	Method          string
	Comments        string
}

// Checks if the row describes dark frames. The object name must match exactly
func (r *Row) IsDark() bool { return r.Object == ObjectDark }

// Checks if the row describes flat frames. The object name must match exactly
func (r *Row) IsFlat() bool { return r.Object == ObjectFlat }

// Checks if the row describes sky frames for its object and filter
func (r *Row) IsSky() bool { return strings.EqualFold(strings.TrimSpace(r.Comments), CommentSky) }

// Checks if the row describes frames of a science target
func (r *Row) IsScience() bool { return !r.IsDark() && !r.IsFlat() && !r.IsSky() }

// Exposure time rounded to whole seconds, as used in master dark file names
func (r *Row) RoundedExpTime() int { return int(math.Round(r.ExpTime)) }

// The observation table
type Table struct {
	Rows []Row
}

var requiredColumns = []string{"Object", "Filter", "Filenums", "ExpTime"}

// Loads the observation table from the CSV file with the given name
func Load(fileName string) (*Table, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fileName, err)
	}
	return t, nil
}

// Parses the observation table from CSV with a header row.
// Required columns are Object, Filter, Filenums and ExpTime. Method and Comments are optional
func Parse(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.New("empty configuration table")
	}

	cols := make(map[string]int)
	for i, name := range records[0] {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[strings.ToLower(name)]; !ok {
			return nil, fmt.Errorf("configuration table lacks column %s", name)
		}
	}
	get := func(rec []string, name string) string {
		if i, ok := cols[strings.ToLower(name)]; ok && i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}

	t := &Table{Rows: make([]Row, 0, len(records)-1)}
	for i, rec := range records[1:] {
		line := i + 2
		if isBlank(rec) {
			continue
		}
		row := Row{
			Line:            line,
			Object:          get(rec, "Object"),
			Filter:          get(rec, "Filter"),
			FilenumsLiteral: get(rec, "Filenums"),
			Method:          get(rec, "Method"),
			Comments:        get(rec, "Comments"),
		}
		if row.Filenums, err = ParseFilenums(row.FilenumsLiteral); err != nil {
			return nil, fmt.Errorf("line %d, object %q: %w", line, row.Object, err)
		}
		expTime := get(rec, "ExpTime")
		if row.ExpTime, err = strconv.ParseFloat(expTime, 64); err != nil {
			return nil, fmt.Errorf("line %d, object %q: bad exposure time %q", line, row.Object, expTime)
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func isBlank(rec []string) bool {
	for _, s := range rec {
		if strings.TrimSpace(s) != "" {
			return false
		}
	}
	return true
}

// Parses a list of file numbers in the form [i, j, ...]. Accepts optional whitespace
// and optionally signed decimal integers, nothing else. Empty lists are rejected
func ParseFilenums(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, fmt.Errorf("%w: %q is not a bracketed list", ErrBadFilenums, s)
	}
	inner := strings.TrimSpace(s[1 : len(s)-1])
	if inner == "" {
		return nil, fmt.Errorf("%w: %q is empty", ErrBadFilenums, s)
	}
	parts := strings.Split(inner, ",")
	res := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if !isDecimal(p) {
			return nil, fmt.Errorf("%w: %q contains non-integer %q", ErrBadFilenums, s, p)
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %s", ErrBadFilenums, s, err.Error())
		}
		res = append(res, n)
	}
	return res, nil
}

// Checks for an optionally signed string of ASCII digits
func isDecimal(s string) bool {
	if len(s) > 0 && (s[0] == '+' || s[0] == '-') {
		s = s[1:]
	}
	if len(s) == 0 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Returns all dark rows
func (t *Table) Darks() []Row { return t.filter((*Row).IsDark) }

// Returns all flat rows
func (t *Table) Flats() []Row { return t.filter((*Row).IsFlat) }

// Returns all science rows
func (t *Table) Science() []Row { return t.filter((*Row).IsScience) }

// Returns the sky rows for the given object and filter
func (t *Table) Skies(object, filter string) []Row {
	return t.filter(func(r *Row) bool {
		return r.IsSky() && r.Object == object && r.Filter == filter
	})
}

// Returns the distinct science targets in order of first appearance
func (t *Table) Targets() []string {
	seen := make(map[string]bool)
	res := []string{}
	for _, r := range t.Science() {
		if !seen[r.Object] {
			seen[r.Object] = true
			res = append(res, r.Object)
		}
	}
	return res
}

// Returns the distinct rounded exposure times of the dark rows, in order of first appearance,
// together with the first row for each
func (t *Table) DarkExpTimes() (times []int, rows []Row) {
	seen := make(map[int]bool)
	for _, r := range t.Darks() {
		et := r.RoundedExpTime()
		if !seen[et] {
			seen[et] = true
			times, rows = append(times, et), append(rows, r)
		}
	}
	return times, rows
}

func (t *Table) filter(pred func(r *Row) bool) []Row {
	res := []Row{}
	for i := range t.Rows {
		if pred(&t.Rows[i]) {
			res = append(res, t.Rows[i])
		}
	}
	return res
}
