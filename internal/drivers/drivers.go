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


// Package drivers runs the reduction stages over all groups of an observation table.
package drivers

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mlnoga/aoreduce/internal/config"
	"github.com/mlnoga/aoreduce/internal/inst"
	"github.com/mlnoga/aoreduce/internal/ops"
	"github.com/mlnoga/aoreduce/internal/plot"
	"golang.org/x/sync/errgroup"
)

// Default registration search half-width in pixels
const DefaultNPix = 10

// Options for a driver run
type Options struct {
	Inst         inst.Instrument
	ConfigFile   string
	RawDir       string
	RedDir       string
	Plotter      *plot.Plotter // nil disables plots
	Log          io.Writer
	MaxThreads   int    // concurrent groups in the sky and image stages
	Force        bool   // rebuild master darks and flats already on disk
	AbortOnError bool   // stop at the first failing group
	NPix         int    // registration search half-width, DefaultNPix if zero
	Method       string // registration method for all targets, overriding the table
	Combine      string // ops.CombineMedian, ops.CombineMean or ops.CombineSigma
	SkyRejection bool
	WriteTIFF    bool
}

// A driver run over one observation table
type Driver struct {
	opts  Options
	table *config.Table
	ctx   *ops.Context

	mu   sync.Mutex
	errs []error
}

// Loads the observation table and prepares the execution context
func New(opts Options) (*Driver, error) {
	table, err := config.Load(opts.ConfigFile)
	if err != nil {
		return nil, err
	}
	return NewFromTable(opts, table)
}

// Prepares a driver for an already parsed observation table
func NewFromTable(opts Options, table *config.Table) (*Driver, error) {
	if opts.Inst == nil {
		return nil, fmt.Errorf("no instrument given")
	}
	if opts.Log == nil {
		opts.Log = ioutil.Discard
	}
	if opts.NPix <= 0 {
		opts.NPix = DefaultNPix
	}
	if opts.MaxThreads < 1 {
		opts.MaxThreads = 1
	}
	opts.Log = &syncWriter{w: opts.Log}
	c := ops.NewContext(opts.Log, opts.Inst)
	c.MaxThreads = opts.MaxThreads
	c.Plotter = opts.Plotter
	c.SkyRejection = opts.SkyRejection
	c.WriteTIFF = opts.WriteTIFF
	if opts.Combine != "" {
		c.Combine = opts.Combine
	}
	if err := os.MkdirAll(opts.RedDir, 0755); err != nil {
		return nil, err
	}
	return &Driver{opts: opts, table: table, ctx: c}, nil
}

// Serializes writes from concurrent groups and loader goroutines to one log
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// Execution context shared by all stages
func (d *Driver) Context() *ops.Context { return d.ctx }

// Records the error of a failed group. Returns it if the run should stop
func (d *Driver) fail(group string, err error) error {
	fmt.Fprintf(d.opts.Log, "Error: %s: %s\n", group, err.Error())
	wrapped := fmt.Errorf("%s: %w", group, err)
	d.mu.Lock()
	d.errs = append(d.errs, wrapped)
	d.mu.Unlock()
	if d.opts.AbortOnError {
		return wrapped
	}
	return nil
}

// Returns all errors recorded so far, joined
func (d *Driver) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return ops.JoinErrors(d.errs)
}

// Runs the given group functions with at most MaxThreads at a time. Once a group fails
// with AbortOnError set, groups not yet started are skipped
func (d *Driver) runGroups(names []string, run func(i int) error) error {
	g, gctx := errgroup.WithContext(context.Background())
	g.SetLimit(d.opts.MaxThreads)
	for i := range names {
		i := i
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			if err := run(i); err != nil {
				return d.fail(names[i], err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Checks if a master frame can be reused
func (d *Driver) reuse(fileName string) bool {
	if d.opts.Force {
		return false
	}
	if _, err := os.Stat(fileName); err != nil {
		return false
	}
	fmt.Fprintf(d.opts.Log, "Reusing existing %s\n", fileName)
	return true
}

// Output directory for a target
func (d *Driver) targetDir(target string) string {
	return filepath.Join(d.opts.RedDir, target)
}

// A science target observed in one filter, with the frames of all its rows
type group struct {
	Target string
	Filter string
	Nums   []int
	Method string
}

func (g *group) String() string { return g.Target + "/" + g.Filter }

// Groups the science rows by target and filter, in order of first appearance
func (d *Driver) scienceGroups() []*group {
	res := []*group{}
	index := map[string]*group{}
	for _, r := range d.table.Science() {
		key := r.Object + "\x00" + r.Filter
		g, ok := index[key]
		if !ok {
			g = &group{Target: r.Object, Filter: r.Filter}
			index[key] = g
			res = append(res, g)
		}
		g.Nums = append(g.Nums, r.Filenums...)
		if g.Method == "" {
			g.Method = strings.TrimSpace(r.Method)
		}
	}
	return res
}

// Returns the registration method for each target: the override if set,
// else the first method named in the target's rows, else default
func (d *Driver) methods() map[string]string {
	res := map[string]string{}
	for _, g := range d.scienceGroups() {
		m := d.opts.Method
		if m == "" {
			m = g.Method
		}
		if m == "" {
			m = "default"
		}
		if _, ok := res[g.Target]; !ok || res[g.Target] == "default" {
			res[g.Target] = m
		}
	}
	return res
}
