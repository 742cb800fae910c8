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
	"fmt"
	"path/filepath"

	"github.com/mlnoga/aoreduce/internal/config"
	"github.com/mlnoga/aoreduce/internal/ops/pre"
	"github.com/mlnoga/aoreduce/internal/ops/stack"
)

// Builds one master dark per distinct rounded exposure time of the dark rows
func (d *Driver) Darks() error {
	times, rows := d.table.DarkExpTimes()
	fmt.Fprintf(d.opts.Log, "Running darks for %d exposure times\n", len(times))
	for i, et := range times {
		if d.reuse(pre.DarkFileName(d.opts.RedDir, float64(et))) {
			continue
		}
		if _, err := pre.CreateDarks(d.ctx, d.opts.RawDir, d.opts.RedDir, rows[i].Filenums); err != nil {
			if err := d.fail(fmt.Sprintf("dark %dsec", et), err); err != nil {
				return err
			}
		}
	}
	return nil
}

// Builds one master flat per flat row, using the master dark with the same rounded exposure time
func (d *Driver) Flats() error {
	rows := d.table.Flats()
	fmt.Fprintf(d.opts.Log, "Running flats for %d filters\n", len(rows))
	for _, r := range rows {
		if d.reuse(pre.FlatFileName(d.opts.RedDir, d.flatFilter(r))) {
			continue
		}
		darkFile := pre.DarkFileName(d.opts.RedDir, r.ExpTime)
		if _, err := pre.CreateFlats(d.ctx, d.opts.RawDir, d.opts.RedDir, r.Filenums, darkFile, r.Filter, false); err != nil {
			if err := d.fail("flat "+r.Filter, err); err != nil {
				return err
			}
		}
	}
	return nil
}

// Returns the filter name the master flat of a row is stored under. The header of its
// first raw frame takes precedence, the table filter is the fallback
func (d *Driver) flatFilter(r config.Row) string {
	if len(r.Filenums) == 0 {
		return r.Filter
	}
	head, err := d.opts.Inst.Head(filepath.Join(d.opts.RawDir, d.opts.Inst.FileName(r.Filenums[0])))
	if err != nil {
		return r.Filter
	}
	return d.opts.Inst.Filt(len(r.Filenums), head, r.Filter)
}

// Builds one sky per target and filter, from the sky rows of the target if there are any,
// else from its science frames
func (d *Driver) Skies() error {
	groups := d.scienceGroups()
	names := make([]string, len(groups))
	for i, g := range groups {
		names[i] = "sky " + g.String()
	}
	fmt.Fprintf(d.opts.Log, "Running skies for %d target and filter groups\n", len(groups))
	return d.runGroups(names, func(i int) error {
		g := groups[i]
		nums := []int{}
		for _, r := range d.table.Skies(g.Target, g.Filter) {
			nums = append(nums, r.Filenums...)
		}
		if len(nums) == 0 {
			fmt.Fprintf(d.opts.Log, "No sky frames for %s, using the science frames\n", g)
			nums = g.Nums
		}
		_, err := pre.CreateSkies(d.ctx, d.opts.RawDir, d.opts.RedDir, d.targetDir(g.Target), nums, g.Filter)
		return err
	})
}

// Calibrates and centers the science frames of each target and filter.
// Returns the registration method for each target
func (d *Driver) ImageStack() (map[string]string, error) {
	groups := d.scienceGroups()
	names := make([]string, len(groups))
	for i, g := range groups {
		names[i] = "image " + g.String()
	}
	fmt.Fprintf(d.opts.Log, "Running image stacks for %d target and filter groups\n", len(groups))
	err := d.runGroups(names, func(i int) error {
		g := groups[i]
		_, _, err := stack.CreateImStack(d.ctx, d.opts.RawDir, d.opts.RedDir, d.targetDir(g.Target), g.Nums, g.Filter)
		return err
	})
	return d.methods(), err
}

// Registers and combines the centered frames of every target with its method
func (d *Driver) Register(methods map[string]string) error {
	targets := d.table.Targets()
	names := make([]string, len(targets))
	for i, t := range targets {
		names[i] = "register " + t
	}
	fmt.Fprintf(d.opts.Log, "Running registration for %d targets\n", len(targets))
	return d.runGroups(names, func(i int) error {
		return stack.CreateIm(d.ctx, d.targetDir(targets[i]), d.opts.NPix, methods[targets[i]])
	})
}

// Runs the given stages in order. Returns the joined errors of all failed groups
func (d *Driver) run(stages ...func() error) error {
	for _, s := range stages {
		if err := s(); err != nil {
			return d.Err()
		}
	}
	return d.Err()
}

// End-to-end reduction: darks, flats, skies, image stacks and registration
func (d *Driver) All() error {
	var methods map[string]string
	return d.run(d.Darks, d.Flats, d.Skies,
		func() (err error) { methods, err = d.ImageStack(); return err },
		func() error { return d.Register(methods) })
}

// Calibration only: darks, flats and skies
func (d *Driver) Config() error {
	return d.run(d.Darks, d.Flats, d.Skies)
}

// Image stacks and registration, with master frames and skies already in place
func (d *Driver) Image() error {
	var methods map[string]string
	return d.run(func() (err error) { methods, err = d.ImageStack(); return err },
		func() error { return d.Register(methods) })
}

// Builds the master darks for the observation table in opts
func DarkDriver(opts Options) error {
	return withDriver(opts, func(d *Driver) error { return d.run(d.Darks) })
}

// Builds the master flats for the observation table in opts
func FlatDriver(opts Options) error {
	return withDriver(opts, func(d *Driver) error { return d.run(d.Flats) })
}

// Builds the skies for the observation table in opts
func SkyDriver(opts Options) error {
	return withDriver(opts, func(d *Driver) error { return d.run(d.Skies) })
}

// Calibrates and centers the science frames for the observation table in opts.
// Returns the registration method for each target
func ImageStackDriver(opts Options) (methods map[string]string, err error) {
	err = withDriver(opts, func(d *Driver) error {
		return d.run(func() (err error) { methods, err = d.ImageStack(); return err })
	})
	return methods, err
}

// Runs the end-to-end reduction for the observation table in opts
func AllDriver(opts Options) error { return withDriver(opts, (*Driver).All) }

// Runs darks, flats and skies for the observation table in opts
func ConfigDriver(opts Options) error { return withDriver(opts, (*Driver).Config) }

// Runs image stacks and registration for the observation table in opts
func ImageDriver(opts Options) error { return withDriver(opts, (*Driver).Image) }

// Registers and combines the centered frames of every target in the observation table in opts
func CombineDriver(opts Options) error {
	return withDriver(opts, func(d *Driver) error {
		return d.run(func() error { return d.Register(d.methods()) })
	})
}

// Looks up a driver by command name
func Lookup(name string) (func(Options) error, bool) {
	switch name {
	case "all":
		return AllDriver, true
	case "config":
		return ConfigDriver, true
	case "image":
		return ImageDriver, true
	case "darks":
		return DarkDriver, true
	case "flats":
		return FlatDriver, true
	case "skies":
		return SkyDriver, true
	case "stack":
		return func(o Options) error { _, err := ImageStackDriver(o); return err }, true
	case "combine":
		return CombineDriver, true
	}
	return nil, false
}

func withDriver(opts Options, f func(d *Driver) error) error {
	d, err := New(opts)
	if err != nil {
		return err
	}
	return f(d)
}

// Names of all drivers accepted by Lookup
var Commands = []string{"all", "config", "image", "darks", "flats", "skies", "stack", "combine"}
