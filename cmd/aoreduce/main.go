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


package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/klauspost/cpuid"
	"github.com/pbnjay/memory"

	"github.com/mlnoga/aoreduce/internal/drivers"
	"github.com/mlnoga/aoreduce/internal/inst"
	"github.com/mlnoga/aoreduce/internal/ops"
	"github.com/mlnoga/aoreduce/internal/plot"
	"github.com/mlnoga/aoreduce/internal/rest"
)

const version = "0.1.0"

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var memprofile = flag.String("memprofile", "", "write memory profile to `file`")

var instName = flag.String("inst", "sharcs", "instrument, one of "+strings.Join(inst.Names(), ", "))
var configFile = flag.String("config", "config.csv", "observation table in CSV `file`")
var trim = flag.String("trim", "", "crop oriented frames to `x0,y0,width,height`, blank keeps the full detector")
var rawDir = flag.String("raw", ".", "directory with the raw frames")
var redDir = flag.String("red", "reduced", "directory for the reduced data")
var plots = flag.String("plots", "", "plot configuration YAML `file`, blank for defaults, `none` to disable plots")
var log = flag.String("log", "%auto", "save log output to `file`. `%auto` writes aoreduce.log into the reduced data directory")

var method = flag.String("method", "", "registration method for all targets, default or saturated. Blank uses the Method column")
var npix = flag.Int("npix", drivers.DefaultNPix, "registration search range in pixels in each direction")
var combine = flag.String("combine", ops.CombineMedian, "combination of registered frames, one of median, mean or sigma")
var skyReject = flag.Bool("skyreject", false, "combine skies with a sigma-clipped mean instead of the median")
var threads = flag.Int("threads", 1, "number of target groups to process concurrently")
var force = flag.Bool("force", false, "rebuild master darks and flats already on disk")
var abort = flag.Bool("abort", false, "stop at the first failing group")
var tiff = flag.Bool("tiff", false, "also write 16-bit TIFF previews of final images")

var addr = flag.String("addr", ":8080", "listen address for the serve command")
var chroot = flag.String("chroot", "", "chroot into `directory` before serving")
var setuid = flag.Int("setuid", -1, "change to user `id` before serving, -1 keeps the current user")

func main() {
	logWriter := &teeLog{}
	debug.SetGCPercent(10)
	start := time.Now()
	flag.Usage = func() {
		fmt.Fprintf(logWriter, `aoreduce Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (all|config|image|darks|flats|skies|stack|combine|serve|legal|version)

Commands:
  all     End-to-end reduction: darks, flats, skies, image stacks and registration
  config  Build master darks, master flats and skies
  image   Build image stacks and register them, using existing masters and skies
  darks   Build master darks
  flats   Build master flats
  skies   Build skies
  stack   Calibrate and center the science frames
  combine Register and combine centered frames
  serve   Serve the REST API
  legal   Show license and attribution information
  version Show version information

Flags:
`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		return
	}

	// Initialize logging to file in addition to stdout, if selected
	if *log == "%auto" {
		*log = ""
		if _, ok := drivers.Lookup(args[0]); ok {
			if err := os.MkdirAll(*redDir, 0755); err == nil {
				*log = filepath.Join(*redDir, "aoreduce.log")
			}
		}
	}
	if *log != "" {
		if err := logWriter.AlsoToFile(*log); err != nil {
			logWriter.Fatalf("Unable to open logfile '%s': %s\n", *log, err.Error())
		}
	}
	defer logWriter.Close()

	// Enable CPU profiling if flagged
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			logWriter.Fatalf("Could not create CPU profile: %s\n", err.Error())
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			logWriter.Fatalf("Could not start CPU profile: %s\n", err.Error())
		}
		defer pprof.StopCPUProfile()
	}

	var err error
	switch args[0] {
	case "serve":
		err = cmdServe(logWriter)

	case "legal":
		fmt.Fprint(logWriter, legal)

	case "version":
		fmt.Fprintf(logWriter, "Version %s\n", version)

	case "help", "?":
		flag.Usage()

	default:
		driver, ok := drivers.Lookup(args[0])
		if !ok {
			fmt.Fprintf(logWriter, "Unknown command '%s'\n\n", args[0])
			flag.Usage()
			return
		}
		var opts drivers.Options
		if opts, err = options(logWriter); err == nil {
			err = driver(opts)
		}
	}

	now := time.Now()
	elapsed := now.Sub(start)
	fmt.Fprintf(logWriter, "\nDone after %v\n", elapsed)

	// Store memory profile if flagged
	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			logWriter.Fatalf("Could not create memory profile: %s\n", err.Error())
		}
		defer f.Close()
		runtime.GC() // get up-to-date statistics
		if err := pprof.Lookup("allocs").WriteTo(f, 0); err != nil {
			logWriter.Fatalf("Could not write allocation profile: %s\n", err.Error())
		}
	}

	if err != nil {
		logWriter.Fatalf("Error: %s\n", err.Error())
	}
}

// Builds driver options from the command line flags
func options(logWriter *teeLog) (drivers.Options, error) {
	instrument, err := inst.Lookup(*instName)
	if err != nil {
		return drivers.Options{}, err
	}
	if *trim != "" {
		t, err := inst.ParseTrim(*trim)
		if err != nil {
			return drivers.Options{}, err
		}
		if instrument, err = inst.WithTrim(instrument, t); err != nil {
			return drivers.Options{}, err
		}
	}
	plotter, err := newPlotter(logWriter)
	if err != nil {
		return drivers.Options{}, err
	}
	fmt.Fprintf(logWriter, "Using %s on %s with %d physical cores, %d MiB memory, AVX2 %v\n",
		instrument.Name(), cpuid.CPU.BrandName, cpuid.CPU.PhysicalCores, memory.TotalMemory()/1024/1024, cpuid.CPU.AVX2())
	return drivers.Options{
		Inst:         instrument,
		ConfigFile:   *configFile,
		RawDir:       *rawDir,
		RedDir:       *redDir,
		Plotter:      plotter,
		Log:          logWriter,
		MaxThreads:   threadCap(*threads, logWriter),
		Force:        *force,
		AbortOnError: *abort,
		NPix:         *npix,
		Method:       *method,
		Combine:      *combine,
		SkyRejection: *skyReject,
		WriteTIFF:    *tiff,
	}, nil
}

// Limits the number of concurrent groups to the physical cores
func threadCap(n int, logWriter *teeLog) int {
	cores := cpuid.CPU.PhysicalCores
	if cores < 1 {
		cores = runtime.NumCPU()
	}
	if n > cores {
		fmt.Fprintf(logWriter, "Warning: limiting %d threads to %d physical cores\n", n, cores)
		return cores
	}
	return n
}

// Creates the plotter from the -plots flag. Returns nil if plots are disabled
func newPlotter(logWriter *teeLog) (*plot.Plotter, error) {
	switch *plots {
	case "none":
		return nil, nil
	case "":
		return plot.NewPlotter(plot.DefaultConfig(), logWriter), nil
	}
	config, err := plot.LoadConfig(*plots)
	if err != nil {
		return nil, err
	}
	return plot.NewPlotter(config, logWriter), nil
}

// Serves the REST API, after optionally sandboxing the process
func cmdServe(logWriter *teeLog) error {
	plotter, err := newPlotter(logWriter)
	if err != nil {
		return err
	}
	if err := rest.MakeSandbox(*chroot, *setuid, logWriter); err != nil {
		return err
	}
	s := &rest.Server{
		Version: version,
		BaseDir: ".",
		Defaults: drivers.Options{
			Plotter:      plotter,
			MaxThreads:   threadCap(*threads, logWriter),
			NPix:         *npix,
			Method:       *method,
			Combine:      *combine,
			SkyRejection: *skyReject,
			WriteTIFF:    *tiff,
		},
	}
	fmt.Fprintf(logWriter, "Listening on %s\n", *addr)
	return s.Serve(*addr)
}
