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


// Package rest is an HTTP front end which runs reduction drivers and streams their log.
package rest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/mlnoga/aoreduce/internal/drivers"
	"github.com/mlnoga/aoreduce/internal/inst"
	"github.com/mlnoga/aoreduce/internal/ops"
)

// The HTTP server state. Reductions run one at a time
type Server struct {
	Version  string
	BaseDir  string          // request paths are relative to this directory
	Defaults drivers.Options // thread count, plotter and registration settings for every run

	mu sync.Mutex
}

// Creates the gin router with all API routes
func (s *Server) Router() *gin.Engine {
	r := gin.Default()
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/ping", getPing)
			v1.GET("/version", s.getVersion)
			v1.POST("/reduce", s.postReduce)
		}
	}
	return r
}

// Listens and serves on the given address, e.g. ":8080"
func (s *Server) Serve(addr string) error {
	return s.Router().Run(addr)
}

func getPing(c *gin.Context) {
	c.JSON(200, gin.H{
		"message": "pong",
	})
}

func (s *Server) getVersion(c *gin.Context) {
	c.JSON(200, gin.H{
		"version":     s.Version,
		"instruments": inst.Names(),
		"drivers":     drivers.Commands,
	})
}

func printArgs(logWriter io.Writer, prefix, suffix string, args interface{}) error {
	m, err := json.MarshalIndent(args, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(logWriter, "%s%s%s", prefix, string(m), suffix)
	return nil
}

type postReduceArgs struct {
	Driver     string `json:"driver" binding:"required"`
	Instrument string `json:"instrument" binding:"required"`
	Config     string `json:"config" binding:"required"`
	RawDir     string `json:"rawDir" binding:"required"`
	RedDir     string `json:"redDir" binding:"required"`
	Force      bool   `json:"force"`
	Method     string `json:"method"`
	Trim       string `json:"trim"` // x0,y0,width,height of oriented frames, blank for the full detector
}

// Flushes after every write, so the client sees log lines as they happen.
// Safe for concurrent use by parallel groups
type flushWriter struct {
	mu sync.Mutex
	w  gin.ResponseWriter
}

func (f *flushWriter) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.w.Write(p)
	f.w.Flush()
	return n, err
}

func (s *Server) postReduce(c *gin.Context) {
	var args postReduceArgs
	if err := c.ShouldBindJSON(&args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for _, p := range []string{args.Config, args.RawDir, args.RedDir} {
		if !ops.IsPathAllowed(p) {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("path not allowed: %s", p)})
			return
		}
	}
	driver, ok := drivers.Lookup(args.Driver)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown driver %s", args.Driver)})
		return
	}
	instrument, err := inst.Lookup(args.Instrument)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if args.Trim != "" {
		t, err := inst.ParseTrim(args.Trim)
		if err == nil {
			instrument, err = inst.WithTrim(instrument, t)
		}
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	logWriter := &flushWriter{w: c.Writer}
	header := c.Writer.Header()
	header.Set("Content-Type", "text/plain")
	c.Writer.WriteHeader(http.StatusOK)

	if err := printArgs(logWriter, "Arguments:\n", "\n", args); err != nil {
		fmt.Fprintf(logWriter, "Error printing arguments: %s\n", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	opts := s.Defaults
	opts.Inst = instrument
	opts.ConfigFile = filepath.Join(s.BaseDir, args.Config)
	opts.RawDir = filepath.Join(s.BaseDir, args.RawDir)
	opts.RedDir = filepath.Join(s.BaseDir, args.RedDir)
	opts.Force = args.Force
	if args.Method != "" {
		opts.Method = args.Method
	}
	opts.Log = logWriter
	if err := driver(opts); err != nil {
		fmt.Fprintf(logWriter, "error: %s\n", err.Error())
		return
	}
	fmt.Fprintf(logWriter, "done\n")
}
