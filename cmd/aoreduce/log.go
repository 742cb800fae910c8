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
	"bufio"
	"fmt"
	"os"
	"sync"
)

// Log writer. Writes to stdout, and optionally to a file.
// Does not add prefixes, or force newlines. Safe for concurrent use
type teeLog struct {
	mu     sync.Mutex
	file   *bufio.Writer
	fileOS *os.File
}

// Enables logging to file
func (l *teeLog) AlsoToFile(fileName string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.closeFile(); err != nil {
		return err
	}
	f, err := os.OpenFile(fileName, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0666)
	if err != nil {
		return err
	}
	l.fileOS, l.file = f, bufio.NewWriter(f)
	return nil
}

func (l *teeLog) Write(p []byte) (n int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, err = os.Stdout.Write(p)
	if err != nil || l.file == nil {
		return n, err
	}
	return l.file.Write(p)
}

// Logs the message and exits with a non-zero status
func (l *teeLog) Fatalf(format string, args ...interface{}) {
	fmt.Fprintf(l, format, args...)
	l.Close()
	os.Exit(1)
}

// Flushes and closes the log file, if any
func (l *teeLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeFile()
}

func (l *teeLog) closeFile() error {
	if l.file == nil {
		return nil
	}
	if err := l.file.Flush(); err != nil {
		return err
	}
	err := l.fileOS.Close()
	l.file, l.fileOS = nil, nil
	return err
}
