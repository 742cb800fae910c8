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
	"fmt"
	"os"
	"path/filepath"

	"github.com/mlnoga/aoreduce/internal/fits"
	"github.com/mlnoga/aoreduce/internal/ops"
)

// Master frames for calibrating the frames of one exposure time and filter.
// Nil entries are skipped
type Calibration struct {
	Dark *fits.Image
	Flat *fits.Image
	Sky  *fits.Image
}

// Returns the sky file name for the given target directory and filter
func SkyFileName(sDir, filt string) string {
	return filepath.Join(sDir, filt, "sky.fits")
}

// Opens a sky frame
func OpenSky(skyFile string, c *ops.Context) (*fits.Image, error) {
	if _, err := os.Stat(skyFile); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSkyNotFound, skyFile)
	}
	return fits.NewImageFromFile(skyFile, fits.IDSky, c.Log)
}

// Loads the master dark for the exposure time, and the flat for the filter, from redDir.
// If withSky is set, also loads the sky for the filter from sDir, with NaNs replaced by zero
func LoadCalibration(c *ops.Context, redDir, sDir string, expTime float64, filt string, withSky bool) (*Calibration, error) {
	cal := &Calibration{}
	var err error
	if cal.Dark, err = OpenDarks(DarkFileName(redDir, expTime), c.Log); err != nil {
		return nil, err
	}
	if cal.Flat, err = OpenFlats(FlatFileName(redDir, filt), c.Log); err != nil {
		return nil, err
	}
	if err = checkShape(cal.Dark, cal.Flat); err != nil {
		return nil, err
	}
	if withSky {
		if cal.Sky, err = OpenSky(SkyFileName(sDir, filt), c); err != nil {
			return nil, err
		}
		if err = checkShape(cal.Dark, cal.Sky); err != nil {
			return nil, err
		}
		cal.Sky.ReplaceNaN(0)
	}
	return cal, nil
}

// Calibrates a frame in place: (raw - dark) / flat - sky.
// The frame is left untouched if any master frame has a different shape
func (cal *Calibration) Apply(f *fits.Image) error {
	steps := []struct {
		master *fits.Image
		op     func(*fits.Image) error
	}{
		{cal.Dark, f.Subtract},
		{cal.Flat, f.Divide},
		{cal.Sky, f.Subtract},
	}
	for _, s := range steps {
		if s.master != nil {
			if err := checkShape(f, s.master); err != nil {
				return err
			}
		}
	}
	for _, s := range steps {
		if s.master != nil {
			if err := s.op(s.master); err != nil {
				return fmt.Errorf("%d: calibrating with %s: %w", f.ID, s.master.FileName, err)
			}
		}
	}
	return nil
}
