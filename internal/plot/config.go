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


// Package plot renders diagnostic panels of image arrays to PNG files.
package plot

import (
	"errors"
	"fmt"
	"io/ioutil"

	"gopkg.in/yaml.v3"
)

// Returned for plot types other than the known ones
var ErrUnknownPlotType = errors.New("plotting is not implemented for this plot type")

// Known plot types
const (
	TypeRots         = "rots"
	TypeFinalIm      = "final_im"
	TypeIntermediate = "intermediate"
)

// Per plot type settings
type TypeConfig struct {
	Plot      bool   `yaml:"plot"`
	Colormap  string `yaml:"colormap"`
	Colorbars bool   `yaml:"colorbars"`
	Scaling   string `yaml:"scaling"`
}

// Plot settings for all plot types.
//
// Example file:
//
//   intermediate:
//     plot: true
//     colormap: viridis
//     colorbars: true
//     scaling: linear
//   rots:
//     plot: false
//   final_im:
//     colormap: gray
//     scaling: log
type Config struct {
	Rots         TypeConfig `yaml:"rots"`
	FinalIm      TypeConfig `yaml:"final_im"`
	Intermediate TypeConfig `yaml:"intermediate"`
	PanelSize    int        `yaml:"panel_size"` // edge length of one panel in pixels
}

func defaultTypeConfig() TypeConfig {
	return TypeConfig{Plot: true, Colormap: "plasma", Colorbars: true, Scaling: ScalingLinear}
}

// Returns the settings used when no file is given: all plots on, plasma colormap,
// colorbars and linear scaling
func DefaultConfig() Config {
	return Config{
		Rots:         defaultTypeConfig(),
		FinalIm:      defaultTypeConfig(),
		Intermediate: defaultTypeConfig(),
		PanelSize:    240,
	}
}

// Loads settings from the YAML file with the given name. Keys missing in the file keep their defaults
func LoadConfig(fileName string) (Config, error) {
	c := DefaultConfig()
	b, err := ioutil.ReadFile(fileName)
	if err != nil {
		return c, fmt.Errorf("read '%s': %w", fileName, err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("parse '%s': %w", fileName, err)
	}
	return c, c.Validate()
}

// Checks colormap and scaling names of all plot types
func (c *Config) Validate() error {
	for _, name := range []string{TypeRots, TypeFinalIm, TypeIntermediate} {
		tc, _ := c.For(name)
		if _, ok := colormaps[tc.Colormap]; !ok {
			return fmt.Errorf("%s: unknown colormap '%s'", name, tc.Colormap)
		}
		if _, ok := scalings[tc.Scaling]; !ok {
			return fmt.Errorf("%s: unknown scaling '%s'", name, tc.Scaling)
		}
	}
	if c.PanelSize < 16 {
		return fmt.Errorf("panel size %d too small", c.PanelSize)
	}
	return nil
}

// Returns the settings for the given plot type
func (c *Config) For(plotType string) (TypeConfig, error) {
	switch plotType {
	case TypeRots:
		return c.Rots, nil
	case TypeFinalIm:
		return c.FinalIm, nil
	case TypeIntermediate:
		return c.Intermediate, nil
	}
	return TypeConfig{}, fmt.Errorf("%w: '%s'", ErrUnknownPlotType, plotType)
}
