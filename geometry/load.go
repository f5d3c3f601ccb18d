package geometry

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// fileLayout is the on-disk YAML form of a Geometry.
//
//	version: "2019-04-17"
//	detector: {width: 2048, height: 2048}
//	hexgrid: {scale: 1.0, rotation_deg: 103}
//	traces:
//	  - index: 0
//	    q: 0
//	    r: 0
//	    vertices: [[100, 50], [300, 50], [300, 60], [100, 60]]
type fileLayout struct {
	Version  string       `yaml:"version"`
	Detector fileDetector `yaml:"detector"`
	HexGrid  *fileHexGrid `yaml:"hexgrid,omitempty"`
	Traces   []fileTrace  `yaml:"traces"`
}

type fileDetector struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

type fileHexGrid struct {
	Scale       float64 `yaml:"scale"`
	RotationDeg float64 `yaml:"rotation_deg"`
}

type fileTrace struct {
	Index    int          `yaml:"index"`
	Q        *int         `yaml:"q,omitempty"`
	R        *int         `yaml:"r,omitempty"`
	Vertices [][2]float64 `yaml:"vertices"`
}

// Load decodes a YAML trace layout from r.
// Traces that carry q/r coordinates populate the hex grid; a layout with a
// hexgrid section but no placed traces yields an empty grid.
func Load(r io.Reader) (*Geometry, error) {
	var fl fileLayout
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fl); err != nil {
		return nil, fmt.Errorf("geometry: decode layout: %w", err)
	}

	traces := make([]Trace, 0, len(fl.Traces))
	cells := make(map[int]QR)
	for _, ft := range fl.Traces {
		poly := make(Polygon, len(ft.Vertices))
		for i, v := range ft.Vertices {
			poly[i] = Point{X: v[0], Y: v[1]}
		}
		traces = append(traces, Trace{Index: ft.Index, Footprint: poly})
		if ft.Q != nil && ft.R != nil {
			cells[ft.Index] = QR{Q: *ft.Q, R: *ft.R}
		}
	}

	var grid *HexGrid
	if fl.HexGrid != nil {
		g, err := NewHexGrid(fl.HexGrid.Scale, fl.HexGrid.RotationDeg, cells)
		if err != nil {
			return nil, err
		}
		grid = g
	}

	return New(fl.Version, fl.Detector.Width, fl.Detector.Height, traces, grid)
}

// LoadFile opens path and decodes it with Load.
func LoadFile(path string) (*Geometry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geometry: open layout: %w", err)
	}
	defer f.Close()

	return Load(f)
}
