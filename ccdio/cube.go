package ccdio

import (
	"fmt"
	"io"
	"sort"

	"github.com/astrogo/fitsio"

	"github.com/katalvlaran/ifucube/cube"
)

// spaxelRow is one row of the SPAXELS table.
type spaxelRow struct {
	Index int64   `fits:"INDEX"`
	X     float64 `fits:"X"`
	Y     float64 `fits:"Y"`
}

// WriteCube encodes c as flux and variance images (one row per spaxel), its
// wavelength grid and a spaxel table. Meta entries become primary-header
// cards in key order; values that are neither numbers, strings nor booleans
// are written with %v.
//
// Errors: ErrNoCommonGrid when c has no shared wavelength grid or no spaxel.
func WriteCube(w io.Writer, c *cube.Cube) error {
	if c == nil || c.Lambda == nil || c.Len() == 0 {
		return ErrNoCommonGrid
	}
	f, err := fitsio.Create(w)
	if err != nil {
		return fmt.Errorf("ccdio: create: %w", err)
	}
	defer f.Close()

	m, n := len(c.Lambda), c.Len()
	flux := make([]float64, 0, m*n)
	vari := make([]float64, 0, m*n)
	for _, s := range c.Spectra {
		flux = append(flux, s.Flux...)
		vari = append(vari, s.Variance...)
	}
	axes := []int{m, n}

	if err := writeImage(f, flux, axes, metaCards(c.Meta)); err != nil {
		return fmt.Errorf("ccdio: cube flux: %w", err)
	}
	if err := writeImage(f, vari, axes, []fitsio.Card{{Name: cardExtName, Value: "VARIANCE"}}); err != nil {
		return fmt.Errorf("ccdio: cube variance: %w", err)
	}
	lambda := append([]float64(nil), c.Lambda...)
	lcards := []fitsio.Card{
		{Name: cardExtName, Value: "LAMBDA"},
		{Name: "BUNIT", Value: "Angstrom"},
	}
	if err := writeImage(f, lambda, []int{m}, lcards); err != nil {
		return fmt.Errorf("ccdio: cube lambda: %w", err)
	}
	if err := writeSpaxels(f, c); err != nil {
		return fmt.Errorf("ccdio: cube spaxels: %w", err)
	}

	return nil
}

func writeSpaxels(f *fitsio.File, c *cube.Cube) error {
	cols := []fitsio.Column{
		{Name: "INDEX", Format: "K"},
		{Name: "X", Format: "D"},
		{Name: "Y", Format: "D"},
	}
	tbl, err := fitsio.NewTable("SPAXELS", cols, fitsio.BINARY_TBL)
	if err != nil {
		return err
	}
	defer tbl.Close()
	for k, idx := range c.Indexes {
		row := spaxelRow{Index: int64(idx), X: c.Positions[k].X, Y: c.Positions[k].Y}
		if err := tbl.Write(&row); err != nil {
			return err
		}
	}

	return f.Write(tbl)
}

func metaCards(meta map[string]any) []fitsio.Card {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cards := make([]fitsio.Card, 0, len(keys))
	for _, k := range keys {
		var v any
		switch x := meta[k].(type) {
		case float64, float32, int, int64, bool, string:
			v = x
		default:
			v = fmt.Sprintf("%v", x)
		}
		cards = append(cards, fitsio.Card{Name: k, Value: v})
	}

	return cards
}
