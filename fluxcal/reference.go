package fluxcal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Reference is a catalogue spectrum of a standard star on ascending
// wavelengths (Å).
type Reference struct {
	Name   string
	Lambda []float64
	Flux   []float64
}

func (r *Reference) validate() error {
	n := len(r.Lambda)
	if n < 2 || len(r.Flux) != n {
		return fluxcalErrorf("Reference", fmt.Errorf("%q: %d λ, %d flux: %w", r.Name, n, len(r.Flux), ErrBadSpectrum))
	}
	for i := 1; i < n; i++ {
		if !(r.Lambda[i] > r.Lambda[i-1]) {
			return fluxcalErrorf("Reference", fmt.Errorf("%q: λ not ascending at %d: %w", r.Name, i, ErrBadSpectrum))
		}
	}

	return nil
}

// At interpolates the reference linearly at lbda; ok is false outside the
// tabulated range.
func (r *Reference) At(lbda float64) (float64, bool) {
	n := len(r.Lambda)
	if n == 0 || math.IsNaN(lbda) || lbda < r.Lambda[0] || lbda > r.Lambda[n-1] {
		return 0, false
	}
	i := sort.SearchFloat64s(r.Lambda, lbda)
	if r.Lambda[i] == lbda {
		return r.Flux[i], true
	}
	t := (lbda - r.Lambda[i-1]) / (r.Lambda[i] - r.Lambda[i-1])

	return r.Flux[i-1] + t*(r.Flux[i]-r.Flux[i-1]), true
}

// ReferenceProvider resolves a star name to its reference spectrum.
type ReferenceProvider interface {
	Reference(ctx context.Context, name string) (*Reference, error)
}

// StaticProvider serves references from memory, keyed by normalised name.
type StaticProvider map[string]*Reference

// Add registers ref under its name.
func (p StaticProvider) Add(ref *Reference) { p[normalizeName(ref.Name)] = ref }

// Reference implements ReferenceProvider.
func (p StaticProvider) Reference(_ context.Context, name string) (*Reference, error) {
	ref, ok := p[normalizeName(name)]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownStar)
	}

	return ref, nil
}

// FileProvider reads references from a directory of ASCII spectra named
// "<name>.dat" (lower case, spaces and dashes removed): whitespace-separated
// columns λ, flux[, error]; '#' starts a comment.
type FileProvider struct {
	Dir string
}

// Reference implements ReferenceProvider.
func (p FileProvider) Reference(ctx context.Context, name string) (*Reference, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(p.Dir, normalizeName(name)+".dat")
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%q (%s): %w", name, path, ErrUnknownStar)
	}
	if err != nil {
		return nil, fmt.Errorf("fluxcal: %w", err)
	}
	defer f.Close()

	ref, err := ParseReference(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	ref.Name = name

	return ref, nil
}

// ParseReference reads a two- or three-column ASCII spectrum, sorted by
// wavelength on return.
//
// Errors: ErrBadSpectrum on malformed rows or fewer than two samples.
func ParseReference(r io.Reader) (*Reference, error) {
	ref := &Reference{}
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		cols := strings.Fields(text)
		if len(cols) == 0 {
			continue
		}
		if len(cols) < 2 || len(cols) > 3 {
			return nil, fmt.Errorf("line %d: %d columns: %w", line, len(cols), ErrBadSpectrum)
		}
		l, err1 := strconv.ParseFloat(cols[0], 64)
		v, err2 := strconv.ParseFloat(cols[1], 64)
		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("line %d: %w", line, ErrBadSpectrum)
		}
		ref.Lambda = append(ref.Lambda, l)
		ref.Flux = append(ref.Flux, v)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("fluxcal: %w", err)
	}
	sort.Sort(byLambda{ref})
	if err := ref.validate(); err != nil {
		return nil, err
	}

	return ref, nil
}

type byLambda struct{ r *Reference }

func (b byLambda) Len() int           { return len(b.r.Lambda) }
func (b byLambda) Less(i, j int) bool { return b.r.Lambda[i] < b.r.Lambda[j] }
func (b byLambda) Swap(i, j int) {
	b.r.Lambda[i], b.r.Lambda[j] = b.r.Lambda[j], b.r.Lambda[i]
	b.r.Flux[i], b.r.Flux[j] = b.r.Flux[j], b.r.Flux[i]
}

func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	return strings.NewReplacer(" ", "", "-", "", "_", "").Replace(s)
}
