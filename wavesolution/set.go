package wavesolution

import (
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Set holds one Solution per trace index.
type Set struct {
	version string
	byTrace map[int]Solution
}

// NewSet returns an empty set with a version label.
func NewSet(version string) *Set {
	return &Set{version: version, byTrace: make(map[int]Solution)}
}

// Version returns the set's version label.
func (s *Set) Version() string { return s.version }

// Put stores sol for trace idx, replacing any previous entry.
func (s *Set) Put(idx int, sol Solution) { s.byTrace[idx] = sol }

// Get returns the solution of trace idx.
func (s *Set) Get(idx int) (Solution, error) {
	sol, ok := s.byTrace[idx]
	if !ok {
		return nil, fmt.Errorf("trace %d: %w", idx, ErrMissingSolution)
	}

	return sol, nil
}

// Len returns the number of solutions.
func (s *Set) Len() int { return len(s.byTrace) }

// Indexes returns the trace indexes in ascending order.
func (s *Set) Indexes() []int {
	out := make([]int, 0, len(s.byTrace))
	for idx := range s.byTrace {
		out = append(out, idx)
	}
	sort.Ints(out)

	return out
}

// fileSet is the YAML schema:
//
//	version: "2024-arc-07"
//	solutions:
//	  - trace: 12
//	    ref: 1024
//	    domain: [0, 2047]
//	    coeffs: [6500, 1.83, 1.2e-5]
//	  - trace: 13
//	    identity: true
//	    domain: [0, 2047]
type fileSet struct {
	Version   string         `yaml:"version"`
	Solutions []fileSolution `yaml:"solutions"`
}

type fileSolution struct {
	Trace    int        `yaml:"trace"`
	Identity bool       `yaml:"identity,omitempty"`
	Ref      float64    `yaml:"ref,omitempty"`
	Domain   [2]float64 `yaml:"domain"`
	Coeffs   []float64  `yaml:"coeffs,omitempty"`
}

// LoadSet decodes a YAML solution set. Non-monotonic solutions are not
// rejected here: they are recorded with the error returned alongside, so a
// single bad trace does not discard the whole set.
//
// The returned map lists traces whose solution failed validation; those
// traces are absent from the Set.
func LoadSet(r io.Reader) (*Set, map[int]error, error) {
	var fs fileSet
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fs); err != nil {
		return nil, nil, fmt.Errorf("wavesolution: decode: %w", err)
	}

	set := NewSet(fs.Version)
	bad := make(map[int]error)
	for _, e := range fs.Solutions {
		var sol Solution
		if e.Identity {
			id := Identity{Lo: e.Domain[0], Hi: e.Domain[1]}
			if err := CheckMonotonic(id); err != nil {
				bad[e.Trace] = err
				continue
			}
			sol = id
		} else {
			p, err := NewPolynomial(e.Coeffs, e.Ref, e.Domain[0], e.Domain[1])
			if err != nil {
				bad[e.Trace] = err
				continue
			}
			sol = p
		}
		set.Put(e.Trace, sol)
	}

	return set, bad, nil
}

// LoadSetFile opens path and calls LoadSet.
func LoadSetFile(path string) (*Set, map[int]error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("wavesolution: %w", err)
	}
	defer f.Close()

	return LoadSet(f)
}
