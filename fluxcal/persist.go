package fluxcal

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Persistable is implemented by artifacts that serialise themselves.
type Persistable interface {
	io.WriterTo
	io.ReaderFrom
}

var _ Persistable = (*Spectrum)(nil)

// artifactVersion tags the YAML layout.
const artifactVersion = 1

type artifact struct {
	Version  int       `yaml:"version"`
	Spectrum *Spectrum `yaml:"fluxcal"`
}

// WriteTo encodes s as YAML. Floats are written in shortest round-trip form,
// so ReadFrom restores bit-identical coefficients.
func (s *Spectrum) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	enc := yaml.NewEncoder(cw)
	enc.SetIndent(2)
	if err := enc.Encode(artifact{Version: artifactVersion, Spectrum: s}); err != nil {
		return cw.n, fmt.Errorf("fluxcal: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return cw.n, fmt.Errorf("fluxcal: encode: %w", err)
	}

	return cw.n, nil
}

// ReadFrom decodes a YAML artifact into s, replacing its contents.
func (s *Spectrum) ReadFrom(r io.Reader) (int64, error) {
	cr := &countingReader{r: r}
	var a artifact
	dec := yaml.NewDecoder(cr)
	dec.KnownFields(true)
	if err := dec.Decode(&a); err != nil {
		return cr.n, fmt.Errorf("fluxcal: decode: %w", err)
	}
	if a.Version != artifactVersion || a.Spectrum == nil {
		return cr.n, fmt.Errorf("fluxcal: artifact version %d: %w", a.Version, ErrBadSpectrum)
	}
	if !(a.Spectrum.LambdaHalf > 0) || !(a.Spectrum.ResolvingPower > 0) {
		return cr.n, fmt.Errorf("fluxcal: artifact normalisation: %w", ErrBadSpectrum)
	}
	*s = *a.Spectrum

	return cr.n, nil
}

// Save writes s to path.
func (s *Spectrum) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("fluxcal: %w", err)
	}
	if _, err := s.WriteTo(f); err != nil {
		f.Close()

		return err
	}

	return f.Close()
}

// Load reads an artifact from path.
func Load(path string) (*Spectrum, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("fluxcal: %w", err)
	}
	defer f.Close()

	s := &Spectrum{}
	if _, err := s.ReadFrom(f); err != nil {
		return nil, err
	}

	return s, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)

	return n, err
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)

	return n, err
}
