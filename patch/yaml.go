package patch

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// An Offset is a file offset which may be written in hex in YAML.
type Offset int64

func (o *Offset) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected offset", n.Line)
	}
	v, err := strconv.ParseInt(n.Value, 0, 64)
	if err != nil {
		return fmt.Errorf("line %d: bad offset %q", n.Line, n.Value)
	}
	*o = Offset(v)
	return nil
}

func (o Offset) MarshalYAML() (interface{}, error) {
	return fmt.Sprintf("0x%x", int64(o)), nil
}

// Hex is a byte sequence written as hex digits in YAML, optionally separated
// by spaces.
type Hex []byte

func (h *Hex) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected hex bytes", n.Line)
	}
	b, err := hex.DecodeString(strings.Join(strings.Fields(n.Value), ""))
	if err != nil {
		return fmt.Errorf("line %d: bad hex bytes %q: %v", n.Line, n.Value, err)
	}
	*h = b
	return nil
}

func (h Hex) MarshalYAML() (interface{}, error) {
	return fmt.Sprintf("% x", []byte(h)), nil
}

type yamlDescriptor struct {
	Description string `yaml:"description,omitempty"`
	Offset      Offset `yaml:"offset"`
	Original    Hex    `yaml:"original"`
	Patched     Hex    `yaml:"patched"`
}

type yamlSet struct {
	File    string           `yaml:"file"`
	Patches []yamlDescriptor `yaml:"patches"`
}

type yamlRegistry struct {
	Version string    `yaml:"version,omitempty"`
	Files   []yamlSet `yaml:"files"`
}

// ParseRegistry reads a registry in YAML format.
//
//	version: 2.0.2.14
//	files:
//	  - file: VRage.Render.dll
//	    patches:
//	      - description: always return true
//	        offset: 0x58588
//	        original: 02 7b 58 0d 00 04 2a
//	        patched: 17 00 00 00 00 00 2a
func ParseRegistry(r io.Reader) (*Registry, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var yr yamlRegistry
	if err := dec.Decode(&yr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	sets := make([]Set, len(yr.Files))
	for i, ys := range yr.Files {
		s := Set{File: ys.File}
		for _, yd := range ys.Patches {
			s.Descriptors = append(s.Descriptors, Descriptor{
				File:        ys.File,
				Description: yd.Description,
				Offset:      int64(yd.Offset),
				Original:    yd.Original,
				Patched:     yd.Patched,
			})
		}
		sets[i] = s
	}
	return NewRegistry(yr.Version, sets...)
}

// LoadRegistry reads a registry from the named YAML file.
func LoadRegistry(name string) (*Registry, error) {
	fp, err := os.Open(name)
	if err != nil {
		return nil, ioFailure(err)
	}
	defer fp.Close()
	r, err := ParseRegistry(fp)
	if err != nil {
		return nil, wrapError(err, name)
	}
	return r, nil
}

// WriteRegistry writes a registry in YAML format.
func WriteRegistry(w io.Writer, r *Registry) error {
	yr := yamlRegistry{Version: r.Version()}
	for _, s := range r.Sets() {
		ys := yamlSet{File: s.File}
		for _, d := range s.Descriptors {
			ys.Patches = append(ys.Patches, yamlDescriptor{
				Description: d.Description,
				Offset:      Offset(d.Offset),
				Original:    d.Original,
				Patched:     d.Patched,
			})
		}
		yr.Files = append(yr.Files, ys)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&yr); err != nil {
		return err
	}
	return enc.Close()
}
