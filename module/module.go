// Package module maps virtual addresses inside executable modules (PE, LE/LX
// and ELF images) to positions in the file on disk.
package module

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
)

var (
	// ErrMalformedImage indicates that an image header could not be parsed.
	ErrMalformedImage = errors.New("malformed image")
	// ErrAddressNotMapped indicates that no section holds the address on disk.
	ErrAddressNotMapped = errors.New("address not mapped")
	// ErrUnknownFormat indicates that no parser is registered for a format.
	ErrUnknownFormat = errors.New("unknown image format")
)

// A Format names an executable image format.
type Format string

const (
	// FormatPE is the Portable Executable format (Windows EXE/DLL, managed
	// assemblies).
	FormatPE Format = "pe"
	// FormatLE is the LE/LX linear executable format.
	FormatLE Format = "le"
	// FormatELF is the Executable and Linkable Format.
	FormatELF Format = "elf"
)

// A Section is a contiguous region of an image, with both a range of virtual
// addresses and a range of bytes in the file.
type Section struct {
	Name           string // section name, may be empty
	VirtualAddress uint64 // address where the region is loaded
	VirtualSize    uint64 // size of the region, in memory
	RawPointer     uint64 // offset of the region's data in the file
	RawSize        uint64 // size of the region's data in the file
}

// bound returns the size used to decide whether an address is inside the
// section.
//
// Linkers sometimes leave VirtualSize zero and only fill in the raw size. In
// that case the raw size is used instead. This is a heuristic, not a rule of
// any format.
func (s Section) bound() uint64 {
	if s.VirtualSize == 0 {
		return s.RawSize
	}
	return s.VirtualSize
}

// hasAddr returns true if the section's virtual range contains the address.
func (s Section) hasAddr(addr uint64) bool {
	return s.VirtualAddress <= addr && addr-s.VirtualAddress < s.bound()
}

// clamp shrinks the raw range so that it ends within a file of the given
// size. Linkers often round the last raw size up past the end of the file,
// and truncated images cut it short.
func (s *Section) clamp(size uint64) {
	switch {
	case s.RawPointer >= size:
		s.RawSize = 0
	case s.RawSize > size-s.RawPointer:
		s.RawSize = size - s.RawPointer
	}
}

// A Parser reads the section table of one image format.
type Parser interface {
	Sections(data []byte) ([]Section, error)
}

// ParserFunc adapts a function to the Parser interface.
type ParserFunc func(data []byte) ([]Section, error)

// Sections implements Parser.
func (f ParserFunc) Sections(data []byte) ([]Section, error) {
	return f(data)
}

var (
	parsersMu sync.RWMutex
	parsers   = map[Format]Parser{}
)

// Register makes a parser available for the given format. Registering a
// format twice replaces the earlier parser.
func Register(f Format, p Parser) {
	parsersMu.Lock()
	defer parsersMu.Unlock()
	parsers[f] = p
}

// Lookup returns the parser registered for a format.
func Lookup(f Format) (Parser, error) {
	parsersMu.RLock()
	defer parsersMu.RUnlock()
	p, ok := parsers[f]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
	return p, nil
}

// Formats returns the registered formats, sorted.
func Formats() []Format {
	parsersMu.RLock()
	defer parsersMu.RUnlock()
	fs := make([]Format, 0, len(parsers))
	for f := range parsers {
		fs = append(fs, f)
	}
	sort.Slice(fs, func(i, j int) bool { return fs[i] < fs[j] })
	return fs
}

func init() {
	Register(FormatPE, ParserFunc(peSections))
	Register(FormatLE, ParserFunc(leSections))
	Register(FormatELF, ParserFunc(elfSections))
}

// ResolveSections returns the file offset of a virtual address, given the
// section table of an image.
func ResolveSections(secs []Section, addr uint64) (int64, error) {
	for _, s := range secs {
		if !s.hasAddr(addr) {
			continue
		}
		off := addr - s.VirtualAddress
		if off >= s.RawSize {
			// Zero-filled tail of the section, nothing on disk.
			return 0, fmt.Errorf("%w: 0x%x is in uninitialized data of section %q",
				ErrAddressNotMapped, addr, s.Name)
		}
		return int64(s.RawPointer + off), nil
	}
	return 0, fmt.Errorf("%w: 0x%x", ErrAddressNotMapped, addr)
}

// Sections parses the section table of an image. If the format is empty it
// is detected from the image.
func Sections(f Format, data []byte) ([]Section, Format, error) {
	if f == "" {
		var err error
		if f, err = Detect(data); err != nil {
			return nil, "", err
		}
	}
	p, err := Lookup(f)
	if err != nil {
		return nil, f, err
	}
	secs, err := p.Sections(data)
	return secs, f, err
}

// Resolve returns the file offset of a virtual address in an image. If the
// format is empty it is detected from the image.
func Resolve(f Format, data []byte, addr uint64) (int64, error) {
	secs, _, err := Sections(f, data)
	if err != nil {
		return 0, err
	}
	return ResolveSections(secs, addr)
}

// ResolveFile reads the named file and resolves addresses in it.
func ResolveFile(name string, f Format, addrs ...uint64) ([]int64, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	secs, _, err := Sections(f, data)
	if err != nil {
		return nil, err
	}
	offs := make([]int64, len(addrs))
	for i, addr := range addrs {
		if offs[i], err = ResolveSections(secs, addr); err != nil {
			return nil, err
		}
	}
	return offs, nil
}
