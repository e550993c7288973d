// Package patch classifies, applies and restores fixed-offset, same-length
// byte patches in files on disk.
//
// The file on disk is the only source of truth. Nothing read from a file is
// kept between operations, and every write replaces the file with a rename so
// that an interrupted operation leaves the previous content in place.
package patch

import (
	"bytes"
	"fmt"
)

// A Descriptor is one byte-level change at a fixed offset in a file.
type Descriptor struct {
	File        string // target file, relative to the install root
	Description string // why the change is made, for reports only
	Offset      int64  // file offset, resolved ahead of time
	Original    []byte // bytes before patching
	Patched     []byte // bytes after patching, same length as Original
}

// Len returns the number of bytes the descriptor covers.
func (d Descriptor) Len() int64 {
	return int64(len(d.Original))
}

// End returns the offset one past the last byte the descriptor covers.
func (d Descriptor) End() int64 {
	return d.Offset + d.Len()
}

// overlaps returns true if the descriptors cover any byte in common.
func (d Descriptor) overlaps(e Descriptor) bool {
	return d.Offset < e.End() && e.Offset < d.End()
}

func (d Descriptor) check() error {
	switch {
	case d.Offset < 0:
		return fmt.Errorf("%w: negative offset %d", ErrInvalidDescriptor, d.Offset)
	case len(d.Original) == 0:
		return fmt.Errorf("%w: empty byte sequence", ErrInvalidDescriptor)
	case len(d.Original) != len(d.Patched):
		return fmt.Errorf("%w: original is %d bytes, patched is %d bytes",
			ErrInvalidDescriptor, len(d.Original), len(d.Patched))
	case bytes.Equal(d.Original, d.Patched):
		return fmt.Errorf("%w: original and patched bytes are identical", ErrInvalidDescriptor)
	}
	return nil
}

// Validate checks that a file of the given size holds the descriptor's whole
// byte range.
func (d Descriptor) Validate(size int64) error {
	if d.End() > size {
		return fmt.Errorf("%w: need %d bytes at 0x%x, file has %d bytes",
			ErrTruncatedFile, d.Len(), d.Offset, size)
	}
	return nil
}

func (d Descriptor) clone() Descriptor {
	d.Original = append([]byte(nil), d.Original...)
	d.Patched = append([]byte(nil), d.Patched...)
	return d
}

// A Set is the ordered list of descriptors for one file.
type Set struct {
	File        string
	Descriptors []Descriptor
}

func (s Set) check() error {
	for i, d := range s.Descriptors {
		if err := d.check(); err != nil {
			return wrapErrorDescriptor(err, i, d)
		}
		if d.File != "" && d.File != s.File {
			return wrapErrorDescriptor(
				fmt.Errorf("%w: descriptor names file %q", ErrInvalidDescriptor, d.File), i, d)
		}
		for j := 0; j < i; j++ {
			if e := s.Descriptors[j]; d.overlaps(e) {
				return wrapErrorDescriptor(
					fmt.Errorf("%w: overlaps descriptor %d at 0x%x", ErrInvalidDescriptor, j, e.Offset), i, d)
			}
		}
	}
	return nil
}

func (s Set) clone() Set {
	ds := make([]Descriptor, len(s.Descriptors))
	for i, d := range s.Descriptors {
		ds[i] = d.clone()
		ds[i].File = s.File
	}
	return Set{File: s.File, Descriptors: ds}
}
