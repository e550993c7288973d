package module

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	dosHeaderSize     = 0x40
	peSignatureOffset = 0x3c
	peMaxSections     = 96
)

// A FileHeader is the COFF file header which follows the PE signature.
type FileHeader struct {
	Machine              uint16
	NumberOfSections     uint16
	TimeDateStamp        uint32
	PointerToSymbolTable uint32
	NumberOfSymbols      uint32
	SizeOfOptionalHeader uint16
	Characteristics      uint16
}

// A SectionHeader is one entry in the PE section table.
type SectionHeader struct {
	Name                 [8]byte
	VirtualSize          uint32
	VirtualAddress       uint32
	SizeOfRawData        uint32
	PointerToRawData     uint32
	PointerToRelocations uint32
	PointerToLinenumbers uint32
	NumberOfRelocations  uint16
	NumberOfLinenumbers  uint16
	Characteristics      uint32
}

// malformed returns an ErrMalformedImage with detail.
func malformed(f string, a ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformedImage, fmt.Sprintf(f, a...))
}

// readStruct decodes a little endian structure at the given offset.
func readStruct(data []byte, off int64, v interface{}, what string) error {
	if off < 0 || off > int64(len(data)) {
		return malformed("%s at 0x%x is out of bounds", what, off)
	}
	err := binary.Read(bytes.NewReader(data[off:]), binary.LittleEndian, v)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return malformed("%s at 0x%x is truncated", what, off)
	}
	return err
}

// peHeaderOffset returns the offset of the NT header named by the DOS header.
func peHeaderOffset(data []byte) (int64, error) {
	if len(data) < dosHeaderSize {
		return 0, malformed("DOS header is truncated")
	}
	if data[0] != 'M' || data[1] != 'Z' {
		return 0, malformed("unknown DOS signature %q", data[:2])
	}
	return int64(binary.LittleEndian.Uint32(data[peSignatureOffset:])), nil
}

func peSections(data []byte) ([]Section, error) {
	off, err := peHeaderOffset(data)
	if err != nil {
		return nil, err
	}
	var sig [4]byte
	if err := readStruct(data, off, &sig, "PE signature"); err != nil {
		return nil, err
	}
	if string(sig[:]) != "PE\x00\x00" {
		return nil, malformed("unknown PE signature %q", sig[:])
	}
	off += int64(len(sig))
	var fh FileHeader
	if err := readStruct(data, off, &fh, "file header"); err != nil {
		return nil, err
	}
	if fh.NumberOfSections > peMaxSections {
		return nil, malformed("too many sections: %d", fh.NumberOfSections)
	}
	off += int64(binary.Size(fh)) + int64(fh.SizeOfOptionalHeader)
	shdrs := make([]SectionHeader, fh.NumberOfSections)
	if err := readStruct(data, off, shdrs, "section table"); err != nil {
		return nil, err
	}
	size := uint64(len(data))
	secs := make([]Section, len(shdrs))
	for i, h := range shdrs {
		s := Section{
			Name:           string(bytes.TrimRight(h.Name[:], "\x00")),
			VirtualAddress: uint64(h.VirtualAddress),
			VirtualSize:    uint64(h.VirtualSize),
			RawPointer:     uint64(h.PointerToRawData),
			RawSize:        uint64(h.SizeOfRawData),
		}
		s.clamp(size)
		secs[i] = s
	}
	return secs, nil
}
