package module

import (
	"bytes"
	"debug/elf"
	"fmt"
)

func elfSections(data []byte) ([]Section, error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, malformed("%v", err)
	}
	defer f.Close()
	var secs []Section
	for i, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		s := Section{
			Name:           fmt.Sprintf("segment %d", i),
			VirtualAddress: p.Vaddr,
			VirtualSize:    p.Memsz,
			RawPointer:     p.Off,
			RawSize:        p.Filesz,
		}
		s.clamp(uint64(len(data)))
		secs = append(secs, s)
	}
	return secs, nil
}

// Detect returns the format of an image from its signature.
func Detect(data []byte) (Format, error) {
	switch {
	case bytes.HasPrefix(data, []byte(elf.ELFMAG)):
		return FormatELF, nil
	case sniffLE(data, 0):
		return FormatLE, nil
	case bytes.HasPrefix(data, []byte("MZ")):
		off, err := peHeaderOffset(data)
		if err != nil {
			return "", err
		}
		if sniffLE(data, off) {
			return FormatLE, nil
		}
		if off >= 0 && off+4 <= int64(len(data)) && string(data[off:off+4]) == "PE\x00\x00" {
			return FormatPE, nil
		}
		return "", malformed("DOS stub without PE or LE header")
	}
	return "", malformed("unrecognized image signature")
}
