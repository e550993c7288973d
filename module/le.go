package module

import "fmt"

const leMaxObjects = 64

// A ProgramHeader is the header of an LE/LX linear executable.
type ProgramHeader struct {
	Signature                 [2]byte
	ByteOrder                 uint8
	WordOrder                 uint8
	FormatLevel               uint32
	CPUType                   uint16
	OSType                    uint16
	ModuleVersion             uint32
	ModuleFlags               uint32
	ModuleNumPages            uint32
	EIPObject                 uint32
	EIP                       uint32
	ESPObject                 uint32
	ESP                       uint32
	PageSize                  uint32
	LastPageSize              uint32 // LE: bytes on last page, LX: page offset shift
	FixupSectionSize          uint32
	FixupSectionChecksum      uint32
	LoaderSectionSize         uint32
	LoaderSectionChecksum     uint32
	ObjectTableOffset         uint32
	NumObjects                uint32
	ObjectPageTableOffset     uint32
	ObjectIterPageTableOffset uint32
	ResourceTableOffset       uint32
	NumResourceTableEntries   uint32
	ResidentNameTableOffset   uint32
	EntryTableOffset          uint32
	ModuleDirectivesOffset    uint32
	NumModuleDirectives       uint32
	FixupPageTableOffset      uint32
	FixupRecordOffset         uint32
	ImportModuleTableOffset   uint32
	ImportModuleEntryCount    uint32
	ImportProcTableOffset     uint32
	PerPageChecksumOffset     uint32
	DataPagesOffset           uint32
	NumPreloadPages           uint32
	NonResNameTableOffset     uint32
	NonResNameTableLength     uint32
	NonResNameTableChecksum   uint32
	AutoDSObject              uint32
	DebugInfoOffset           uint32
	DebugInfoLength           uint32
	NumInstancePreload        uint32
	NumInstanceDemand         uint32
	HeapSize                  uint32
}

// IsLE returns true if the header has the LE signature.
func (p *ProgramHeader) IsLE() bool {
	return p.Signature == [2]byte{'L', 'E'}
}

// IsLX returns true if the header has the LX signature.
func (p *ProgramHeader) IsLX() bool {
	return p.Signature == [2]byte{'L', 'X'}
}

// An ObjectHeader is one entry in the LE/LX object table.
type ObjectHeader struct {
	VirtualSize         uint32
	BaseAddress         uint32
	Flags               uint32
	PageTableIndex      uint32 // 1-based
	NumPageTableEntries uint32
	Reserved            uint32
}

// An lxPage is one entry in the LX object page table.
type lxPage struct {
	DataOffset uint32
	DataSize   uint16
	Flags      uint16
}

// leHeaderOffset returns the offset of the LE/LX header, which is either at
// the start of the file or behind a DOS stub.
func leHeaderOffset(data []byte) (int64, error) {
	if len(data) >= 2 && data[0] == 'M' && data[1] == 'Z' {
		return peHeaderOffset(data)
	}
	return 0, nil
}

func leSections(data []byte) ([]Section, error) {
	base, err := leHeaderOffset(data)
	if err != nil {
		return nil, err
	}
	var p ProgramHeader
	if err := readStruct(data, base, &p, "program header"); err != nil {
		return nil, err
	}
	if !p.IsLE() && !p.IsLX() {
		return nil, malformed("unknown program signature %q (expected LE or LX)", p.Signature[:])
	}
	if p.NumObjects > leMaxObjects {
		return nil, malformed("too many objects: %d", p.NumObjects)
	}
	if p.PageSize == 0 {
		return nil, malformed("page size is zero")
	}
	ohdrs := make([]ObjectHeader, p.NumObjects)
	if err := readStruct(data, base+int64(p.ObjectTableOffset), ohdrs, "object table"); err != nil {
		return nil, err
	}
	pageSize := uint64(p.PageSize)
	var secs []Section
	for i, h := range ohdrs {
		for j := uint32(0); j < h.NumPageTableEntries; j++ {
			index := int64(h.PageTableIndex) + int64(j) - 1
			if index < 0 {
				return nil, malformed("object %d has page table index 0", i+1)
			}
			entry := base + int64(p.ObjectPageTableOffset) + index*4
			var ptr, size uint64
			if p.IsLX() {
				var pg lxPage
				if err := readStruct(data, entry, &pg, "object page table"); err != nil {
					return nil, err
				}
				if pg.Flags != 0 {
					// Iterated, invalid or zero-filled, not a plain copy of
					// the file.
					continue
				}
				ptr = uint64(p.DataPagesOffset) + uint64(pg.DataOffset)<<(p.LastPageSize&31)
				size = uint64(pg.DataSize)
			} else {
				var pg [4]byte
				if err := readStruct(data, entry, &pg, "object page table"); err != nil {
					return nil, err
				}
				if pg[3] != 0 {
					continue
				}
				num := uint64(pg[0])<<16 | uint64(pg[1])<<8 | uint64(pg[2])
				if num == 0 {
					return nil, malformed("object %d page %d has page number 0", i+1, j+1)
				}
				ptr = uint64(p.DataPagesOffset) + (num-1)*pageSize
				size = pageSize
				if num == uint64(p.ModuleNumPages) && p.LastPageSize != 0 {
					size = uint64(p.LastPageSize)
				}
			}
			vstart := uint64(j) * pageSize
			vsize := pageSize
			switch {
			case uint64(h.VirtualSize) <= vstart:
				vsize = 0
			case uint64(h.VirtualSize)-vstart < pageSize:
				vsize = uint64(h.VirtualSize) - vstart
			}
			s := Section{
				Name:           fmt.Sprintf("object %d page %d", i+1, j+1),
				VirtualAddress: uint64(h.BaseAddress) + vstart,
				VirtualSize:    vsize,
				RawPointer:     ptr,
				RawSize:        size,
			}
			s.clamp(uint64(len(data)))
			secs = append(secs, s)
		}
	}
	return secs, nil
}

// sniffLE reports whether the bytes at off hold an LE or LX signature.
func sniffLE(data []byte, off int64) bool {
	if off < 0 || off+2 > int64(len(data)) {
		return false
	}
	return data[off] == 'L' && (data[off+1] == 'E' || data[off+1] == 'X')
}
