package module

import (
	"bufio"
	"strconv"
	"strings"
)

const indentLevel = "  "

const hexDigits = "0123456789abcdef"

func writeHexStr(w *bufio.Writer, b []byte) {
	d := make([]byte, 4*len(b)+3)
	j := 3*len(b) + 2
	for i, c := range b {
		d[i*3+0] = hexDigits[c>>4]
		d[i*3+1] = hexDigits[c&15]
		d[i*3+2] = ' '
		d[j+i] = '.'
		if 0x20 <= c && c <= 0x7e {
			d[j+i] = c
		}
	}
	d[j-2] = ' '
	d[j-1] = '"'
	d[4*len(b)+2] = '"'
	w.Write(d)
}

func writeInt0(w *bufio.Writer, v uint64, sz uint) {
	for i := uint(sz * 2); i > 0; i-- {
		w.WriteByte(hexDigits[(v>>((i-1)*4))&15])
	}
}

func writeInt(w *bufio.Writer, v uint64, sz uint) {
	w.WriteString("0x")
	writeInt0(w, v, sz)
}

type field struct {
	name string
	data interface{}
	hint string
}

func dumpFields(w *bufio.Writer, prefix string, fields []field) {
	if len(fields) == 0 {
		return
	}
	var (
		minName = int(^uint(0) >> 1)
		maxName int
	)
	for _, f := range fields {
		if len(f.name) > maxName {
			maxName = len(f.name)
		}
		if len(f.name) < minName {
			minName = len(f.name)
		}
	}
	spaces := make([]byte, maxName+2-minName)
	for i := range spaces {
		spaces[i] = ' '
	}
	for _, f := range fields {
		w.WriteString(prefix)
		w.WriteString(f.name)
		w.WriteByte(':')
		w.Write(spaces[:maxName+2-len(f.name)])
		switch v := f.data.(type) {
		case []byte:
			writeHexStr(w, v)
		case string:
			w.WriteString(strconv.Quote(v))
		case uint32:
			writeInt(w, uint64(v), 4)
		case uint64:
			if v > 0xffffffff {
				writeInt(w, v, 8)
			} else {
				writeInt(w, v, 4)
			}
		default:
			panic("unknown field type for " + f.name)
		}
		if f.hint != "" {
			w.WriteString("  ")
			w.WriteString(f.hint)
		}
		w.WriteByte('\n')
	}
}

// DumpText writes the section, in text format, to the writer.
func (s *Section) DumpText(w *bufio.Writer, prefix string) {
	hint := ""
	if s.VirtualSize == 0 && s.RawSize != 0 {
		hint = "raw size used as bound"
	}
	dumpFields(w, prefix, []field{
		{"Name", s.Name, ""},
		{"Virtual Address", s.VirtualAddress, ""},
		{"Virtual Size", s.VirtualSize, hint},
		{"Raw Pointer", s.RawPointer, ""},
		{"Raw Size", s.RawSize, ""},
	})
}

// DumpSections writes a section table, in text format, to the writer.
func DumpSections(w *bufio.Writer, prefix string, f Format, secs []Section) {
	nprefix := prefix + indentLevel
	w.WriteString(prefix)
	w.WriteString("Format: ")
	w.WriteString(string(f))
	w.WriteByte('\n')
	for i := range secs {
		w.WriteString(prefix)
		w.WriteString("Section ")
		w.WriteString(strconv.Itoa(i + 1))
		w.WriteString(":\n")
		secs[i].DumpText(w, nprefix)
	}
}

// HexString formats bytes as space separated hex digits followed by their
// printable rendering.
func HexString(b []byte) string {
	var sb strings.Builder
	w := bufio.NewWriter(&sb)
	writeHexStr(w, b)
	w.Flush()
	return sb.String()
}
