package patch

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// A State classifies the bytes at one descriptor's offset.
type State int

const (
	// Unknown bytes match neither the original nor the patched sequence.
	Unknown State = iota
	// Original bytes match the original sequence.
	Original
	// Patched bytes match the patched sequence.
	Patched
)

var stateNames = [...]string{
	Unknown:  "unknown",
	Original: "original",
	Patched:  "patched",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// A FileState is the aggregate state of every descriptor for a file.
type FileState int

const (
	// FileUnknown means at least one descriptor is Unknown.
	FileUnknown FileState = iota
	// FileOriginal means every descriptor is Original.
	FileOriginal
	// FilePatched means every descriptor is Patched.
	FilePatched
	// FileMixed means some descriptors are Original and some Patched, as
	// left by an earlier interrupted patcher.
	FileMixed
)

var fileStateNames = [...]string{
	FileUnknown:  "unknown",
	FileOriginal: "original",
	FilePatched:  "patched",
	FileMixed:    "mixed",
}

func (s FileState) String() string {
	if s < 0 || int(s) >= len(fileStateNames) {
		return fmt.Sprintf("FileState(%d)", int(s))
	}
	return fileStateNames[s]
}

// Classify reads the bytes covered by the descriptor and compares them with
// its original and patched sequences.
func Classify(r io.ReaderAt, d Descriptor) (State, error) {
	buf := make([]byte, d.Len())
	n, err := r.ReadAt(buf, d.Offset)
	if n < len(buf) {
		if err == nil || errors.Is(err, io.EOF) {
			return Unknown, fmt.Errorf("%w: need %d bytes at 0x%x, got %d",
				ErrTruncatedFile, len(buf), d.Offset, n)
		}
		return Unknown, ioFailure(err)
	}
	switch {
	case bytes.Equal(buf, d.Original):
		return Original, nil
	case bytes.Equal(buf, d.Patched):
		return Patched, nil
	}
	return Unknown, nil
}

// ClassifySet classifies every descriptor in a set, in order, and returns the
// aggregate state of the file.
func ClassifySet(r io.ReaderAt, s Set) ([]State, FileState, error) {
	states := make([]State, len(s.Descriptors))
	for i, d := range s.Descriptors {
		st, err := Classify(r, d)
		if err != nil {
			return nil, FileUnknown, wrapErrorDescriptor(err, i, d)
		}
		states[i] = st
	}
	return states, Aggregate(states), nil
}

// Aggregate combines descriptor states into a file state. Unknown takes
// precedence over Mixed.
func Aggregate(states []State) FileState {
	var orig, patched int
	for _, st := range states {
		switch st {
		case Original:
			orig++
		case Patched:
			patched++
		default:
			return FileUnknown
		}
	}
	switch {
	case orig > 0 && patched > 0:
		return FileMixed
	case patched > 0:
		return FilePatched
	case orig > 0:
		return FileOriginal
	}
	return FileUnknown
}
