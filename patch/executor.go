package patch

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// A Mode selects the operation the executor runs on a file.
type Mode int

const (
	// Check classifies the file without changing anything.
	Check Mode = iota
	// Apply writes the patched bytes, backing the file up first.
	Apply
	// Restore replaces the file with its backup.
	Restore
)

var modeNames = [...]string{
	Check:   "check",
	Apply:   "apply",
	Restore: "restore",
}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("Mode(%d)", int(m))
	}
	return modeNames[m]
}

// ParseMode returns the mode with the given name.
func ParseMode(s string) (Mode, error) {
	for m, name := range modeNames {
		if strings.EqualFold(s, name) {
			return Mode(m), nil
		}
	}
	return 0, fmt.Errorf("unknown mode %q (expected check, apply or restore)", s)
}

// An Action is what an operation did to one descriptor.
type Action int

const (
	// ActionNone means the descriptor's bytes were not written.
	ActionNone Action = iota
	// ActionSkipped means the bytes were already patched.
	ActionSkipped
	// ActionApplied means the patched bytes were written.
	ActionApplied
	// ActionRestored means the file was replaced by its backup.
	ActionRestored
)

var actionNames = [...]string{
	ActionNone:     "none",
	ActionSkipped:  "skipped",
	ActionApplied:  "applied",
	ActionRestored: "restored",
}

func (a Action) String() string {
	if a < 0 || int(a) >= len(actionNames) {
		return fmt.Sprintf("Action(%d)", int(a))
	}
	return actionNames[a]
}

// A DescriptorResult is the outcome of an operation for one descriptor.
type DescriptorResult struct {
	Descriptor Descriptor
	Before     State
	After      State
	Action     Action
}

// A Result is the outcome of an operation on one file. It is returned
// alongside errors too, as far as the operation got.
type Result struct {
	Mode          Mode
	Path          string
	Before        FileState
	After         FileState
	Descriptors   []DescriptorResult
	Backup        string // backup path, empty if there is no backup
	BackupCreated bool
	Digest        string // MD5 of the file, set by Check
}

// Changed returns true if the operation wrote the file.
func (r *Result) Changed() bool {
	for _, d := range r.Descriptors {
		if d.Action == ActionApplied || d.Action == ActionRestored {
			return true
		}
	}
	return false
}

func newResult(mode Mode, name string, s Set, states []State, fs FileState) *Result {
	r := &Result{
		Mode:        mode,
		Path:        name,
		Before:      fs,
		After:       fs,
		Descriptors: make([]DescriptorResult, len(s.Descriptors)),
	}
	for i, d := range s.Descriptors {
		r.Descriptors[i] = DescriptorResult{Descriptor: d, Before: Unknown, After: Unknown}
		if states != nil {
			r.Descriptors[i].Before = states[i]
			r.Descriptors[i].After = states[i]
		}
	}
	return r
}

// An Executor runs check, apply and restore operations on target files. Each
// operation reads the file from disk again; nothing is cached between calls.
//
// Operations on the same file are serialized with an advisory lock, and a
// second concurrent operation fails with ErrLocked. Operations on different
// files are independent.
type Executor struct {
	Logger  *slog.Logger
	Backups Backups
}

// NewExecutor returns an executor which logs to the given logger.
func NewExecutor(logger *slog.Logger) *Executor {
	return &Executor{Logger: logger}
}

func (e *Executor) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return e.Logger
}

// Run runs the operation selected by mode.
func (e *Executor) Run(mode Mode, name string, s Set) (*Result, error) {
	switch mode {
	case Check:
		return e.Check(name, s)
	case Apply:
		return e.Apply(name, s)
	case Restore:
		return e.Restore(name, s)
	}
	return nil, fmt.Errorf("unknown mode %v", mode)
}

// Check classifies every descriptor of the set against the file.
func (e *Executor) Check(name string, s Set) (*Result, error) {
	log := e.logger().With(slog.String("file", name))
	fp, err := os.Open(name)
	if err != nil {
		return nil, ioFailure(err)
	}
	defer fp.Close()

	states, fs, err := ClassifySet(fp, s)
	if err != nil {
		return newResult(Check, name, s, nil, FileUnknown), wrapError(err, name)
	}
	res := newResult(Check, name, s, states, fs)
	for i, st := range states {
		log.Debug("classified", slog.Int("descriptor", i), slog.String("state", st.String()))
	}
	if e.Backups.Has(name) {
		res.Backup = e.Backups.Path(name)
	}
	h := md5.New()
	if _, err := io.Copy(h, io.NewSectionReader(fp, 0, 1<<63-1)); err != nil {
		return res, wrapError(ioFailure(err), name)
	}
	res.Digest = hex.EncodeToString(h.Sum(nil))
	return res, nil
}

// Apply writes the patched bytes of every descriptor which still holds its
// original bytes. Descriptors already patched are left alone, so applying
// twice is harmless.
//
// If any descriptor's bytes are unrecognized the file is not touched and no
// backup is made. Otherwise the file is backed up, unless a backup already
// exists, and then replaced in a single rename, so an interrupted apply
// leaves the file as it was.
func (e *Executor) Apply(name string, s Set) (*Result, error) {
	log := e.logger().With(slog.String("file", name))
	lock, err := lockFile(name)
	if err != nil {
		return nil, err
	}
	defer lock.unlock()

	data, err := os.ReadFile(name)
	if err != nil {
		return nil, ioFailure(err)
	}
	info, err := os.Stat(name)
	if err != nil {
		return nil, ioFailure(err)
	}
	for i, d := range s.Descriptors {
		if err := d.Validate(int64(len(data))); err != nil {
			return newResult(Apply, name, s, nil, FileUnknown), wrapError(wrapErrorDescriptor(err, i, d), name)
		}
	}
	states, fs, err := ClassifySet(bytes.NewReader(data), s)
	if err != nil {
		return newResult(Apply, name, s, nil, FileUnknown), wrapError(err, name)
	}
	res := newResult(Apply, name, s, states, fs)
	if e.Backups.Has(name) {
		res.Backup = e.Backups.Path(name)
	}
	for i, st := range states {
		if st == Unknown {
			d := s.Descriptors[i]
			log.Warn("unrecognized bytes, not patching",
				slog.Int("descriptor", i), slog.String("offset", fmt.Sprintf("0x%x", d.Offset)))
			return res, wrapError(wrapErrorDescriptor(ErrUnrecognizedContent, i, d), name)
		}
	}
	if fs == FilePatched {
		for i := range res.Descriptors {
			res.Descriptors[i].Action = ActionSkipped
		}
		log.Info("already patched")
		return res, nil
	}

	rec, created, err := e.Backups.Ensure(name)
	if err != nil {
		return res, wrapError(err, name)
	}
	res.Backup = rec.Backup
	res.BackupCreated = created
	if created {
		if fs == FileMixed {
			log.Warn("backup taken from a partially patched file", slog.String("backup", rec.Backup))
		} else {
			log.Info("created backup", slog.String("backup", rec.Backup))
		}
	}

	for i, d := range s.Descriptors {
		if states[i] == Original {
			copy(data[d.Offset:d.End()], d.Patched)
		}
	}
	err = replaceFile(name, info.Mode().Perm(), time.Time{}, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
	if err != nil {
		return res, wrapError(err, name)
	}
	for i := range res.Descriptors {
		r := &res.Descriptors[i]
		if r.Before == Original {
			r.Action = ActionApplied
		} else {
			r.Action = ActionSkipped
		}
		r.After = Patched
		log.Info("patched", slog.Int("descriptor", i),
			slog.String("action", r.Action.String()),
			slog.String("description", r.Descriptor.Description))
	}
	res.After = FilePatched
	return res, nil
}

// Restore replaces the file with its backup in a single rename. The current
// content of the file is not examined first. The state after the restore is
// classified for the report.
func (e *Executor) Restore(name string, s Set) (*Result, error) {
	log := e.logger().With(slog.String("file", name))
	lock, err := lockFile(name)
	if err != nil {
		return nil, err
	}
	defer lock.unlock()

	res := newResult(Restore, name, s, nil, FileUnknown)
	rec, err := e.Backups.Restore(name)
	if err != nil {
		log.Warn("no backup to restore from", slog.String("backup", rec.Backup))
		return res, wrapError(err, name)
	}
	res.Backup = rec.Backup
	for i := range res.Descriptors {
		res.Descriptors[i].Action = ActionRestored
	}
	log.Info("restored from backup", slog.String("backup", rec.Backup))

	fp, err := os.Open(name)
	if err != nil {
		return res, wrapError(ioFailure(err), name)
	}
	defer fp.Close()
	states, fs, err := ClassifySet(fp, s)
	if err != nil {
		log.Warn("restored file does not match the patch set", slog.Any("error", err))
		return res, nil
	}
	for i, st := range states {
		res.Descriptors[i].After = st
	}
	res.After = fs
	return res, nil
}
