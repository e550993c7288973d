package patch

import (
	"errors"
	"io/fs"
	"os"
)

// DefaultBackupSuffix is appended to a file's path to name its backup.
const DefaultBackupSuffix = ".backup"

var errNotRegular = errors.New("backup path exists but is not a regular file")

// A Record relates a file to its backup.
type Record struct {
	Path   string
	Backup string
}

// Backups creates and restores verbatim copies of target files. A backup is
// a plain byte copy with no header, so it can be restored by hand.
type Backups struct {
	Suffix string // defaults to DefaultBackupSuffix
}

// Path returns the backup path for a file.
func (b Backups) Path(name string) string {
	if b.Suffix == "" {
		return name + DefaultBackupSuffix
	}
	return name + b.Suffix
}

// Has returns true if a backup exists for the file.
func (b Backups) Has(name string) bool {
	st, err := os.Stat(b.Path(name))
	return err == nil && st.Mode().IsRegular()
}

// Ensure creates a backup of the file unless one already exists. An existing
// backup is never replaced, since the file may already be patched. Created
// reports whether a new backup was made.
func (b Backups) Ensure(name string) (rec Record, created bool, err error) {
	rec = Record{Path: name, Backup: b.Path(name)}
	if st, err := os.Stat(rec.Backup); err == nil {
		if !st.Mode().IsRegular() {
			return rec, false, wrapError(errNotRegular, rec.Backup)
		}
		return rec, false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return rec, false, ioFailure(err)
	}
	if err := copyFileTo(rec.Backup, name); err != nil {
		return rec, false, wrapError(err, "backup")
	}
	return rec, true, nil
}

// Restore replaces the file with a copy of its backup, written through a
// temporary file and one rename. The backup is kept.
func (b Backups) Restore(name string) (Record, error) {
	rec := Record{Path: name, Backup: b.Path(name)}
	if !b.Has(name) {
		return rec, wrapError(ErrNoBackupFound, rec.Backup)
	}
	if err := copyFileTo(name, rec.Backup); err != nil {
		return rec, wrapError(err, "restore")
	}
	return rec, nil
}
