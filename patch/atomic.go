package patch

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// interruptHook, when set, runs after a temporary file is complete and before
// it is renamed over its target. An error stops the replacement.
var interruptHook func(tmp, target string) error

// replaceFile replaces the named file with the content produced by fill. The
// content goes to a temporary file in the same directory, which is renamed
// over the target only once it is complete and synced. The temporary file is
// removed on every failure. A zero mtime leaves the modification time alone.
//
// A symbolic link is followed, and the file it points to is replaced. The
// link itself is left as it is.
func replaceFile(name string, perm fs.FileMode, mtime time.Time, fill func(w io.Writer) error) error {
	if target, err := filepath.EvalSymlinks(name); err == nil {
		name = target
	}
	dir, base := filepath.Split(name)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return ioFailure(err)
	}
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()
	if err := fill(tmp); err != nil {
		return ioFailure(err)
	}
	if err := tmp.Sync(); err != nil {
		return ioFailure(err)
	}
	if err := tmp.Close(); err != nil {
		return ioFailure(err)
	}
	if err := os.Chmod(tmp.Name(), perm); err != nil {
		return ioFailure(err)
	}
	if !mtime.IsZero() {
		if err := os.Chtimes(tmp.Name(), mtime, mtime); err != nil {
			return ioFailure(err)
		}
	}
	if hook := interruptHook; hook != nil {
		if err := hook(tmp.Name(), name); err != nil {
			return err
		}
	}
	if err := os.Rename(tmp.Name(), name); err != nil {
		return ioFailure(err)
	}
	committed = true
	syncDir(dir)
	return nil
}

// syncDir flushes a directory entry change to disk where the platform allows
// it.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	d.Sync()
	d.Close()
}

// copyFileTo replaces dst with a verbatim copy of src, keeping its mode and
// modification time.
func copyFileTo(dst, src string) error {
	fp, err := os.Open(src)
	if err != nil {
		return ioFailure(err)
	}
	defer fp.Close()
	st, err := fp.Stat()
	if err != nil {
		return ioFailure(err)
	}
	return replaceFile(dst, st.Mode().Perm(), st.ModTime(), func(w io.Writer) error {
		_, err := io.Copy(w, fp)
		return err
	})
}
