package patch_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"moria.us/binpatch/patch"
)

func TestBackupEnsure(t *testing.T) {
	name := writeTarget(t, 0x100, scenarioOffset, scenarioOriginal)
	mtime := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	if err := os.Chtimes(name, mtime, mtime); err != nil {
		t.Fatal(err)
	}
	pristine := readFile(t, name)
	var b patch.Backups
	if b.Has(name) {
		t.Fatal("Has: backup before Ensure")
	}
	rec, created, err := b.Ensure(name)
	if err != nil {
		t.Fatal("Ensure:", err)
	}
	if !created || rec.Path != name || rec.Backup != name+".backup" {
		t.Errorf("Ensure: got %+v, created %t", rec, created)
	}
	if !b.Has(name) {
		t.Error("Has: no backup after Ensure")
	}
	st, err := os.Stat(rec.Backup)
	if err != nil {
		t.Fatal(err)
	}
	if !st.ModTime().Equal(mtime) {
		t.Errorf("backup mtime: got %v, expected %v", st.ModTime(), mtime)
	}
	if runtime.GOOS != "windows" && st.Mode().Perm() != 0o644 {
		t.Errorf("backup mode: got %v, expected %v", st.Mode().Perm(), os.FileMode(0o644))
	}

	// change the target, the backup must stay pristine
	if err := os.WriteFile(name, []byte("changed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, created, err := b.Ensure(name); err != nil || created {
		t.Errorf("second Ensure: created %t, err %v", created, err)
	}
	if !bytes.Equal(readFile(t, rec.Backup), pristine) {
		t.Error("backup replaced by second Ensure")
	}

	if _, err := b.Restore(name); err != nil {
		t.Fatal("Restore:", err)
	}
	if !bytes.Equal(readFile(t, name), pristine) {
		t.Error("Restore did not bring back the backup content")
	}
}

func TestBackupRestoreMissing(t *testing.T) {
	name := writeTarget(t, 0x10, 0, []byte{1})
	b := patch.Backups{Suffix: ".bak"}
	rec, err := b.Restore(name)
	if !errors.Is(err, patch.ErrNoBackupFound) {
		t.Errorf("got %v, expected %v", err, patch.ErrNoBackupFound)
	}
	if rec.Backup != name+".bak" {
		t.Errorf("backup path: got %q", rec.Backup)
	}
}

// Restore works even if the target has gone missing.
func TestBackupRestoreDeletedTarget(t *testing.T) {
	name := writeTarget(t, 0x100, scenarioOffset, scenarioOriginal)
	pristine := readFile(t, name)
	var b patch.Backups
	if _, _, err := b.Ensure(name); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(name); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Restore(name); err != nil {
		t.Fatal("Restore:", err)
	}
	if !bytes.Equal(readFile(t, name), pristine) {
		t.Error("restored content differs")
	}
}

// A directory in the backup's place is not a backup, and Apply must not
// patch the file without one.
func TestBackupNotRegular(t *testing.T) {
	name := writeTarget(t, 0x100, scenarioOffset, scenarioOriginal)
	pristine := readFile(t, name)
	if err := os.Mkdir(name+".backup", 0o755); err != nil {
		t.Fatal(err)
	}
	var b patch.Backups
	if _, created, err := b.Ensure(name); err == nil || created {
		t.Errorf("Ensure: got created %t, error %v, expected error", created, err)
	}
	if _, err := patch.NewExecutor(nil).Apply(name, scenarioSet("VRage.Render.dll")); err == nil {
		t.Error("Apply: expected error")
	}
	if !bytes.Equal(readFile(t, name), pristine) {
		t.Error("file changed without a backup")
	}
}

func TestApplyThroughSymlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symbolic links need privileges on windows")
	}
	target := writeTarget(t, 0x100, scenarioOffset, scenarioOriginal)
	pristine := readFile(t, target)
	link := filepath.Join(t.TempDir(), "link.dll")
	if err := os.Symlink(target, link); err != nil {
		t.Fatal(err)
	}
	e := patch.NewExecutor(nil)
	set := scenarioSet("VRage.Render.dll")
	if _, err := e.Apply(link, set); err != nil {
		t.Fatal("Apply:", err)
	}
	st, err := os.Lstat(link)
	if err != nil {
		t.Fatal(err)
	}
	if st.Mode()&os.ModeSymlink == 0 {
		t.Errorf("link replaced by a file with mode %v", st.Mode())
	}
	expectRange(t, readFile(t, target), scenarioOffset, scenarioPatched)
	if !bytes.Equal(readFile(t, link+".backup"), pristine) {
		t.Error("backup differs from the original content")
	}

	if _, err := e.Restore(link, set); err != nil {
		t.Fatal("Restore:", err)
	}
	if st, err := os.Lstat(link); err != nil || st.Mode()&os.ModeSymlink == 0 {
		t.Errorf("after Restore: got %v, %v, expected a link", st, err)
	}
	if !bytes.Equal(readFile(t, target), pristine) {
		t.Error("Restore did not bring back the original content")
	}
}
