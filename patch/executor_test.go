package patch_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"moria.us/binpatch/patch"
)

const scenarioOffset = 0x40

var (
	scenarioOriginal = []byte{0x02, 0x7b, 0x80, 0x0a, 0x00, 0x04, 0x2a}
	scenarioPatched  = []byte{0x17, 0x00, 0x00, 0x00, 0x00, 0x00, 0x2a}
)

func scenarioSet(name string) patch.Set {
	return patch.Set{
		File: name,
		Descriptors: []patch.Descriptor{{
			Description: "always return true",
			Offset:      scenarioOffset,
			Original:    scenarioOriginal,
			Patched:     scenarioPatched,
		}},
	}
}

// writeTarget writes a file of size bytes with a recognizable filler and the
// given bytes at off.
func writeTarget(t *testing.T, size int, off int64, b []byte) string {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i*7 + 3)
	}
	copy(data[off:], b)
	name := filepath.Join(t.TempDir(), "VRage.Render.dll")
	if err := os.WriteFile(name, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return name
}

func readFile(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func expectRange(t *testing.T, data []byte, off int64, expect []byte) {
	t.Helper()
	got := data[off : off+int64(len(expect))]
	if !bytes.Equal(got, expect) {
		t.Errorf("bytes at 0x%x: got % x, expected % x", off, got, expect)
	}
}

func TestApplyScenario(t *testing.T) {
	name := writeTarget(t, 0x100, scenarioOffset, scenarioOriginal)
	pristine := readFile(t, name)
	set := scenarioSet("VRage.Render.dll")
	e := patch.NewExecutor(nil)

	// fresh file
	res, err := e.Apply(name, set)
	if err != nil {
		t.Fatal("Apply:", err)
	}
	if res.Before != patch.FileOriginal || res.After != patch.FilePatched {
		t.Errorf("Apply: got %v -> %v, expected original -> patched", res.Before, res.After)
	}
	if !res.BackupCreated || !res.Changed() {
		t.Errorf("Apply: backup created %t, changed %t, expected both", res.BackupCreated, res.Changed())
	}
	if a := res.Descriptors[0].Action; a != patch.ActionApplied {
		t.Errorf("Apply: got action %v, expected %v", a, patch.ActionApplied)
	}
	expectRange(t, readFile(t, name), scenarioOffset, scenarioPatched)
	backup := readFile(t, name+patch.DefaultBackupSuffix)
	expectRange(t, backup, scenarioOffset, scenarioOriginal)
	if !bytes.Equal(backup, pristine) {
		t.Error("backup differs from the original file")
	}

	// apply again
	res, err = e.Apply(name, set)
	if err != nil {
		t.Fatal("second Apply:", err)
	}
	if res.Changed() || res.BackupCreated {
		t.Errorf("second Apply: changed %t, backup created %t, expected neither", res.Changed(), res.BackupCreated)
	}
	if a := res.Descriptors[0].Action; a != patch.ActionSkipped {
		t.Errorf("second Apply: got action %v, expected %v", a, patch.ActionSkipped)
	}
	patched := readFile(t, name)
	expectRange(t, patched, scenarioOffset, scenarioPatched)

	// check
	res, err = e.Check(name, set)
	if err != nil {
		t.Fatal("Check:", err)
	}
	if res.After != patch.FilePatched || res.Descriptors[0].After != patch.Patched {
		t.Errorf("Check: got %v/%v, expected patched", res.After, res.Descriptors[0].After)
	}
	if res.Backup == "" || len(res.Digest) != 32 {
		t.Errorf("Check: got backup %q, digest %q", res.Backup, res.Digest)
	}
	if !bytes.Equal(readFile(t, name), patched) {
		t.Error("Check changed the file")
	}

	// restore
	res, err = e.Restore(name, set)
	if err != nil {
		t.Fatal("Restore:", err)
	}
	if res.After != patch.FileOriginal {
		t.Errorf("Restore: got %v, expected original", res.After)
	}
	restored := readFile(t, name)
	expectRange(t, restored, scenarioOffset, scenarioOriginal)
	if !bytes.Equal(restored, pristine) {
		t.Error("restored file differs from the original file")
	}
	if _, err := os.Stat(name + patch.DefaultBackupSuffix); err != nil {
		t.Error("backup removed by restore:", err)
	}
}

func TestApplyUnrecognized(t *testing.T) {
	name := writeTarget(t, 0x100, scenarioOffset, []byte{0x02, 0x7b, 0x58, 0x0d, 0x00, 0x04, 0x2a})
	before := readFile(t, name)
	e := patch.NewExecutor(nil)
	res, err := e.Apply(name, scenarioSet("VRage.Render.dll"))
	if !errors.Is(err, patch.ErrUnrecognizedContent) {
		t.Fatalf("got %v, expected %v", err, patch.ErrUnrecognizedContent)
	}
	if res == nil || res.Before != patch.FileUnknown || res.Changed() {
		t.Errorf("got result %+v", res)
	}
	if !bytes.Equal(readFile(t, name), before) {
		t.Error("file changed by rejected apply")
	}
	if _, err := os.Stat(name + patch.DefaultBackupSuffix); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("backup: got %v, expected not to exist", err)
	}
}

func TestRestoreWithoutBackup(t *testing.T) {
	name := writeTarget(t, 0x100, scenarioOffset, scenarioPatched)
	before := readFile(t, name)
	e := patch.NewExecutor(nil)
	if _, err := e.Restore(name, scenarioSet("VRage.Render.dll")); !errors.Is(err, patch.ErrNoBackupFound) {
		t.Fatalf("got %v, expected %v", err, patch.ErrNoBackupFound)
	}
	if !bytes.Equal(readFile(t, name), before) {
		t.Error("file changed by failed restore")
	}
}

func TestApplyTruncated(t *testing.T) {
	name := writeTarget(t, scenarioOffset+3, scenarioOffset, scenarioOriginal[:3])
	before := readFile(t, name)
	e := patch.NewExecutor(nil)
	_, err := e.Apply(name, scenarioSet("VRage.Render.dll"))
	if !errors.Is(err, patch.ErrTruncatedFile) {
		t.Fatalf("got %v, expected %v", err, patch.ErrTruncatedFile)
	}
	if !bytes.Equal(readFile(t, name), before) {
		t.Error("file changed by rejected apply")
	}
	if _, err := e.Check(name, scenarioSet("VRage.Render.dll")); !errors.Is(err, patch.ErrTruncatedFile) {
		t.Errorf("Check: got %v, expected %v", err, patch.ErrTruncatedFile)
	}
}

func TestApplyMissingFile(t *testing.T) {
	name := filepath.Join(t.TempDir(), "missing.dll")
	e := patch.NewExecutor(nil)
	_, err := e.Apply(name, scenarioSet("missing.dll"))
	if !errors.Is(err, patch.ErrIOFailure) || !errors.Is(err, os.ErrNotExist) {
		t.Errorf("got %v, expected I/O failure wrapping not exist", err)
	}
	var pe *os.PathError
	if !errors.As(err, &pe) {
		t.Errorf("got %T, expected to find *os.PathError", err)
	}
}

func twoDescriptorSet() patch.Set {
	return patch.Set{
		File: "VRage.Render12.dll",
		Descriptors: []patch.Descriptor{
			{Offset: 0x10, Original: []byte{0x02, 0x28, 0xe4}, Patched: []byte{0x00, 0x17, 0x00}},
			{Offset: 0x80, Original: []byte{0x14, 0x00, 0x06}, Patched: []byte{0x00, 0x00, 0x00}},
		},
	}
}

// A file left half patched by an earlier run is reported as mixed and
// completed by apply.
func TestApplyResumesMixed(t *testing.T) {
	set := twoDescriptorSet()
	name := writeTarget(t, 0x100, 0x10, set.Descriptors[0].Patched)
	data := readFile(t, name)
	copy(data[0x80:], set.Descriptors[1].Original)
	if err := os.WriteFile(name, data, 0o644); err != nil {
		t.Fatal(err)
	}

	e := patch.NewExecutor(nil)
	res, err := e.Check(name, set)
	if err != nil {
		t.Fatal("Check:", err)
	}
	if res.After != patch.FileMixed {
		t.Errorf("Check: got %v, expected mixed", res.After)
	}

	res, err = e.Apply(name, set)
	if err != nil {
		t.Fatal("Apply:", err)
	}
	if a := res.Descriptors[0].Action; a != patch.ActionSkipped {
		t.Errorf("descriptor 0: got %v, expected %v", a, patch.ActionSkipped)
	}
	if a := res.Descriptors[1].Action; a != patch.ActionApplied {
		t.Errorf("descriptor 1: got %v, expected %v", a, patch.ActionApplied)
	}
	got := readFile(t, name)
	expectRange(t, got, 0x10, set.Descriptors[0].Patched)
	expectRange(t, got, 0x80, set.Descriptors[1].Patched)
}

// One unrecognized descriptor stops the whole file, even when the others
// could be patched.
func TestApplyPartlyUnrecognized(t *testing.T) {
	set := twoDescriptorSet()
	name := writeTarget(t, 0x100, 0x10, set.Descriptors[0].Original)
	before := readFile(t, name)
	e := patch.NewExecutor(nil)
	_, err := e.Apply(name, set)
	if !errors.Is(err, patch.ErrUnrecognizedContent) {
		t.Fatalf("got %v, expected %v", err, patch.ErrUnrecognizedContent)
	}
	if !bytes.Equal(readFile(t, name), before) {
		t.Error("file changed by rejected apply")
	}
}

// A backup is never replaced, so it keeps the pristine content even if the
// target is patched by hand afterwards.
func TestBackupKeptAcrossApplies(t *testing.T) {
	name := writeTarget(t, 0x100, scenarioOffset, scenarioOriginal)
	pristine := readFile(t, name)
	set := scenarioSet("VRage.Render.dll")
	e := patch.NewExecutor(nil)
	if _, err := e.Apply(name, set); err != nil {
		t.Fatal(err)
	}
	// put the original bytes back, as a game update might
	data := readFile(t, name)
	copy(data[scenarioOffset:], scenarioOriginal)
	data[0] ^= 0xff
	if err := os.WriteFile(name, data, 0o644); err != nil {
		t.Fatal(err)
	}
	res, err := e.Apply(name, set)
	if err != nil {
		t.Fatal(err)
	}
	if res.BackupCreated {
		t.Error("second apply created a new backup")
	}
	if !bytes.Equal(readFile(t, name+patch.DefaultBackupSuffix), pristine) {
		t.Error("backup was replaced")
	}
}

func TestRunModes(t *testing.T) {
	name := writeTarget(t, 0x100, scenarioOffset, scenarioOriginal)
	set := scenarioSet("VRage.Render.dll")
	e := &patch.Executor{Backups: patch.Backups{Suffix: ".orig"}}
	for _, c := range []struct {
		mode   string
		expect patch.FileState
	}{
		{"check", patch.FileOriginal},
		{"apply", patch.FilePatched},
		{"CHECK", patch.FilePatched},
		{"restore", patch.FileOriginal},
	} {
		mode, err := patch.ParseMode(c.mode)
		if err != nil {
			t.Fatal(err)
		}
		res, err := e.Run(mode, name, set)
		if err != nil {
			t.Fatalf("%s: %v", c.mode, err)
		}
		if res.After != c.expect {
			t.Errorf("%s: got %v, expected %v", c.mode, res.After, c.expect)
		}
	}
	if _, err := os.Stat(name + ".orig"); err != nil {
		t.Error("backup with custom suffix:", err)
	}
	if _, err := patch.ParseMode("revert"); err == nil {
		t.Error("ParseMode(revert): expected error")
	}
}
