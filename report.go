package main

import (
	"fmt"
	"io"

	"moria.us/binpatch/module"
	"moria.us/binpatch/patch"
)

func statusText(s patch.FileState) string {
	switch s {
	case patch.FileOriginal:
		return "not patched"
	case patch.FilePatched:
		return "already patched"
	case patch.FileMixed:
		return "partially patched"
	}
	return "unknown version"
}

// writeStatus writes the result of a check.
func writeStatus(w io.Writer, file string, res *patch.Result, verbose bool) {
	fmt.Fprintf(w, "  %s: %s\n", file, statusText(res.After))
	if !verbose {
		return
	}
	if res.Digest != "" {
		fmt.Fprintf(w, "    md5:    %s\n", res.Digest)
	}
	if res.Backup != "" {
		fmt.Fprintf(w, "    backup: %s\n", res.Backup)
	}
	for i, d := range res.Descriptors {
		writeDescriptor(w, i, d, d.After.String())
	}
}

func writeDescriptor(w io.Writer, i int, d patch.DescriptorResult, what string) {
	fmt.Fprintf(w, "    [%d] 0x%08x %-8s %s\n", i, d.Descriptor.Offset, what, d.Descriptor.Description)
	fmt.Fprintf(w, "        original: %s\n", module.HexString(d.Descriptor.Original))
	fmt.Fprintf(w, "        patched:  %s\n", module.HexString(d.Descriptor.Patched))
}

// writeResult writes the result of an apply or restore.
func writeResult(w io.Writer, file string, res *patch.Result, err error) {
	if err != nil {
		fmt.Fprintf(w, "  %s: FAILED: %v\n", file, err)
		return
	}
	switch res.Mode {
	case patch.Apply:
		if res.BackupCreated {
			fmt.Fprintf(w, "  Created backup: %s\n", res.Backup)
		} else if res.Backup != "" {
			fmt.Fprintf(w, "  Backup already exists: %s\n", res.Backup)
		}
		if !res.Changed() {
			fmt.Fprintf(w, "  Skipping %s (already patched)\n", file)
			return
		}
		fmt.Fprintf(w, "  Patched: %s\n", file)
		for _, d := range res.Descriptors {
			if d.Action == patch.ActionApplied {
				fmt.Fprintf(w, "    %s\n", d.Descriptor.Description)
			}
		}
	case patch.Restore:
		fmt.Fprintf(w, "  Restored from backup: %s (%s)\n", file, statusText(res.After))
	}
}
