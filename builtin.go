package main

import "moria.us/binpatch/patch"

// testedVersion is the game release the built-in offsets were taken from.
const testedVersion = "2.0.2.14"

// gameDir is the game's directory inside a Wine prefix or Windows drive.
const gameDir = "Program Files (x86)/Steam/steamapps/common/SpaceEngineers2/Game2"

// builtinRegistry returns the patches which let Space Engineers 2 start on
// GPUs without FP64 shader support, such as Apple Silicon under CrossOver.
// The game never uses FP64; only its startup checks demand it.
func builtinRegistry() (*patch.Registry, error) {
	return patch.NewRegistry(testedVersion,
		patch.Set{
			File: "VRage.Render.dll",
			Descriptors: []patch.Descriptor{{
				Description: "ForceAllAdaptersSupported - always return true",
				Offset:      0x58588,
				Original:    []byte{0x02, 0x7b, 0x58, 0x0d, 0x00, 0x04, 0x2a},
				Patched:     []byte{0x17, 0x00, 0x00, 0x00, 0x00, 0x00, 0x2a},
			}},
		},
		patch.Set{
			File: "VRage.Render12.dll",
			Descriptors: []patch.Descriptor{{
				Description: "IsSupported bypass - skip GPU compatibility check",
				Offset:      0x81ff2,
				Original:    []byte{0x02, 0x28, 0xe4, 0x14, 0x00, 0x06},
				Patched:     []byte{0x00, 0x17, 0x00, 0x00, 0x00, 0x00},
			}},
		},
	)
}
