package bininfo

import (
	"debug/elf"
	"os"
)

// readFileBytes reads an entire file for CRC verification. Debug-link
// candidate files are typically small (a stripped .debug companion),
// so reading in one shot is acceptable here.
func readFileBytes(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// openELFPath opens path directly, bypassing the fd-cache: debug-link
// and build-id companion files are opened at most once per BinaryInfo
// and are not shared across instances the way the primary binary is.
func openELFPath(path string) (*elf.File, error) {
	return elf.Open(path)
}
