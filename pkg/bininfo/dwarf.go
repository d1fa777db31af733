package bininfo

import (
	"debug/dwarf"
	"fmt"
	"time"

	"github.com/efficios/go-debuginfofilter/pkg/ierrors"
)

// watchRetryTimeout bounds how long ensureDWARF waits for a watched
// debug-info-dir to produce a usable file before giving up for good.
const watchRetryTimeout = 2 * time.Second

// ensureDWARF attaches DWARF info on first use, trying every location
// in the original's precedence order and falling back to ELF-symbol-only
// resolution if none yield usable debug info (SPEC_FULL.md §5 item 3).
// When a Watcher is attached, one failed attempt is retried after
// waiting (bounded) for a create/write event under debug-info-dir,
// covering a debug-link or build-id companion file that lands mid-trace
// (SPEC_FULL.md §2).
func (b *BinaryInfo) ensureDWARF() {
	if b.dwarfDat != nil || b.isELFOnly {
		return
	}
	if d, err := b.attachDebugInfo(); err == nil {
		b.dwarfDat = d
		return
	}

	if b.watcher != nil && !b.waitedOnce {
		b.waitedOnce = true
		if b.watcher.WaitForCreate(watchRetryTimeout) {
			if d, err := b.attachDebugInfo(); err == nil {
				b.dwarfDat = d
				return
			}
		}
	}

	b.isELFOnly = true
}

// attachDebugInfo tries, in order: DWARF embedded in the binary itself,
// the global build-id path, the debug-link file in the binary's own
// directory, in its .debug/ subdirectory, and finally under the debug
// root mirroring the binary's absolute directory. The first candidate
// whose DWARF can actually be parsed (and, for debug-link, whose CRC
// matches) wins.
func (b *BinaryInfo) attachDebugInfo() (*dwarf.Data, error) {
	if f, err := b.openELF(); err == nil {
		if d, derr := f.DWARF(); derr == nil {
			return d, nil
		}
	}

	if len(b.buildID) > 0 {
		if d, err := b.attachDebugInfoBuildID(); err == nil {
			return d, nil
		}
	}

	if b.dbgLinkFilename != "" {
		if d, err := b.attachDebugInfoDebugLink(); err == nil {
			return d, nil
		}
	}

	return nil, ierrors.New(ierrors.CodeDWARFOpenFailed, "bininfo", "attachDebugInfo", "no dwarf info found")
}

func (b *BinaryInfo) debugDir() string {
	if b.debugInfoDir != "" {
		return b.debugInfoDir
	}
	return defaultDebugDir
}

func (b *BinaryInfo) attachDebugInfoBuildID() (*dwarf.Data, error) {
	hexID := fmt.Sprintf("%x", b.buildID)
	if len(hexID) < 3 {
		return nil, ierrors.New(ierrors.CodeDWARFOpenFailed, "bininfo", "attachDebugInfoBuildID", "build id too short")
	}
	path := joinDebugLinkPath(b.debugDir(), "/", buildIDSubdir, "/", hexID[:2], "/", hexID[2:], buildIDSuffix)
	return openDWARFFromPath(path)
}

func (b *BinaryInfo) attachDebugInfoDebugLink() (*dwarf.Data, error) {
	binDir := dirnameSlash(b.resolvedPath())

	candidates := []string{
		joinDebugLinkPath(binDir, b.dbgLinkFilename),
		joinDebugLinkPath(binDir, debugSubdir, b.dbgLinkFilename),
		joinDebugLinkPath(b.debugDir(), binDir, b.dbgLinkFilename),
	}
	for _, path := range candidates {
		if isValidDebugFile(path, b.dbgLinkCRC) {
			if d, err := openDWARFFromPath(path); err == nil {
				return d, nil
			}
		}
	}
	return nil, ierrors.New(ierrors.CodeDWARFOpenFailed, "bininfo", "attachDebugInfoDebugLink", "no matching debug-link file found")
}

func dirnameSlash(p string) string {
	i := len(p) - 1
	for i >= 0 && p[i] != '/' {
		i--
	}
	if i < 0 {
		return "./"
	}
	return p[:i+1]
}

func isValidDebugFile(path string, expectedCRC uint32) bool {
	data, err := readFileBytes(path)
	if err != nil {
		return false
	}
	return crc32File(data) == expectedCRC
}

func openDWARFFromPath(path string) (*dwarf.Data, error) {
	f, err := openELFPath(path)
	if err != nil {
		return nil, err
	}
	d, err := f.DWARF()
	if err != nil {
		return nil, err
	}
	// Confirm the file actually carries at least one compile unit;
	// matches the original's "open succeeds but has no CU" rejection.
	r := d.Reader()
	e, err := r.Next()
	if err != nil || e == nil {
		return nil, fmt.Errorf("%s: no compile units", path)
	}
	return d, nil
}

// lookupDWARFFunctionName finds the DW_TAG_subprogram whose address
// range encloses addr and renders "name+offset".
func (b *BinaryInfo) lookupDWARFFunctionName(addr uint64) (string, error) {
	r := b.dwarfDat.Reader()
	for {
		e, err := r.Next()
		if err != nil {
			return "", err
		}
		if e == nil {
			break
		}
		if e.Tag != dwarf.TagSubprogram {
			continue
		}
		ranges, err := b.dwarfDat.Ranges(e)
		if err != nil || !rangesContain(ranges, addr) {
			continue
		}
		name, _ := e.Val(dwarf.AttrName).(string)
		low := lowFromRanges(ranges)
		return appendOffsetStr(name, low, addr), nil
	}
	return "", ierrors.New(ierrors.CodeNoDebugInfo, "bininfo", "lookupDWARFFunctionName", "no enclosing subprogram")
}

func rangesContain(ranges [][2]uint64, addr uint64) bool {
	for _, rg := range ranges {
		if addr >= rg[0] && addr < rg[1] {
			return true
		}
	}
	return false
}

func lowFromRanges(ranges [][2]uint64) uint64 {
	if len(ranges) == 0 {
		return 0
	}
	low := ranges[0][0]
	for _, rg := range ranges[1:] {
		if rg[0] < low {
			low = rg[0]
		}
	}
	return low
}

// lookupDWARFSourceLocation first tries to resolve addr to an inlined
// call site, then falls back to the compile unit's line program,
// requiring an exact address match (spec.md §4.1 design note: "never
// interpolates between line table rows").
func (b *BinaryInfo) lookupDWARFSourceLocation(addr uint64) (*SourceLocation, error) {
	if loc, err := b.lookupInlinedSourceLocation(addr); err == nil {
		return loc, nil
	}
	return b.lookupLineTableSourceLocation(addr)
}

// lookupInlinedSourceLocation walks each compile unit's subprogram,
// then depth-first through its children, for the innermost
// DW_TAG_inlined_subroutine whose range contains addr, reporting the
// DW_AT_call_file/DW_AT_call_line of that inlined instance.
func (b *BinaryInfo) lookupInlinedSourceLocation(addr uint64) (*SourceLocation, error) {
	r := b.dwarfDat.Reader()
	for {
		e, err := r.Next()
		if err != nil {
			return nil, err
		}
		if e == nil {
			break
		}
		if e.Tag != dwarf.TagCompileUnit {
			continue
		}
		cu := e
		lr, lrErr := b.dwarfDat.LineReader(cu)

		for {
			sp, err := r.Next()
			if err != nil {
				return nil, err
			}
			if sp == nil || sp.Tag == dwarf.TagCompileUnit {
				break
			}
			if sp.Tag != dwarf.TagSubprogram {
				if !sp.Children {
					continue
				}
				r.SkipChildren()
				continue
			}
			ranges, _ := b.dwarfDat.Ranges(sp)
			if !rangesContain(ranges, addr) {
				if sp.Children {
					r.SkipChildren()
				}
				continue
			}
			if !sp.Children {
				continue
			}
			if inl := findInlinedSubroutine(r, b.dwarfDat, addr); inl != nil {
				fileIdx, _ := inl.Val(dwarf.AttrCallFile).(int64)
				line, _ := inl.Val(dwarf.AttrCallLine).(int64)
				if lrErr == nil && lr != nil {
					files := lr.Files()
					if int(fileIdx) >= 0 && int(fileIdx) < len(files) && files[fileIdx] != nil {
						return &SourceLocation{Filename: files[fileIdx].Name, Line: int(line)}, nil
					}
				}
			}
		}
	}
	return nil, ierrors.New(ierrors.CodeNoDebugInfo, "bininfo", "lookupInlinedSourceLocation", "no inlined call site found")
}

// findInlinedSubroutine consumes entries from r (already positioned
// just after a subprogram whose range contains addr) looking for the
// innermost DW_TAG_inlined_subroutine enclosing addr.
func findInlinedSubroutine(r *dwarf.Reader, d *dwarf.Data, addr uint64) *dwarf.Entry {
	var found *dwarf.Entry
	depth := 1
	for depth > 0 {
		e, err := r.Next()
		if err != nil || e == nil {
			break
		}
		if e.Tag == 0 {
			depth--
			continue
		}
		if e.Children {
			depth++
		}
		if e.Tag != dwarf.TagInlinedSubroutine {
			continue
		}
		ranges, err := d.Ranges(e)
		if err != nil || !rangesContain(ranges, addr) {
			continue
		}
		found = e
	}
	return found
}

// lookupLineTableSourceLocation resolves addr via the per-CU line
// program, accepting only an exact row-address match (the original's
// "addr == line_addr" check) since any other row describes a different
// instruction, not this one.
func (b *BinaryInfo) lookupLineTableSourceLocation(addr uint64) (*SourceLocation, error) {
	r := b.dwarfDat.Reader()
	for {
		e, err := r.Next()
		if err != nil {
			return nil, err
		}
		if e == nil {
			break
		}
		if e.Tag != dwarf.TagCompileUnit {
			continue
		}
		lr, err := b.dwarfDat.LineReader(e)
		if err != nil || lr == nil {
			continue
		}
		var entry dwarf.LineEntry
		if err := lr.SeekPC(addr, &entry); err != nil {
			continue
		}
		if entry.Address != addr {
			continue
		}
		return &SourceLocation{Filename: entry.File.Name, Line: entry.Line}, nil
	}
	return nil, ierrors.New(ierrors.CodeNoDebugInfo, "bininfo", "lookupLineTableSourceLocation", "no exact line table match")
}
