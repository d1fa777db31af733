// Package procsources tracks one process's (one vpid's) mapped
// binaries and a cache of already-resolved instruction pointers
// (spec.md §4.2: "ProcessSources"), grounded on
// original_source/plugins/lttng-utils/debug-info.c's
// struct proc_debug_info_sources.
//
// This package is deliberately trace-IR agnostic: DebugInfoIndex parses
// event payload/common-context fields and calls these methods with
// plain values, so ProcessSources itself only ever deals with
// addresses, sizes, and byte slices.
package procsources

import (
	"fmt"

	"github.com/efficios/go-debuginfofilter/pkg/bininfo"
	"github.com/efficios/go-debuginfofilter/pkg/fdcache"
	"github.com/efficios/go-debuginfofilter/pkg/ierrors"
)

// DebugInfoSource is the fully resolved answer for one instruction
// pointer: the function and source location it falls in, plus the
// binary it came from (spec.md §4.2: "debug_info_source").
type DebugInfoSource struct {
	Func string // "" if unresolved

	HasSrcLoc    bool
	LineNo       string
	SrcPath      string
	ShortSrcPath string

	BinPath      string
	ShortBinPath string
	BinLoc       string
}

// ProcessSources holds everything learned about one vpid's address
// space: its mapped binaries keyed by load address, and a cache of
// instruction pointers already resolved against them.
type ProcessSources struct {
	fdc          *fdcache.Cache
	debugInfoDir string
	targetPrefix string
	watcher      *bininfo.Watcher // nil unless the debug-info-dir watch is enabled

	baddrToBin map[uint64]*bininfo.BinaryInfo
	ipToSource map[uint64]*DebugInfoSource
}

// New creates an empty ProcessSources. fdc is shared across every
// BinaryInfo this instance creates.
func New(fdc *fdcache.Cache, debugInfoDir, targetPrefix string) *ProcessSources {
	return &ProcessSources{
		fdc:          fdc,
		debugInfoDir: debugInfoDir,
		targetPrefix: targetPrefix,
		baddrToBin:   make(map[uint64]*bininfo.BinaryInfo),
		ipToSource:   make(map[uint64]*DebugInfoSource),
	}
}

// SetWatcher attaches a debug-info-dir watcher that every BinaryInfo
// created from this point on will retry a failed DWARF lookup against
// once (SPEC_FULL.md §2).
func (p *ProcessSources) SetWatcher(w *bininfo.Watcher) {
	p.watcher = w
}

// HandleBinInfo registers a newly mapped binary, backing both the
// statedump:bin_info event and the dlopen/lib:load events (spec.md
// §4.2). A zero memsz is the VDSO and is silently ignored; an already
// known baddr is left untouched, since the build-id/debug-link events
// that may follow target the first mapping's bin_info.
func (p *ProcessSources) HandleBinInfo(baddr, memsz uint64, path string, isPIC bool) error {
	if memsz == 0 {
		return nil
	}
	if _, exists := p.baddrToBin[baddr]; exists {
		return nil
	}
	bin, err := bininfo.Create(p.fdc, path, baddr, memsz, isPIC, p.debugInfoDir, p.targetPrefix)
	if err != nil {
		return err
	}
	if p.watcher != nil {
		bin.SetWatcher(p.watcher)
	}
	p.baddrToBin[baddr] = bin
	return nil
}

// HandleBuildID attaches a build ID to the binary already mapped at
// baddr, including a zero-length one (a sticky non-match, per
// BinaryInfo.SetBuildID). A build_id event for an unknown baddr is
// ignored: it arrived before the corresponding bin_info event was
// processed, which cannot happen in a well-formed trace but is not
// this package's place to flag as fatal (spec.md §7: malformed
// metadata is silent, not fatal).
func (p *ProcessSources) HandleBuildID(baddr uint64, buildID []byte) error {
	bin, ok := p.baddrToBin[baddr]
	if !ok {
		return nil
	}
	_ = bin.SetBuildID(buildID)
	return nil
}

// HandleDebugLink attaches a GNU debug-link filename/CRC pair to the
// binary mapped at baddr.
func (p *ProcessSources) HandleDebugLink(baddr uint64, filename string, crc uint32) error {
	bin, ok := p.baddrToBin[baddr]
	if !ok {
		return nil
	}
	return bin.SetDebugLink(filename, crc)
}

// HandleLibUnload drops the binary mapped at baddr together with every
// cached resolution inside its address range. Unloading a baddr this
// ProcessSources never saw load for is a no-op.
func (p *ProcessSources) HandleLibUnload(baddr uint64) {
	if bin, ok := p.baddrToBin[baddr]; ok {
		for ip := range p.ipToSource {
			if bin.HasAddress(ip) {
				delete(p.ipToSource, ip)
			}
		}
		bin.Close()
		delete(p.baddrToBin, baddr)
	}
}

// Reset drops every mapped binary and cached resolution: a new
// statedump means the process is being redescribed from scratch and
// anything learned before it is stale (spec.md §4.2 / §8 "Statedump
// reset").
func (p *ProcessSources) Reset() {
	for _, bin := range p.baddrToBin {
		bin.Close()
	}
	p.baddrToBin = make(map[uint64]*bininfo.BinaryInfo)
	p.ipToSource = make(map[uint64]*DebugInfoSource)
}

// Query resolves ip, consulting (and populating) the resolution cache
// before falling back to a linear scan of known binaries (spec.md
// §4.2: "query"). A miss against every known binary returns (nil,
// false, nil): an address the filter has no debug info for is not an
// error. The hit bool reports whether ip was already in the
// resolution cache, letting a caller distinguish a cheap cache hit
// from a DWARF/ELF walk for metrics and tracing purposes.
func (p *ProcessSources) Query(ip uint64) (src *DebugInfoSource, hit bool, err error) {
	if cached, ok := p.ipToSource[ip]; ok {
		return cached, true, nil
	}
	for _, bin := range p.baddrToBin {
		if !bin.HasAddress(ip) {
			continue
		}
		resolved, err := sourceFromBin(bin, ip)
		if err != nil {
			return nil, false, err
		}
		// Bounded only by library unload / statedump reset, matching
		// the original's documented lack of an eviction policy.
		p.ipToSource[ip] = resolved
		return resolved, false, nil
	}
	return nil, false, nil
}

// BinaryCount returns the number of binaries currently mapped, for the
// filter's mapped-binaries gauge.
func (p *ProcessSources) BinaryCount() int {
	return len(p.baddrToBin)
}

// ExportResolved returns a snapshot of the instruction-pointer
// resolution cache, for the opt-in on-disk persistence layer
// (pkg/rescache) to save between runs.
func (p *ProcessSources) ExportResolved() map[uint64]*DebugInfoSource {
	out := make(map[uint64]*DebugInfoSource, len(p.ipToSource))
	for ip, src := range p.ipToSource {
		out[ip] = src
	}
	return out
}

// ImportResolved seeds the instruction-pointer resolution cache from a
// previously persisted snapshot (pkg/rescache), so queries against
// addresses already resolved in a prior run skip the DWARF/ELF walk
// entirely. Existing entries take precedence over imported ones.
func (p *ProcessSources) ImportResolved(entries map[uint64]*DebugInfoSource) {
	for ip, src := range entries {
		if _, exists := p.ipToSource[ip]; !exists {
			p.ipToSource[ip] = src
		}
	}
}

// sourceFromBin renders a DebugInfoSource for one address within bin,
// mirroring debug_info_source_create_from_bin (spec.md §4.1, §4.2).
func sourceFromBin(bin *bininfo.BinaryInfo, ip uint64) (*DebugInfoSource, error) {
	src := &DebugInfoSource{}

	funcName, funcErr := bin.LookupFunctionName(ip)
	if funcErr == nil {
		src.Func = funcName
	} else if isFatal(funcErr) {
		return nil, funcErr
	} else if fe, ok := ierrors.AsFilterError(funcErr); ok && fe.Code == ierrors.CodeELFOpenFailed {
		// The binary itself could not be opened: nothing is known about ip.
		return nil, nil
	}

	if loc, err := bin.LookupSourceLocation(ip); err == nil {
		src.HasSrcLoc = true
		src.LineNo = fmt.Sprintf("%d", loc.Line)
		src.SrcPath = loc.Filename
		src.ShortSrcPath = bininfo.ShortPath(loc.Filename)
	}

	binLoc, err := bin.GetBinLoc(ip)
	if err != nil {
		return nil, err
	}
	src.BinLoc = binLoc
	src.BinPath = bin.Path()
	src.ShortBinPath = bininfo.ShortPath(bin.Path())

	return src, nil
}

// isFatal reports whether err represents a condition that should abort
// resolution entirely (spec.md §7: everything bin_info lookups return
// today is a silent miss, but this keeps the door open for future
// severities without changing Query's contract).
func isFatal(err error) bool {
	fe, ok := ierrors.AsFilterError(err)
	if !ok {
		return false
	}
	return fe.IsFatal()
}
