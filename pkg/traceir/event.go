package traceir

import (
	"fmt"

	"github.com/efficios/go-debuginfofilter/pkg/ctfir"
	"github.com/efficios/go-debuginfofilter/pkg/ierrors"
)

// DebugInfoQuerier resolves one (vpid, instruction-pointer) pair against
// whatever binaries have been mapped into that process so far, returning
// nil when nothing augments the result (spec.md §4.2: "query"). The
// owning Iterator adapts its *debuginfoindex.Index to this interface, so
// traceir's only dependency on resolved debug info is this narrow
// contract rather than the debuginfoindex/procsources/bininfo stack
// itself (spec.md §4: "TraceIrMaps ... consults the DebugInfoIndex").
type DebugInfoQuerier interface {
	Query(vpid int64, ip uint64) (*DebugInfoSource, error)
}

// DebugInfoSource mirrors procsources.DebugInfoSource's shape; the
// Iterator's adapter converts between the two so this package never
// imports procsources directly.
type DebugInfoSource struct {
	Func string

	HasSrcLoc    bool
	LineNo       string
	SrcPath      string
	ShortSrcPath string

	BinPath      string
	ShortBinPath string
	BinLoc       string
}

// Event copies in into a freshly allocated output EventMessage sharing
// md/d's already-copied classes, then fills the augmented debug_info
// fields when the event's common context is compatible and a querier is
// available (spec.md §4.4: "Event"), grounded on copy_event_content +
// fill_debug_info_event_if_needed.
func (d *DataMaps) Event(in *ctfir.EventMessage, querier DebugInfoQuerier, fullPath bool) (*ctfir.EventMessage, error) {
	outEC, err := d.Metadata.EventClass(mustStreamClassOf(d, in), in.EventClass)
	if err != nil {
		return nil, err
	}

	outEvent := &ctfir.EventMessage{EventClass: outEC}

	if in.Stream != nil {
		outStream, err := d.Stream(in.Stream)
		if err != nil {
			return nil, err
		}
		outEvent.Stream = outStream
	}
	if in.Packet != nil {
		outPacket, err := d.Packet(in.Packet)
		if err != nil {
			return nil, err
		}
		outEvent.Packet = outPacket
	}
	clockSnapshot, err := d.Metadata.MapClockSnapshot(in.DefaultClockSnapshot)
	if err != nil {
		return nil, err
	}
	outEvent.DefaultClockSnapshot = clockSnapshot

	if in.CommonContextField != nil {
		if outEC.StreamClass.EventCommonContextFieldClass == nil {
			return nil, ierrMalformed("Event", "event has a common context field but its stream class has no common context field class")
		}
		f := ctfir.NewField(outEC.StreamClass.EventCommonContextFieldClass)
		copyFieldContent(in.CommonContextField, &f)
		outEvent.CommonContextField = &f
	}
	if in.SpecificContextField != nil {
		if outEC.SpecificContextFieldClass == nil {
			return nil, ierrMalformed("Event", "event has a specific context field but its event class has no specific context field class")
		}
		f := ctfir.NewField(outEC.SpecificContextFieldClass)
		copyFieldContent(in.SpecificContextField, &f)
		outEvent.SpecificContextField = &f
	}
	if in.PayloadField != nil {
		if outEC.PayloadFieldClass == nil {
			return nil, ierrMalformed("Event", "event has a payload field but its event class has no payload field class")
		}
		f := ctfir.NewField(outEC.PayloadFieldClass)
		copyFieldContent(in.PayloadField, &f)
		outEvent.PayloadField = &f
	}

	fillDebugInfoEventIfNeeded(d.Metadata.DebugInfoFieldName, in, outEvent, querier, fullPath)

	return outEvent, nil
}

func mustStreamClassOf(d *DataMaps, in *ctfir.EventMessage) *ctfir.StreamClass {
	outSC, _ := d.Metadata.StreamClass(in.EventClass.StreamClass)
	return outSC
}

// fillDebugInfoEventIfNeeded sets the output event's debug_info fields
// when the input common context carries ip/vpid and the output common
// context carries the augmented structure, leaving every other event
// untouched (spec.md §4.4), grounded on fill_debug_info_event_if_needed.
func fillDebugInfoEventIfNeeded(debugInfoFieldName string, in, out *ctfir.EventMessage, querier DebugInfoQuerier, fullPath bool) {
	if in.CommonContextField == nil || out.CommonContextField == nil {
		return
	}
	inCC, ok := in.CommonContextField.Class.(*ctfir.StructureFieldClass)
	if !ok || !isEventCommonCtxDebugInfoCompatible(inCC, debugInfoFieldName) {
		return
	}

	debugField := out.CommonContextField.MemberByName(debugInfoFieldName)
	if debugField == nil {
		return
	}

	vpidField := out.CommonContextField.MemberByName(vpidFieldName)
	ipField := out.CommonContextField.MemberByName(ipFieldName)
	if vpidField == nil || ipField == nil {
		fillDebugInfoFieldEmpty(debugField)
		return
	}

	vpid := vpidField.Int
	ip := ipField.UInt

	var src *DebugInfoSource
	if querier != nil {
		var err error
		src, err = querier.Query(vpid, ip)
		if err != nil {
			fe, _ := ierrors.AsFilterError(err)
			if fe != nil && fe.IsFatal() {
				fillDebugInfoFieldEmpty(debugField)
				return
			}
			src = nil
		}
	}
	fillDebugInfoField(debugField, src, fullPath)
}

func fillDebugInfoFieldEmpty(debugField *ctfir.Field) {
	setStringMember(debugField, "bin", "")
	setStringMember(debugField, "func", "")
	setStringMember(debugField, "src", "")
}

// fillDebugInfoField renders src's bin/func/src strings into debugField,
// or empty strings for every component src leaves unresolved (spec.md
// §4.4's exact string formats), grounded on fill_debug_info_bin_field /
// fill_debug_info_func_field / fill_debug_info_src_field.
func fillDebugInfoField(debugField *ctfir.Field, src *DebugInfoSource, fullPath bool) {
	if src == nil {
		fillDebugInfoFieldEmpty(debugField)
		return
	}

	binPath := src.ShortBinPath
	if fullPath {
		binPath = src.BinPath
	}
	setStringMember(debugField, "bin", binPath+src.BinLoc)

	setStringMember(debugField, "func", src.Func)

	if src.HasSrcLoc {
		srcPath := src.ShortSrcPath
		if fullPath {
			srcPath = src.SrcPath
		}
		setStringMember(debugField, "src", fmt.Sprintf("%s:%s", srcPath, src.LineNo))
	} else {
		setStringMember(debugField, "src", "")
	}
}

func setStringMember(structField *ctfir.Field, name, value string) {
	m := structField.MemberByName(name)
	if m == nil {
		return
	}
	m.Str = value
}
