package traceir

import "github.com/efficios/go-debuginfofilter/pkg/ctfir"

// Maps ties one input trace class's metadata mapping to one input trace's
// data mapping, the unit the Iterator keeps one of per upstream trace
// (spec.md §4.3: "TraceIrMaps"), grounded on trace-ir-mapping.c's struct
// trace_ir_maps.
type Maps struct {
	Metadata *MetadataMaps
	Data     *DataMaps
}

// New builds a Maps for one input trace, fully copying its trace class's
// metadata up front (spec.md §4.3: stream classes and event classes are
// mapped eagerly rather than lazily on first message, a deliberate
// simplification over the original's on-demand bt_trace_class listener
// approach — see the package doc comment in metadata.go).
func New(in *ctfir.Trace, debugInfoFieldName string) (*Maps, error) {
	md := NewMetadataMaps(debugInfoFieldName)
	if err := md.CopyTraceClassContent(in.Class); err != nil {
		return nil, err
	}

	d := NewDataMaps(md)
	d.CopyTraceContent(in)

	return &Maps{Metadata: md, Data: d}, nil
}
