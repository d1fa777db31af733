package traceir

import (
	"github.com/efficios/go-debuginfofilter/pkg/ctfir"
)

// DataMaps is the per-input-trace data mapping state: the output trace
// under construction and the stream/packet memoization tables (spec.md
// §4.3: "TraceIrMaps ... data copy"), grounded on
// trace-ir-mapping.c's struct trace_ir_data_maps.
type DataMaps struct {
	Metadata   *MetadataMaps
	OutputTrace *ctfir.Trace

	streamMap map[*ctfir.Stream]*ctfir.Stream
	packetMap map[*ctfir.Packet]*ctfir.Packet
}

// NewDataMaps creates an empty DataMaps producing into a fresh output
// trace backed by md's already-copied output trace class.
func NewDataMaps(md *MetadataMaps) *DataMaps {
	return &DataMaps{
		Metadata:    md,
		OutputTrace: &ctfir.Trace{Class: md.OutputTraceClass},
		streamMap:   make(map[*ctfir.Stream]*ctfir.Stream),
		packetMap:   make(map[*ctfir.Packet]*ctfir.Packet),
	}
}

// CopyTraceContent copies in's name and user attributes into d's output
// trace; the environment lives on the trace class and is copied by
// CopyTraceClassContent. The UUID is deliberately not copied: the output trace
// may diverge from the input and must not claim its identity (spec.md
// §4.3), grounded on copy_trace_content.
func (d *DataMaps) CopyTraceContent(in *ctfir.Trace) {
	d.OutputTrace.UserAttrs = in.UserAttrs
	if in.HasName {
		d.OutputTrace.HasName = true
		d.OutputTrace.Name = in.Name
	}
}

// Stream returns the output stream mapped to in, copying its content the
// first time in is seen (spec.md §4.3: "Stream"), grounded on
// copy_stream_content.
func (d *DataMaps) Stream(in *ctfir.Stream) (*ctfir.Stream, error) {
	if out, ok := d.streamMap[in]; ok {
		return out, nil
	}
	outSC, err := d.Metadata.StreamClass(in.Class)
	if err != nil {
		return nil, err
	}
	out := &ctfir.Stream{
		ID:      in.ID,
		Class:   outSC,
		Trace:   d.OutputTrace,
		UserAttrs: in.UserAttrs,
	}
	if in.HasName {
		out.HasName = true
		out.Name = in.Name
	}
	d.streamMap[in] = out
	d.OutputTrace.Streams = append(d.OutputTrace.Streams, out)
	return out, nil
}

// LookupStream returns the output stream already mapped to in, without
// creating one (spec.md §4.5: "STREAM_END: lookup mapped stream").
func (d *DataMaps) LookupStream(in *ctfir.Stream) (*ctfir.Stream, bool) {
	out, ok := d.streamMap[in]
	return out, ok
}

// RemoveStream drops in's mapping once its STREAM_END has been emitted
// (spec.md §8: "Map cleanup ... after STREAM_END for stream S is
// emitted, stream_map no longer contains S").
func (d *DataMaps) RemoveStream(in *ctfir.Stream) {
	delete(d.streamMap, in)
}

// LookupPacket returns the output packet already mapped to in, without
// creating one (spec.md §4.5: "PACKET_END: ... lookup").
func (d *DataMaps) LookupPacket(in *ctfir.Packet) (*ctfir.Packet, bool) {
	out, ok := d.packetMap[in]
	return out, ok
}

// RemovePacket drops in's mapping once its PACKET_END has been emitted
// (spec.md §8: "after PACKET_END for P, packet_map no longer contains
// P").
func (d *DataMaps) RemovePacket(in *ctfir.Packet) {
	delete(d.packetMap, in)
}

// Packet returns the output packet mapped to in, copying its context field
// the first time in is seen (spec.md §4.3: "Packet"), grounded on
// copy_packet_content.
func (d *DataMaps) Packet(in *ctfir.Packet) (*ctfir.Packet, error) {
	if out, ok := d.packetMap[in]; ok {
		return out, nil
	}
	outStream, err := d.Stream(in.Stream)
	if err != nil {
		return nil, err
	}
	out := &ctfir.Packet{Stream: outStream}
	if in.ContextField != nil {
		ctxFC := outStream.Class.PacketContextFieldClass
		if ctxFC == nil {
			return nil, ierrMalformed("Packet", "packet has a context field but its stream class has no packet context field class")
		}
		field := ctfir.NewField(ctxFC)
		copyFieldContent(in.ContextField, &field)
		out.ContextField = &field
	}
	d.packetMap[in] = out
	return out, nil
}

// copyFieldContent recursively copies in's value into out, assuming they
// share the same shape (spec.md §4.4: "the copy recurses ... by position
// for arrays, by name for structures"), grounded on copy_field_content.
func copyFieldContent(in, out *ctfir.Field) {
	if in == nil || out == nil {
		return
	}
	out.Bool = in.Bool
	out.UInt = in.UInt
	out.Int = in.Int
	out.Real = in.Real
	out.Str = in.Str

	switch c := out.Class.(type) {
	case *ctfir.StructureFieldClass:
		inSC, ok := in.Class.(*ctfir.StructureFieldClass)
		if !ok {
			return
		}
		for i, outMem := range c.Members {
			inIdx := inSC.MemberIndex(outMem.Name)
			if inIdx < 0 || inIdx >= len(in.StructureFields) {
				continue
			}
			copyFieldContent(&in.StructureFields[inIdx], &out.StructureFields[i])
		}

	case *ctfir.StaticArrayFieldClass:
		n := len(out.ArrayElements)
		if len(in.ArrayElements) < n {
			n = len(in.ArrayElements)
		}
		for i := 0; i < n; i++ {
			copyFieldContent(&in.ArrayElements[i], &out.ArrayElements[i])
		}

	case *ctfir.DynamicArrayFieldClass:
		out.ArrayElements = make([]ctfir.Field, len(in.ArrayElements))
		for i := range in.ArrayElements {
			out.ArrayElements[i] = ctfir.NewField(c.Element)
			copyFieldContent(&in.ArrayElements[i], &out.ArrayElements[i])
		}

	case *ctfir.OptionFieldClass:
		out.OptionHasField = in.OptionHasField
		if in.OptionHasField && in.OptionField != nil {
			f := ctfir.NewField(c.Content)
			copyFieldContent(in.OptionField, &f)
			out.OptionField = &f
		} else {
			out.OptionField = nil
		}

	case *ctfir.VariantFieldClass:
		out.VariantSelectedIndex = in.VariantSelectedIndex
		if in.VariantField != nil && in.VariantSelectedIndex >= 0 &&
			in.VariantSelectedIndex < len(c.Options) {
			f := ctfir.NewField(c.Options[in.VariantSelectedIndex].FieldClass)
			copyFieldContent(in.VariantField, &f)
			out.VariantField = &f
		}
	}
}
