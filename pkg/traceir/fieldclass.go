package traceir

import "github.com/efficios/go-debuginfofilter/pkg/ctfir"

// copyFieldClass recursively copies in into a freshly built output field
// class, recording the input-to-output mapping in m.ResolvingCtx as each
// node is finished so that a later sibling's length/selector field path can
// resolve to it (spec.md §4.3, §4.4), grounded on
// create_field_class_copy_internal + copy_field_class_content_internal,
// collapsed into a single pass (see the package doc comment in
// metadata.go).
func (m *MetadataMaps) copyFieldClass(in ctfir.FieldClass) ctfir.FieldClass {
	var out ctfir.FieldClass

	switch fc := in.(type) {
	case *ctfir.BooleanFieldClass:
		out = ctfir.NewBooleanFieldClass()

	case *ctfir.BitArrayFieldClass:
		out = ctfir.NewBitArrayFieldClass(fc.Length)

	case *ctfir.EnumerationFieldClass:
		o := ctfir.NewEnumerationFieldClass(fc.Signed, fc.FieldValueRange)
		o.Base = fc.Base
		for _, mapping := range fc.Mappings {
			o.AddMapping(mapping.Label, mapping.Ranges...)
		}
		out = o

	case *ctfir.IntegerFieldClass:
		o := ctfir.NewIntegerFieldClass(fc.Signed, fc.FieldValueRange)
		o.Base = fc.Base
		out = o

	case *ctfir.RealFieldClass:
		out = ctfir.NewRealFieldClass(fc.SinglePrecision)

	case *ctfir.StringFieldClass:
		out = ctfir.NewStringFieldClass()

	case *ctfir.StructureFieldClass:
		o := ctfir.NewStructureFieldClass()
		for _, mem := range fc.Members {
			outMemberFC := m.copyFieldClass(mem.FieldClass)
			ctfir.Freeze(outMemberFC)
			newMem := o.AppendMember(mem.Name, outMemberFC)
			newMem.SetUserAttributes(mem.UserAttributes())
		}
		out = o

	case *ctfir.StaticArrayFieldClass:
		outElem := m.copyFieldClass(fc.Element)
		ctfir.Freeze(outElem)
		out = ctfir.NewStaticArrayFieldClass(fc.Length, outElem)

	case *ctfir.DynamicArrayFieldClass:
		outElem := m.copyFieldClass(fc.Element)
		ctfir.Freeze(outElem)
		o := ctfir.NewDynamicArrayFieldClass(outElem)
		if fc.HasLengthField {
			o.HasLengthField = true
			o.LengthPath = fc.LengthPath
			o.LengthFC = m.ResolvingCtx.Resolve(fc.LengthPath)
		}
		out = o

	case *ctfir.OptionFieldClass:
		outContent := m.copyFieldClass(fc.Content)
		ctfir.Freeze(outContent)
		o := ctfir.NewOptionFieldClass(outContent)
		o.HasBoolSelector = fc.HasBoolSelector
		o.SelectorIsReversed = fc.SelectorIsReversed
		o.HasIntegerSelector = fc.HasIntegerSelector
		o.IntegerSelectorSigned = fc.IntegerSelectorSigned
		o.IntegerSelectorRanges = fc.IntegerSelectorRanges
		if fc.SelectorPath != nil {
			o.SelectorPath = fc.SelectorPath
			o.SelectorFC = m.ResolvingCtx.Resolve(fc.SelectorPath)
		}
		out = o

	case *ctfir.VariantFieldClass:
		o := ctfir.NewVariantFieldClass()
		o.HasSelector = fc.HasSelector
		o.SelectorSigned = fc.SelectorSigned
		if fc.SelectorPath != nil {
			o.SelectorPath = fc.SelectorPath
			o.SelectorFC = m.ResolvingCtx.Resolve(fc.SelectorPath)
		}
		for _, opt := range fc.Options {
			outOptFC := m.copyFieldClass(opt.FieldClass)
			ctfir.Freeze(outOptFC)
			newOpt := o.AppendOption(opt.Name, outOptFC, opt.Ranges...)
			newOpt.SetUserAttributes(opt.UserAttributes())
		}
		out = o
	}

	m.ResolvingCtx.RecordOutput(in, out)
	return out
}
