package ctfir

// Field is a value conforming to a FieldClass. The filter only ever
// needs to read input fields and write output fields of the same
// shape, so Field is a concrete variant struct rather than an
// interface — cheaper to copy and avoids a type assertion at every
// leaf during data copy (spec.md §4.4).
type Field struct {
	Class FieldClass

	Bool   bool
	UInt   uint64 // backs BitArray, UnsignedInteger, UnsignedEnumeration
	Int    int64  // backs SignedInteger, SignedEnumeration
	Real   float64
	Str    string

	// Structure: positional, parallel to Class.(*StructureFieldClass).Members.
	StructureFields []Field

	// StaticArray / DynamicArray: element values. For DynamicArray the
	// length is len(ArrayElements), not read separately.
	ArrayElements []Field

	// Option.
	OptionHasField bool
	OptionField    *Field

	// Variant.
	VariantSelectedIndex int
	VariantField         *Field
}

// NewField allocates a zero-valued Field of the given class, with
// nested containers pre-sized per spec.md §4.4's recursive, by-name
// and by-position structure copy.
func NewField(fc FieldClass) Field {
	f := Field{Class: fc}
	switch c := fc.(type) {
	case *StructureFieldClass:
		f.StructureFields = make([]Field, len(c.Members))
		for i, m := range c.Members {
			f.StructureFields[i] = NewField(m.FieldClass)
		}
	case *StaticArrayFieldClass:
		f.ArrayElements = make([]Field, c.Length)
		for i := range f.ArrayElements {
			f.ArrayElements[i] = NewField(c.Element)
		}
	case *DynamicArrayFieldClass:
		// length is data-dependent; left empty until populated.
	case *OptionFieldClass:
		// OptionField is only allocated once OptionHasField is set.
	case *VariantFieldClass:
		// VariantField is only allocated once a selection is made.
	}
	return f
}

// MemberByName looks up a structure field's child by the name recorded
// in its field class, tolerating the common-context augmentation where
// input and output structures may have members in different relative
// order past the point of augmentation (spec.md §4.4: "structure
// recurses by member name ... to tolerate the common-context
// augmentation").
func (f *Field) MemberByName(name string) *Field {
	sfc, ok := f.Class.(*StructureFieldClass)
	if !ok {
		return nil
	}
	idx := sfc.MemberIndex(name)
	if idx < 0 || idx >= len(f.StructureFields) {
		return nil
	}
	return &f.StructureFields[idx]
}
