// Package ctfir is a minimal, in-memory model of the CTF trace-IR object
// graph the debug-info filter's host (a trace-processing graph) hands it:
// trace classes, stream classes, event classes, field classes, clock
// classes, traces, streams, packets, and the field values that populate
// them. The host's own object system (reference counting, the plugin
// registration surface, the graph scheduler) is out of scope per spec.md
// §1 — this package only models the data shape the filter reads and
// writes, not the runtime that owns it.
package ctfir

// FieldClassKind discriminates the FieldClass algebra (spec.md §4.3:
// "Field classes form a recursive algebraic type"). Go has no sum types,
// so each concrete field class implements FieldClass and is switched on
// by Kind, the idiomatic substitute used throughout this package.
type FieldClassKind int

const (
	FieldClassBool FieldClassKind = iota
	FieldClassBitArray
	FieldClassUnsignedInteger
	FieldClassSignedInteger
	FieldClassUnsignedEnumeration
	FieldClassSignedEnumeration
	FieldClassReal
	FieldClassString
	FieldClassStructure
	FieldClassStaticArray
	FieldClassDynamicArray
	FieldClassOption
	FieldClassVariant
)

// FieldClass is implemented by every concrete field class. UserAttrs
// holds an opaque, shared (copy-on-write by convention) attribute value;
// the filter never mutates it, only copies the reference (spec.md §4.3:
// "user attributes").
type FieldClass interface {
	Kind() FieldClassKind
	UserAttributes() any
	SetUserAttributes(any)
	frozen() bool
	freeze()
}

// base is embedded by every concrete field class for the shared frozen
// bit and user-attributes slot.
type base struct {
	attrs  any
	isFroz bool
}

func (b *base) UserAttributes() any       { return b.attrs }
func (b *base) SetUserAttributes(v any)   { b.attrs = v }
func (b *base) frozen() bool              { return b.isFroz }
func (b *base) freeze()                   { b.isFroz = true }

// Freeze marks fc as immutable, mirroring the original's behavior of
// freezing a field class right after it is appended to its parent
// (spec.md §4.3: "After every field class is added to its parent, it is
// frozen").
func Freeze(fc FieldClass) { fc.freeze() }

// IsFrozen reports whether fc has been frozen.
func IsFrozen(fc FieldClass) bool { return fc.frozen() }

// DisplayBase is the preferred base for printing an integer field.
type DisplayBase int

const (
	DisplayBaseDecimal DisplayBase = iota
	DisplayBaseBinary
	DisplayBaseOctal
	DisplayBaseHexadecimal
)

// BooleanFieldClass has no properties beyond the embedded base.
type BooleanFieldClass struct{ base }

func NewBooleanFieldClass() *BooleanFieldClass { return &BooleanFieldClass{} }
func (*BooleanFieldClass) Kind() FieldClassKind { return FieldClassBool }

// BitArrayFieldClass is a fixed-width array of bits; the data copy layer
// treats its payload as an integer backing store (spec.md §4.4).
type BitArrayFieldClass struct {
	base
	Length uint64
}

func NewBitArrayFieldClass(length uint64) *BitArrayFieldClass {
	return &BitArrayFieldClass{Length: length}
}
func (*BitArrayFieldClass) Kind() FieldClassKind { return FieldClassBitArray }

// IntegerFieldClass covers both FieldClassUnsignedInteger and
// FieldClassSignedInteger; Signed discriminates.
type IntegerFieldClass struct {
	base
	Signed          bool
	FieldValueRange uint64 // in bits
	Base            DisplayBase
}

func NewIntegerFieldClass(signed bool, rangeBits uint64) *IntegerFieldClass {
	return &IntegerFieldClass{Signed: signed, FieldValueRange: rangeBits, Base: DisplayBaseDecimal}
}

func (i *IntegerFieldClass) Kind() FieldClassKind {
	if i.Signed {
		return FieldClassSignedInteger
	}
	return FieldClassUnsignedInteger
}

// IsSigned32 reports whether fc is exactly a signed 32-bit integer field
// class, the type spec.md §4.3/§6 require for a common-context "vpid"
// member, grounded on utils.c's is_event_common_ctx_dbg_info_compatible
// checking bt_field_class_integer_get_field_value_range(vpid_fc) == 32.
func IsSigned32(fc FieldClass) bool {
	i, ok := fc.(*IntegerFieldClass)
	return ok && i.Signed && i.FieldValueRange == 32
}

// IntegerRange is an inclusive [Lower, Upper] range over an enumeration
// label's mapped integer values. Signed ranges store their bounds as
// int64 reinterpreted from the same bits as Lower/Upper.
type IntegerRange struct {
	Lower uint64
	Upper uint64
}

// EnumerationFieldClassMapping is one label and its set of integer
// ranges (spec.md §4.3: "Enumeration: all labels and their integer
// ranges").
type EnumerationFieldClassMapping struct {
	Label  string
	Ranges []IntegerRange
}

// EnumerationFieldClass covers both signed and unsigned enumerations.
type EnumerationFieldClass struct {
	IntegerFieldClass
	Mappings []EnumerationFieldClassMapping
}

func NewEnumerationFieldClass(signed bool, rangeBits uint64) *EnumerationFieldClass {
	return &EnumerationFieldClass{IntegerFieldClass: IntegerFieldClass{Signed: signed, FieldValueRange: rangeBits}}
}

func (e *EnumerationFieldClass) Kind() FieldClassKind {
	if e.Signed {
		return FieldClassSignedEnumeration
	}
	return FieldClassUnsignedEnumeration
}

func (e *EnumerationFieldClass) AddMapping(label string, ranges ...IntegerRange) {
	e.Mappings = append(e.Mappings, EnumerationFieldClassMapping{Label: label, Ranges: ranges})
}

// RealFieldClass is single- or double-precision IEEE 754.
type RealFieldClass struct {
	base
	SinglePrecision bool
}

func NewRealFieldClass(singlePrecision bool) *RealFieldClass {
	return &RealFieldClass{SinglePrecision: singlePrecision}
}
func (*RealFieldClass) Kind() FieldClassKind { return FieldClassReal }

// StringFieldClass has no properties beyond the embedded base.
type StringFieldClass struct{ base }

func NewStringFieldClass() *StringFieldClass { return &StringFieldClass{} }
func (*StringFieldClass) Kind() FieldClassKind { return FieldClassString }

// StructureFieldClassMember is one named, ordered member of a structure
// or one named, ordered option of a variant.
type StructureFieldClassMember struct {
	Name       string
	FieldClass FieldClass
	attrs      any
}

func (m *StructureFieldClassMember) UserAttributes() any     { return m.attrs }
func (m *StructureFieldClassMember) SetUserAttributes(v any) { m.attrs = v }

// StructureFieldClass iterates members in declaration order (spec.md
// §4.3: "Structure: iterate members in order").
type StructureFieldClass struct {
	base
	Members []*StructureFieldClassMember
}

func NewStructureFieldClass() *StructureFieldClass { return &StructureFieldClass{} }
func (*StructureFieldClass) Kind() FieldClassKind  { return FieldClassStructure }

func (s *StructureFieldClass) AppendMember(name string, fc FieldClass) *StructureFieldClassMember {
	m := &StructureFieldClassMember{Name: name, FieldClass: fc}
	s.Members = append(s.Members, m)
	return m
}

func (s *StructureFieldClass) MemberByName(name string) *StructureFieldClassMember {
	for _, m := range s.Members {
		if m.Name == name {
			return m
		}
	}
	return nil
}

func (s *StructureFieldClass) MemberIndex(name string) int {
	for i, m := range s.Members {
		if m.Name == name {
			return i
		}
	}
	return -1
}

// StaticArrayFieldClass has a fixed element count known at metadata time.
type StaticArrayFieldClass struct {
	base
	Length  uint64
	Element FieldClass
}

func NewStaticArrayFieldClass(length uint64, element FieldClass) *StaticArrayFieldClass {
	return &StaticArrayFieldClass{Length: length, Element: element}
}
func (*StaticArrayFieldClass) Kind() FieldClassKind { return FieldClassStaticArray }

// DynamicArrayFieldClass's element count is carried per-field, either by
// an out-of-band length field class (HasLengthField true, LengthPath
// resolved via the resolving context) or in-band.
type DynamicArrayFieldClass struct {
	base
	HasLengthField bool
	LengthPath     *FieldPath
	LengthFC       FieldClass // resolved output length field class, set during skeleton creation
	Element        FieldClass
}

func NewDynamicArrayFieldClass(element FieldClass) *DynamicArrayFieldClass {
	return &DynamicArrayFieldClass{Element: element}
}
func (*DynamicArrayFieldClass) Kind() FieldClassKind { return FieldClassDynamicArray }

// OptionFieldClass is either unconditional-selector-free, or gated by a
// boolean or integer-range selector resolved through a field path.
type OptionFieldClass struct {
	base
	Content FieldClass

	HasBoolSelector bool
	SelectorIsReversed bool

	HasIntegerSelector bool
	IntegerSelectorSigned bool
	IntegerSelectorRanges []IntegerRange

	SelectorPath *FieldPath
	SelectorFC   FieldClass
}

func NewOptionFieldClass(content FieldClass) *OptionFieldClass {
	return &OptionFieldClass{Content: content}
}
func (*OptionFieldClass) Kind() FieldClassKind { return FieldClassOption }

// VariantFieldClassOption is one named option of a variant, with the
// integer ranges of the selector values that pick it.
type VariantFieldClassOption struct {
	StructureFieldClassMember
	Ranges []IntegerRange
}

// VariantFieldClass may or may not carry its own integer selector; when
// it does not, the selector is supplied externally (spec.md §4.3:
// "Variant: ... the variant may be unsigned or signed").
type VariantFieldClass struct {
	base
	Options []*VariantFieldClassOption

	HasSelector    bool
	SelectorSigned bool
	SelectorPath   *FieldPath
	SelectorFC     FieldClass
}

func NewVariantFieldClass() *VariantFieldClass { return &VariantFieldClass{} }
func (*VariantFieldClass) Kind() FieldClassKind { return FieldClassVariant }

func (v *VariantFieldClass) AppendOption(name string, fc FieldClass, ranges ...IntegerRange) *VariantFieldClassOption {
	opt := &VariantFieldClassOption{
		StructureFieldClassMember: StructureFieldClassMember{Name: name, FieldClass: fc},
		Ranges:                    ranges,
	}
	v.Options = append(v.Options, opt)
	return opt
}

func (v *VariantFieldClass) OptionIndex(name string) int {
	for i, o := range v.Options {
		if o.Name == name {
			return i
		}
	}
	return -1
}
