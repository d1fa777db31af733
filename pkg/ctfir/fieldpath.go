package ctfir

// FieldPathScope names which of the four scopes a field path's root
// index space belongs to (spec.md GLOSSARY: "Field path").
type FieldPathScope int

const (
	ScopePacketContext FieldPathScope = iota
	ScopeEventCommonContext
	ScopeEventSpecificContext
	ScopeEventPayload
)

// FieldPath is a sequence of member/element indices rooted at one of the
// four scopes, used to locate a selector field class (for dynamic
// arrays, variants, options) relative to its containing scope.
type FieldPath struct {
	RootScope FieldPathScope
	Indices   []int
}

func NewFieldPath(scope FieldPathScope, indices ...int) *FieldPath {
	return &FieldPath{RootScope: scope, Indices: append([]int(nil), indices...)}
}

// ResolvingContext carries the four scope roots that are valid only
// while walking a stream class or event class's field classes, so a
// FieldPath can be resolved to the previously-mapped output field class
// in that scope (spec.md §3: "The resolving context's four references
// are valid only during metadata copying of the owning scope").
//
// Mapping from an input scope root field class to its output
// counterpart is done by identity via fcOutputs, populated in
// declaration order as skeletons are created, which is why a field path
// lookup here never fails (spec.md §4.3).
type ResolvingContext struct {
	PacketContext        FieldClass
	EventCommonContext   FieldClass
	EventSpecificContext FieldClass
	EventPayload         FieldClass

	// fcOutputs maps an input field class (by identity) to the output
	// field class already created for it.
	fcOutputs map[FieldClass]FieldClass
}

func NewResolvingContext() *ResolvingContext {
	return &ResolvingContext{fcOutputs: make(map[FieldClass]FieldClass)}
}

// Reset clears the four scope roots between stream classes / event
// classes; the output map is cleared too since it is only valid within
// one scope's skeleton-creation walk.
func (rc *ResolvingContext) Reset() {
	rc.PacketContext = nil
	rc.EventCommonContext = nil
	rc.EventSpecificContext = nil
	rc.EventPayload = nil
	for k := range rc.fcOutputs {
		delete(rc.fcOutputs, k)
	}
}

// RecordOutput remembers that inputFC's output counterpart is outputFC,
// making it resolvable by a later field path lookup.
func (rc *ResolvingContext) RecordOutput(inputFC, outputFC FieldClass) {
	rc.fcOutputs[inputFC] = outputFC
}

// Resolve walks path from the scope root recorded in rc, descending
// through the *input* field classes, and returns the corresponding
// *output* field class recorded via RecordOutput. It returns nil only
// if the path is malformed (spec.md: "the lookup never fails because
// fields are mapped in declaration order" — a nil here indicates a bug
// in the copier, not a valid miss).
func (rc *ResolvingContext) Resolve(path *FieldPath) FieldClass {
	var root FieldClass
	switch path.RootScope {
	case ScopePacketContext:
		root = rc.PacketContext
	case ScopeEventCommonContext:
		root = rc.EventCommonContext
	case ScopeEventSpecificContext:
		root = rc.EventSpecificContext
	case ScopeEventPayload:
		root = rc.EventPayload
	}
	if root == nil {
		return nil
	}

	cur := root
	for _, idx := range path.Indices {
		switch fc := cur.(type) {
		case *StructureFieldClass:
			if idx < 0 || idx >= len(fc.Members) {
				return nil
			}
			cur = fc.Members[idx].FieldClass
		case *VariantFieldClass:
			if idx < 0 || idx >= len(fc.Options) {
				return nil
			}
			cur = fc.Options[idx].FieldClass
		default:
			return nil
		}
	}

	out, ok := rc.fcOutputs[cur]
	if !ok {
		return nil
	}
	return out
}
