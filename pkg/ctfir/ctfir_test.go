package ctfir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldPathResolveThroughStructure(t *testing.T) {
	inIP := NewIntegerFieldClass(false, 64)
	inVpid := NewIntegerFieldClass(true, 32)
	inCtx := NewStructureFieldClass()
	inCtx.AppendMember("vpid", inVpid)
	inCtx.AppendMember("ip", inIP)

	outIP := NewIntegerFieldClass(false, 64)
	outVpid := NewIntegerFieldClass(true, 32)

	rc := NewResolvingContext()
	rc.EventCommonContext = inCtx
	rc.RecordOutput(inVpid, outVpid)
	rc.RecordOutput(inIP, outIP)

	path := NewFieldPath(ScopeEventCommonContext, 1)
	got := rc.Resolve(path)
	assert.Same(t, FieldClass(outIP), got)
}

func TestStructureFieldClassMemberLookup(t *testing.T) {
	sfc := NewStructureFieldClass()
	sfc.AppendMember("a", NewBooleanFieldClass())
	sfc.AppendMember("b", NewStringFieldClass())

	require.Equal(t, 1, sfc.MemberIndex("b"))
	assert.Equal(t, -1, sfc.MemberIndex("missing"))
	assert.Equal(t, FieldClassString, sfc.MemberByName("b").FieldClass.Kind())
}

func TestFieldConstructionNestsStructureMembers(t *testing.T) {
	sfc := NewStructureFieldClass()
	sfc.AppendMember("bin", NewStringFieldClass())
	sfc.AppendMember("func", NewStringFieldClass())
	sfc.AppendMember("src", NewStringFieldClass())

	f := NewField(sfc)
	require.Len(t, f.StructureFields, 3)

	bin := f.MemberByName("bin")
	require.NotNil(t, bin)
	bin.Str = "/bin/foo@0x400500"
	assert.Equal(t, "/bin/foo@0x400500", f.StructureFields[0].Str)
}

func TestEnumerationFieldClassMappings(t *testing.T) {
	efc := NewEnumerationFieldClass(false, 8)
	efc.AddMapping("RED", IntegerRange{Lower: 0, Upper: 0})
	efc.AddMapping("GREEN", IntegerRange{Lower: 1, Upper: 2})
	require.Len(t, efc.Mappings, 2)
	assert.Equal(t, FieldClassUnsignedEnumeration, efc.Kind())
}

func TestFreezeMarksFieldClassImmutable(t *testing.T) {
	fc := NewBooleanFieldClass()
	assert.False(t, IsFrozen(fc))
	Freeze(fc)
	assert.True(t, IsFrozen(fc))
}
