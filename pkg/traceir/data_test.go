package traceir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efficios/go-debuginfofilter/pkg/ctfir"
)

func TestCopyFieldContentStructureByName(t *testing.T) {
	md := NewMetadataMaps("debug_info")
	inFC := ctfir.NewStructureFieldClass()
	inFC.AppendMember("a", ctfir.NewIntegerFieldClass(false, 8))
	inFC.AppendMember("b", ctfir.NewStringFieldClass())

	outFC := md.copyFieldClass(inFC).(*ctfir.StructureFieldClass)

	inField := ctfir.NewField(inFC)
	inField.MemberByName("a").UInt = 7
	inField.MemberByName("b").Str = "hi"

	outField := ctfir.NewField(outFC)
	copyFieldContent(&inField, &outField)

	assert.Equal(t, uint64(7), outField.MemberByName("a").UInt)
	assert.Equal(t, "hi", outField.MemberByName("b").Str)
}

func TestCopyFieldContentStructureToleratesMemberOrderDivergence(t *testing.T) {
	md := NewMetadataMaps("debug_info")
	inFC := ctfir.NewStructureFieldClass()
	inFC.AppendMember("a", ctfir.NewIntegerFieldClass(false, 8))

	outFC := ctfir.NewStructureFieldClass()
	outFC.AppendMember("extra", ctfir.NewStringFieldClass())
	outFC.AppendMember("a", ctfir.NewIntegerFieldClass(false, 8))

	inField := ctfir.NewField(inFC)
	inField.MemberByName("a").UInt = 9

	outField := ctfir.NewField(outFC)
	copyFieldContent(&inField, &outField)

	assert.Equal(t, uint64(9), outField.MemberByName("a").UInt)
	assert.Equal(t, "", outField.MemberByName("extra").Str)
	_ = md
}

func TestCopyFieldContentStaticArrayByPosition(t *testing.T) {
	elemFC := ctfir.NewIntegerFieldClass(false, 8)
	inFC := ctfir.NewStaticArrayFieldClass(3, elemFC)
	outFC := ctfir.NewStaticArrayFieldClass(3, elemFC)

	inField := ctfir.NewField(inFC)
	for i := range inField.ArrayElements {
		inField.ArrayElements[i].UInt = uint64(i + 1)
	}
	outField := ctfir.NewField(outFC)
	copyFieldContent(&inField, &outField)

	require.Len(t, outField.ArrayElements, 3)
	assert.Equal(t, uint64(1), outField.ArrayElements[0].UInt)
	assert.Equal(t, uint64(2), outField.ArrayElements[1].UInt)
	assert.Equal(t, uint64(3), outField.ArrayElements[2].UInt)
}

func TestCopyFieldContentDynamicArrayAllocatesFreshBacking(t *testing.T) {
	elemFC := ctfir.NewIntegerFieldClass(false, 8)
	inFC := ctfir.NewDynamicArrayFieldClass(elemFC)
	outFC := ctfir.NewDynamicArrayFieldClass(elemFC)

	inField := ctfir.NewField(inFC)
	inField.ArrayElements = []ctfir.Field{ctfir.NewField(elemFC), ctfir.NewField(elemFC)}
	inField.ArrayElements[0].UInt = 11
	inField.ArrayElements[1].UInt = 22

	outField := ctfir.NewField(outFC)
	copyFieldContent(&inField, &outField)

	require.Len(t, outField.ArrayElements, 2)
	assert.Equal(t, uint64(11), outField.ArrayElements[0].UInt)
	assert.Equal(t, uint64(22), outField.ArrayElements[1].UInt)

	outField.ArrayElements[0].UInt = 99
	assert.Equal(t, uint64(11), inField.ArrayElements[0].UInt)
}

func TestCopyFieldContentOptionWithAndWithoutField(t *testing.T) {
	contentFC := ctfir.NewStringFieldClass()
	fc := ctfir.NewOptionFieldClass(contentFC)

	inField := ctfir.NewField(fc)
	inField.OptionHasField = true
	f := ctfir.NewField(contentFC)
	f.Str = "present"
	inField.OptionField = &f

	outField := ctfir.NewField(fc)
	copyFieldContent(&inField, &outField)
	require.True(t, outField.OptionHasField)
	require.NotNil(t, outField.OptionField)
	assert.Equal(t, "present", outField.OptionField.Str)

	inField2 := ctfir.NewField(fc)
	inField2.OptionHasField = false
	outField2 := ctfir.NewField(fc)
	copyFieldContent(&inField2, &outField2)
	assert.False(t, outField2.OptionHasField)
	assert.Nil(t, outField2.OptionField)
}

func TestCopyFieldContentVariantSelectsMatchingOption(t *testing.T) {
	fc := ctfir.NewVariantFieldClass()
	fc.AppendOption("a", ctfir.NewIntegerFieldClass(false, 8), ctfir.IntegerRange{Lower: 0, Upper: 0})
	fc.AppendOption("b", ctfir.NewStringFieldClass(), ctfir.IntegerRange{Lower: 1, Upper: 1})

	inField := ctfir.NewField(fc)
	inField.VariantSelectedIndex = 1
	f := ctfir.NewField(fc.Options[1].FieldClass)
	f.Str = "chosen"
	inField.VariantField = &f

	outField := ctfir.NewField(fc)
	copyFieldContent(&inField, &outField)

	assert.Equal(t, 1, outField.VariantSelectedIndex)
	require.NotNil(t, outField.VariantField)
	assert.Equal(t, "chosen", outField.VariantField.Str)
}

func buildSimpleTraceClass() (*ctfir.TraceClass, *ctfir.StreamClass) {
	tc := &ctfir.TraceClass{}
	sc := &ctfir.StreamClass{PacketContextFieldClass: ctfir.NewStructureFieldClass()}
	sc.PacketContextFieldClass.(*ctfir.StructureFieldClass).AppendMember("size", ctfir.NewIntegerFieldClass(false, 32))
	tc.AppendStreamClass(sc)
	return tc, sc
}

func TestStreamAndPacketAreMemoized(t *testing.T) {
	tc, sc := buildSimpleTraceClass()
	trace := &ctfir.Trace{Class: tc}

	maps, err := New(trace, "debug_info")
	require.NoError(t, err)

	inStream := &ctfir.Stream{ID: 1, Class: sc}
	out1, err := maps.Data.Stream(inStream)
	require.NoError(t, err)
	out2, err := maps.Data.Stream(inStream)
	require.NoError(t, err)
	assert.Same(t, out1, out2)
	assert.Len(t, maps.Data.OutputTrace.Streams, 1)

	inPacket := &ctfir.Packet{Stream: inStream}
	p1, err := maps.Data.Packet(inPacket)
	require.NoError(t, err)
	p2, err := maps.Data.Packet(inPacket)
	require.NoError(t, err)
	assert.Same(t, p1, p2)
}

func TestPacketCopiesContextField(t *testing.T) {
	tc, sc := buildSimpleTraceClass()
	trace := &ctfir.Trace{Class: tc}

	maps, err := New(trace, "debug_info")
	require.NoError(t, err)

	inStream := &ctfir.Stream{ID: 1, Class: sc}
	ctxField := ctfir.NewField(sc.PacketContextFieldClass)
	ctxField.MemberByName("size").UInt = 128
	inPacket := &ctfir.Packet{Stream: inStream, ContextField: &ctxField}

	outPacket, err := maps.Data.Packet(inPacket)
	require.NoError(t, err)
	require.NotNil(t, outPacket.ContextField)
	assert.Equal(t, uint64(128), outPacket.ContextField.MemberByName("size").UInt)
}

func TestCopyTraceContentOmitsUUID(t *testing.T) {
	md := NewMetadataMaps("debug_info")
	d := NewDataMaps(md)

	in := &ctfir.Trace{HasName: true, Name: "mytrace"}
	d.CopyTraceContent(in)

	assert.Equal(t, "mytrace", d.OutputTrace.Name)
}
