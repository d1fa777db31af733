package traceir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efficios/go-debuginfofilter/pkg/ctfir"
)

type fakeQuerier struct {
	src *DebugInfoSource
	err error
}

func (f *fakeQuerier) Query(vpid int64, ip uint64) (*DebugInfoSource, error) {
	return f.src, f.err
}

func commonContextFC() *ctfir.StructureFieldClass {
	cc := ctfir.NewStructureFieldClass()
	cc.AppendMember("ip", ctfir.NewIntegerFieldClass(false, 64))
	cc.AppendMember("vpid", ctfir.NewIntegerFieldClass(true, 32))
	return cc
}

func buildTraceWithOneEventClass(t *testing.T) (*ctfir.Trace, *ctfir.EventClass) {
	t.Helper()
	tc := &ctfir.TraceClass{}
	sc := &ctfir.StreamClass{EventCommonContextFieldClass: commonContextFC()}
	tc.AppendStreamClass(sc)
	ec := &ctfir.EventClass{Name: "ev"}
	sc.AppendEventClass(ec)

	trace := &ctfir.Trace{Class: tc}
	return trace, ec
}

func TestEventFillsDebugInfoWhenQuerierResolves(t *testing.T) {
	trace, ec := buildTraceWithOneEventClass(t)
	maps, err := New(trace, "debug_info")
	require.NoError(t, err)

	ccField := ctfir.NewField(ec.StreamClass.EventCommonContextFieldClass)
	ccField.MemberByName("ip").UInt = 0x4010
	ccField.MemberByName("vpid").Int = 42

	in := &ctfir.EventMessage{EventClass: ec, CommonContextField: &ccField}

	querier := &fakeQuerier{src: &DebugInfoSource{
		Func: "main", BinPath: "/bin/a", ShortBinPath: "a", BinLoc: "+0x10",
		HasSrcLoc: true, SrcPath: "/src/a.c", ShortSrcPath: "a.c", LineNo: "7",
	}}

	out, err := maps.Data.Event(in, querier, false)
	require.NoError(t, err)

	debugField := out.CommonContextField.MemberByName("debug_info")
	require.NotNil(t, debugField)
	assert.Equal(t, "a+0x10", debugField.MemberByName("bin").Str)
	assert.Equal(t, "main", debugField.MemberByName("func").Str)
	assert.Equal(t, "a.c:7", debugField.MemberByName("src").Str)
}

func TestEventFillsDebugInfoFullPath(t *testing.T) {
	trace, ec := buildTraceWithOneEventClass(t)
	maps, err := New(trace, "debug_info")
	require.NoError(t, err)

	ccField := ctfir.NewField(ec.StreamClass.EventCommonContextFieldClass)
	ccField.MemberByName("ip").UInt = 0x4010
	ccField.MemberByName("vpid").Int = 42
	in := &ctfir.EventMessage{EventClass: ec, CommonContextField: &ccField}

	querier := &fakeQuerier{src: &DebugInfoSource{
		BinPath: "/bin/a", ShortBinPath: "a", BinLoc: "+0x10",
		HasSrcLoc: true, SrcPath: "/src/a.c", ShortSrcPath: "a.c", LineNo: "7",
	}}

	out, err := maps.Data.Event(in, querier, true)
	require.NoError(t, err)

	debugField := out.CommonContextField.MemberByName("debug_info")
	assert.Equal(t, "/bin/a+0x10", debugField.MemberByName("bin").Str)
	assert.Equal(t, "/src/a.c:7", debugField.MemberByName("src").Str)
}

func TestEventLeavesDebugInfoEmptyWhenQuerierMisses(t *testing.T) {
	trace, ec := buildTraceWithOneEventClass(t)
	maps, err := New(trace, "debug_info")
	require.NoError(t, err)

	ccField := ctfir.NewField(ec.StreamClass.EventCommonContextFieldClass)
	ccField.MemberByName("ip").UInt = 0x4010
	ccField.MemberByName("vpid").Int = 42
	in := &ctfir.EventMessage{EventClass: ec, CommonContextField: &ccField}

	out, err := maps.Data.Event(in, &fakeQuerier{src: nil}, false)
	require.NoError(t, err)

	debugField := out.CommonContextField.MemberByName("debug_info")
	assert.Equal(t, "", debugField.MemberByName("bin").Str)
	assert.Equal(t, "", debugField.MemberByName("func").Str)
	assert.Equal(t, "", debugField.MemberByName("src").Str)
}

func TestEventLeavesDebugInfoEmptyWhenSrcHasNoSrcLoc(t *testing.T) {
	trace, ec := buildTraceWithOneEventClass(t)
	maps, err := New(trace, "debug_info")
	require.NoError(t, err)

	ccField := ctfir.NewField(ec.StreamClass.EventCommonContextFieldClass)
	ccField.MemberByName("ip").UInt = 0x4010
	ccField.MemberByName("vpid").Int = 42
	in := &ctfir.EventMessage{EventClass: ec, CommonContextField: &ccField}

	querier := &fakeQuerier{src: &DebugInfoSource{Func: "main", BinPath: "/bin/a", BinLoc: "@0x4010"}}
	out, err := maps.Data.Event(in, querier, false)
	require.NoError(t, err)

	debugField := out.CommonContextField.MemberByName("debug_info")
	assert.Equal(t, "", debugField.MemberByName("src").Str)
}

func TestEventSkipsDebugInfoWhenNoCommonContext(t *testing.T) {
	tc := &ctfir.TraceClass{}
	sc := &ctfir.StreamClass{}
	tc.AppendStreamClass(sc)
	ec := &ctfir.EventClass{Name: "ev"}
	sc.AppendEventClass(ec)
	trace := &ctfir.Trace{Class: tc}

	maps, err := New(trace, "debug_info")
	require.NoError(t, err)

	in := &ctfir.EventMessage{EventClass: ec}
	out, err := maps.Data.Event(in, &fakeQuerier{}, false)
	require.NoError(t, err)
	assert.Nil(t, out.CommonContextField)
}
