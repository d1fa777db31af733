package iterator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efficios/go-debuginfofilter/pkg/ctfir"
	"github.com/efficios/go-debuginfofilter/pkg/fdcache"
)

// fakeUpstream replays a fixed sequence of batches, one per Next call.
type fakeUpstream struct {
	batches     [][]ctfir.Message
	statuses    []ctfir.Status
	call        int
	seekCalls   int
	canSeek     bool
}

func (f *fakeUpstream) Next(capacity int) ([]ctfir.Message, ctfir.Status) {
	if f.call >= len(f.batches) {
		return nil, ctfir.StatusEnd
	}
	msgs, status := f.batches[f.call], f.statuses[f.call]
	f.call++
	return msgs, status
}

func (f *fakeUpstream) SeekToBeginning() ctfir.Status {
	f.seekCalls++
	f.call = 0
	return ctfir.StatusOK
}

func (f *fakeUpstream) CanSeekToBeginning() bool { return f.canSeek }

func buildUserTraceClass() (*ctfir.TraceClass, *ctfir.StreamClass, *ctfir.EventClass, *ctfir.EventClass) {
	tc := &ctfir.TraceClass{}
	sc := &ctfir.StreamClass{SupportsPackets: true}

	cc := ctfir.NewStructureFieldClass()
	cc.AppendMember("ip", ctfir.NewIntegerFieldClass(false, 64))
	cc.AppendMember("vpid", ctfir.NewIntegerFieldClass(true, 32))
	sc.EventCommonContextFieldClass = cc

	tc.AppendStreamClass(sc)

	binInfoEC := &ctfir.EventClass{Name: "lttng_ust_statedump:bin_info"}
	payload := ctfir.NewStructureFieldClass()
	payload.AppendMember("baddr", ctfir.NewIntegerFieldClass(false, 64))
	payload.AppendMember("memsz", ctfir.NewIntegerFieldClass(false, 64))
	payload.AppendMember("path", ctfir.NewStringFieldClass())
	payload.AppendMember("is_pic", ctfir.NewIntegerFieldClass(false, 64))
	binInfoEC.PayloadFieldClass = payload
	sc.AppendEventClass(binInfoEC)

	userEC := &ctfir.EventClass{Name: "my_app:tick"}
	sc.AppendEventClass(userEC)

	return tc, sc, binInfoEC, userEC
}

func TestIteratorMapsStreamPacketAndEventLifecycle(t *testing.T) {
	tc, sc, binInfoEC, userEC := buildUserTraceClass()
	trace := &ctfir.Trace{Class: tc}
	stream := &ctfir.Stream{ID: 1, Class: sc, Trace: trace}
	packet := &ctfir.Packet{Stream: stream}

	binInfoCC := ctfir.NewField(sc.EventCommonContextFieldClass)
	binInfoCC.MemberByName("vpid").Int = 42
	binInfoPayload := ctfir.NewField(binInfoEC.PayloadFieldClass)
	binInfoPayload.MemberByName("baddr").UInt = 0x400000
	binInfoPayload.MemberByName("memsz").UInt = 0x1000
	binInfoPayload.MemberByName("path").Str = "/nonexistent/bin"
	binInfoPayload.MemberByName("is_pic").UInt = 0
	binInfoEvent := &ctfir.EventMessage{
		EventClass:         binInfoEC,
		Stream:             stream,
		Packet:             packet,
		CommonContextField: &binInfoCC,
		PayloadField:       &binInfoPayload,
	}

	userCC := ctfir.NewField(sc.EventCommonContextFieldClass)
	userCC.MemberByName("vpid").Int = 42
	userCC.MemberByName("ip").UInt = 0x400500
	userEvent := &ctfir.EventMessage{
		EventClass:         userEC,
		Stream:             stream,
		Packet:             packet,
		CommonContextField: &userCC,
	}

	up := &fakeUpstream{
		batches: [][]ctfir.Message{{
			&ctfir.StreamBeginningMessage{Stream: stream},
			&ctfir.PacketBeginningMessage{Packet: packet},
			binInfoEvent,
			userEvent,
			&ctfir.PacketEndMessage{Packet: packet},
			&ctfir.StreamEndMessage{Stream: stream},
		}},
		statuses: []ctfir.Status{ctfir.StatusOK},
		canSeek:  true,
	}

	it := New(up, Config{DebugInfoFieldName: "debug_info"}, fdcache.New(), nil)

	out, status := it.Next(16)
	require.Equal(t, ctfir.StatusOK, status)
	require.Len(t, out, 6)

	_, ok := out[0].(*ctfir.StreamBeginningMessage)
	assert.True(t, ok)
	_, ok = out[1].(*ctfir.PacketBeginningMessage)
	assert.True(t, ok)

	outUserEvent, ok := out[3].(*ctfir.EventMessage)
	require.True(t, ok)
	debugField := outUserEvent.CommonContextField.MemberByName("debug_info")
	require.NotNil(t, debugField)
	// The binary doesn't exist on disk, so resolution misses and every
	// field stays empty, but the augmentation itself must still apply.
	assert.Equal(t, "", debugField.MemberByName("func").Str)

	_, ok = out[4].(*ctfir.PacketEndMessage)
	assert.True(t, ok)
	_, ok = out[5].(*ctfir.StreamEndMessage)
	assert.True(t, ok)
}

func TestIteratorStreamEndWithoutBeginningIsMalformed(t *testing.T) {
	tc, sc, _, _ := buildUserTraceClass()
	trace := &ctfir.Trace{Class: tc}
	stream := &ctfir.Stream{ID: 1, Class: sc, Trace: trace}

	up := &fakeUpstream{
		batches:  [][]ctfir.Message{{&ctfir.StreamEndMessage{Stream: stream}}},
		statuses: []ctfir.Status{ctfir.StatusOK},
	}

	it := New(up, Config{DebugInfoFieldName: "debug_info"}, fdcache.New(), nil)
	out, status := it.Next(16)
	assert.Equal(t, ctfir.StatusMemoryError, status)
	assert.Nil(t, out)
}

func TestIteratorSeekToBeginningClearsTraceState(t *testing.T) {
	tc, sc, _, _ := buildUserTraceClass()
	trace := &ctfir.Trace{Class: tc}
	stream := &ctfir.Stream{ID: 1, Class: sc, Trace: trace}

	up := &fakeUpstream{
		batches: [][]ctfir.Message{
			{&ctfir.StreamBeginningMessage{Stream: stream}},
			{&ctfir.StreamBeginningMessage{Stream: stream}},
		},
		statuses: []ctfir.Status{ctfir.StatusOK, ctfir.StatusOK},
		canSeek:  true,
	}

	it := New(up, Config{DebugInfoFieldName: "debug_info"}, fdcache.New(), nil)

	_, status := it.Next(16)
	require.Equal(t, ctfir.StatusOK, status)
	assert.Len(t, it.traces, 1)

	seekStatus := it.SeekToBeginning()
	assert.Equal(t, ctfir.StatusOK, seekStatus)
	assert.Len(t, it.traces, 0)
	assert.True(t, it.CanSeekToBeginning())
}

func TestIteratorPropagatesNonOKUpstreamStatus(t *testing.T) {
	tc, sc, _, _ := buildUserTraceClass()
	trace := &ctfir.Trace{Class: tc}
	stream := &ctfir.Stream{ID: 1, Class: sc, Trace: trace}

	up := &fakeUpstream{
		batches:  [][]ctfir.Message{{&ctfir.StreamBeginningMessage{Stream: stream}}},
		statuses: []ctfir.Status{ctfir.StatusAgain},
	}

	it := New(up, Config{DebugInfoFieldName: "debug_info"}, fdcache.New(), nil)
	out, status := it.Next(16)
	assert.Equal(t, ctfir.StatusAgain, status)
	require.Len(t, out, 1)
}
