// Package iterator drives one upstream message iterator, mapping every
// message it produces through pkg/traceir and pkg/debuginfoindex into an
// augmented output message stream (spec.md §4.5: "Iterator Pump"),
// grounded on original_source/plugins/lttng-utils/debug-info/debug-info.c's
// debug_info_msg_iter_next.
package iterator

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/efficios/go-debuginfofilter/internal/metrics"
	"github.com/efficios/go-debuginfofilter/internal/tracing"
	"github.com/efficios/go-debuginfofilter/pkg/bininfo"
	"github.com/efficios/go-debuginfofilter/pkg/ctfir"
	"github.com/efficios/go-debuginfofilter/pkg/debuginfoindex"
	"github.com/efficios/go-debuginfofilter/pkg/fdcache"
	"github.com/efficios/go-debuginfofilter/pkg/ierrors"
	"github.com/efficios/go-debuginfofilter/pkg/rescache"
	"github.com/efficios/go-debuginfofilter/pkg/traceir"
)

// Config carries the parameters consumed at iterator creation (spec.md
// §6: "EXTERNAL INTERFACES"), plus the supplemented resolved-info disk
// cache toggle (SPEC_FULL.md §5 item 5).
type Config struct {
	DebugInfoFieldName string
	DebugInfoDir       string
	TargetPrefix       string
	FullPath           bool

	ResolvedInfoCache bool // opt-in, default false
	WatchDebugInfoDir bool // opt-in, default false (SPEC_FULL.md §2)
}

// traceState is the per-input-trace mapping state: its metadata/data
// maps plus its DebugInfoIndex (spec.md §4.5: "triggering ... trace
// mapping as needed").
type traceState struct {
	maps  *traceir.Maps
	index *debuginfoindex.Index
}

// Iterator is the pump (spec.md §4.5). It owns the fd-cache shared by
// every BinaryInfo transitively created while resolving debug info, and
// the per-trace mapping state cleared wholesale on seek-to-beginning.
type Iterator struct {
	upstream ctfir.UpstreamIterator
	cfg      Config
	logger   *logrus.Logger
	fdc      *fdcache.Cache

	traces   map[*ctfir.Trace]*traceState
	resCache *rescache.Cache  // nil unless cfg.ResolvedInfoCache is set
	watcher  *bininfo.Watcher // nil unless cfg.WatchDebugInfoDir is set
	tracer   *tracing.Manager // disabled no-op manager until SetTracer is called
}

// New creates an Iterator pulling from upstream. fdc is owned by the
// caller and closed by the caller — Close only tears down the Iterator's
// own per-trace indexes and its watcher, mirroring spec.md §5's "the file-descriptor cache is
// owned by the iterator" at the granularity this package actually
// controls (the cache's lifetime spans multiple Iterators in the test
// harness, so ownership of Close is left to whoever constructed it).
func New(upstream ctfir.UpstreamIterator, cfg Config, fdc *fdcache.Cache, logger *logrus.Logger) *Iterator {
	if logger == nil {
		logger = logrus.New()
	}
	noopTracer, _ := tracing.NewManager(tracing.Config{Enabled: false}, logger)
	it := &Iterator{
		upstream: upstream,
		cfg:      cfg,
		logger:   logger,
		fdc:      fdc,
		traces:   make(map[*ctfir.Trace]*traceState),
		tracer:   noopTracer,
	}
	if cfg.ResolvedInfoCache {
		it.resCache = rescache.New(cfg.DebugInfoDir, logger)
	}
	if cfg.WatchDebugInfoDir {
		w, err := bininfo.NewWatcher(cfg.DebugInfoDir, logger)
		if err != nil {
			logger.WithError(err).Warn("debuginfofilter: failed to watch debug-info-dir, falling back to unwatched resolution")
		} else {
			it.watcher = w
		}
	}
	return it
}

// SetTracer attaches the OpenTelemetry manager used to span batches and
// resolutions. Until called, Next runs against a disabled no-op
// manager, so tracing is purely additive.
func (it *Iterator) SetTracer(tracer *tracing.Manager) {
	it.tracer = tracer
}

// Close tears down every per-trace DebugInfoIndex, persisting resolved
// instruction-pointer caches when the resolved-info disk cache is
// enabled (SPEC_FULL.md §5 item 5). The fd-cache itself is owned by the
// caller and is not closed here — see New's doc comment.
func (it *Iterator) Close() {
	for _, st := range it.traces {
		st.index.Close()
	}
	if it.watcher != nil {
		_ = it.watcher.Close()
	}
}

// Stats is a diagnostics snapshot of the iterator's mapping state,
// surfaced by internal/app's /debug/cache endpoint.
type Stats struct {
	Traces          int
	TrackedVpids    int
	FileDescriptors int
}

// Stats reports the current size of the per-trace mapping state and the
// shared fd-cache.
func (it *Iterator) Stats() Stats {
	s := Stats{Traces: len(it.traces), FileDescriptors: it.fdc.Len()}
	for _, st := range it.traces {
		s.TrackedVpids += st.index.VpidCount()
	}
	return s
}

// Next pulls up to capacity upstream messages and returns their mapped
// counterparts (spec.md §4.5). On any per-message failure, no partial
// output is returned and the call reports MEMORY_ERROR; the caller is
// expected to retry or abort per the upstream status contract.
func (it *Iterator) Next(capacity int) ([]ctfir.Message, ctfir.Status) {
	ctx, span := it.tracer.StartBatch(context.Background(), capacity)
	var batchErr error
	defer func() { tracing.End(span, batchErr) }()

	inMsgs, status := it.upstream.Next(capacity)

	out := make([]ctfir.Message, 0, len(inMsgs))
	for _, in := range inMsgs {
		outMsg, err := it.dispatch(ctx, in)
		if err != nil {
			batchErr = err
			it.logger.WithError(err).WithField("messageType", in.Type()).
				Error("debuginfofilter: failed to map message")
			if fe, ok := ierrors.AsFilterError(err); ok {
				metrics.RecordError(fe.Code, string(fe.Severity))
			}
			return nil, ctfir.StatusMemoryError
		}
		if outMsg != nil {
			metrics.RecordMessageProcessed(messageTypeLabel(outMsg))
			out = append(out, outMsg)
		}
	}

	metrics.BatchSize.Observe(float64(len(out)))
	metrics.FDCacheSize.Set(float64(it.fdc.Len()))

	return out, status
}

// messageTypeLabel names out's concrete message type for
// MessagesProcessedTotal's "message_type" label.
func messageTypeLabel(out ctfir.Message) string {
	switch out.(type) {
	case *ctfir.StreamBeginningMessage:
		return "stream_beginning"
	case *ctfir.StreamEndMessage:
		return "stream_end"
	case *ctfir.PacketBeginningMessage:
		return "packet_beginning"
	case *ctfir.PacketEndMessage:
		return "packet_end"
	case *ctfir.EventMessage:
		return "event"
	case *ctfir.DiscardedEventsMessage:
		return "discarded_events"
	case *ctfir.DiscardedPacketsMessage:
		return "discarded_packets"
	case *ctfir.MessageIteratorInactivityMessage:
		return "inactivity"
	default:
		return "other"
	}
}

// SeekToBeginning rewinds upstream and, on success, drops every per-trace
// mapping state so the next Next() call observes a fresh mapping (spec.md
// §4.5: "clear both data and metadata maps and the trace→DebugInfoIndex
// map").
func (it *Iterator) SeekToBeginning() ctfir.Status {
	status := it.upstream.SeekToBeginning()
	if status == ctfir.StatusOK {
		it.traces = make(map[*ctfir.Trace]*traceState)
	}
	return status
}

// CanSeekToBeginning proxies seekability from upstream (spec.md §4.5).
func (it *Iterator) CanSeekToBeginning() bool {
	return it.upstream.CanSeekToBeginning()
}

func (it *Iterator) dispatch(ctx context.Context, in ctfir.Message) (ctfir.Message, error) {
	switch m := in.(type) {
	case *ctfir.StreamBeginningMessage:
		return it.handleStreamBeginning(m)
	case *ctfir.StreamEndMessage:
		return it.handleStreamEnd(m)
	case *ctfir.PacketBeginningMessage:
		return it.handlePacketBeginning(m)
	case *ctfir.PacketEndMessage:
		return it.handlePacketEnd(m)
	case *ctfir.EventMessage:
		return it.handleEvent(ctx, m)
	case *ctfir.DiscardedEventsMessage:
		return it.handleDiscardedEvents(m)
	case *ctfir.DiscardedPacketsMessage:
		return it.handleDiscardedPackets(m)
	case *ctfir.MessageIteratorInactivityMessage:
		// References no mapped objects; forwarded verbatim (spec.md
		// §4.5).
		return m, nil
	default:
		// Opaque message type the filter does not specifically handle
		// (spec.md §4.5: "forwards opaque messages unchanged").
		return in, nil
	}
}

func (it *Iterator) stateFor(trace *ctfir.Trace) (*traceState, error) {
	if st, ok := it.traces[trace]; ok {
		return st, nil
	}
	maps, err := traceir.New(trace, it.cfg.DebugInfoFieldName)
	if err != nil {
		return nil, err
	}
	var index *debuginfoindex.Index
	if it.resCache != nil {
		index = debuginfoindex.NewWithResolvedInfoCache(it.fdc, it.cfg.DebugInfoDir, it.cfg.TargetPrefix, it.resCache)
	} else {
		index = debuginfoindex.New(it.fdc, it.cfg.DebugInfoDir, it.cfg.TargetPrefix)
	}
	if it.watcher != nil {
		index.SetWatcher(it.watcher)
	}
	st := &traceState{maps: maps, index: index}
	it.traces[trace] = st
	return st, nil
}

func (it *Iterator) handleStreamBeginning(m *ctfir.StreamBeginningMessage) (ctfir.Message, error) {
	st, err := it.stateFor(m.Stream.Trace)
	if err != nil {
		return nil, err
	}
	outStream, err := st.maps.Data.Stream(m.Stream)
	if err != nil {
		return nil, err
	}
	return &ctfir.StreamBeginningMessage{Stream: outStream}, nil
}

func (it *Iterator) handleStreamEnd(m *ctfir.StreamEndMessage) (ctfir.Message, error) {
	st, ok := it.traces[m.Stream.Trace]
	if !ok {
		return nil, ierrMalformed("handleStreamEnd", "stream end for a trace with no mapping state")
	}
	outStream, ok := st.maps.Data.LookupStream(m.Stream)
	if !ok {
		return nil, ierrMalformed("handleStreamEnd", "stream end for a stream never mapped")
	}
	st.maps.Data.RemoveStream(m.Stream)
	return &ctfir.StreamEndMessage{Stream: outStream}, nil
}

func (it *Iterator) handlePacketBeginning(m *ctfir.PacketBeginningMessage) (ctfir.Message, error) {
	st, err := it.stateFor(m.Packet.Stream.Trace)
	if err != nil {
		return nil, err
	}
	outPacket, err := st.maps.Data.Packet(m.Packet)
	if err != nil {
		return nil, err
	}

	out := &ctfir.PacketBeginningMessage{Packet: outPacket}
	if outPacket.Stream.Class.PacketsHaveBeginningDefaultClockSnapshot {
		snap, err := st.maps.Metadata.MapClockSnapshot(m.DefaultClockSnapshot)
		if err != nil {
			return nil, err
		}
		out.DefaultClockSnapshot = snap
	}
	return out, nil
}

func (it *Iterator) handlePacketEnd(m *ctfir.PacketEndMessage) (ctfir.Message, error) {
	st, ok := it.traces[m.Packet.Stream.Trace]
	if !ok {
		return nil, ierrMalformed("handlePacketEnd", "packet end for a trace with no mapping state")
	}
	outPacket, ok := st.maps.Data.LookupPacket(m.Packet)
	if !ok {
		return nil, ierrMalformed("handlePacketEnd", "packet end for a packet never mapped")
	}
	st.maps.Data.RemovePacket(m.Packet)

	out := &ctfir.PacketEndMessage{Packet: outPacket}
	if outPacket.Stream.Class.PacketsHaveEndDefaultClockSnapshot {
		snap, err := st.maps.Metadata.MapClockSnapshot(m.DefaultClockSnapshot)
		if err != nil {
			return nil, err
		}
		out.DefaultClockSnapshot = snap
	}
	return out, nil
}

func (it *Iterator) handleEvent(ctx context.Context, m *ctfir.EventMessage) (ctfir.Message, error) {
	st, err := it.stateFor(m.Stream.Trace)
	if err != nil {
		return nil, err
	}

	if err := st.index.HandleEvent(m); err != nil {
		return nil, err
	}

	return st.maps.Data.Event(m, &indexQuerier{idx: st.index, ctx: ctx, tracer: it.tracer}, it.cfg.FullPath)
}

func (it *Iterator) handleDiscardedEvents(m *ctfir.DiscardedEventsMessage) (ctfir.Message, error) {
	st, ok := it.traces[m.Stream.Trace]
	if !ok {
		return nil, ierrMalformed("handleDiscardedEvents", "discarded-events for a trace with no mapping state")
	}
	outStream, ok := st.maps.Data.LookupStream(m.Stream)
	if !ok {
		return nil, ierrMalformed("handleDiscardedEvents", "discarded-events for a stream never mapped")
	}

	out := &ctfir.DiscardedEventsMessage{Stream: outStream, HasCount: m.HasCount, Count: m.Count}
	if outStream.Class.DiscardedEventsHaveDefaultClockSnapshots {
		begin, err := st.maps.Metadata.MapClockSnapshot(m.BeginClock)
		if err != nil {
			return nil, err
		}
		end, err := st.maps.Metadata.MapClockSnapshot(m.EndClock)
		if err != nil {
			return nil, err
		}
		out.BeginClock, out.EndClock = begin, end
	}
	return out, nil
}

func (it *Iterator) handleDiscardedPackets(m *ctfir.DiscardedPacketsMessage) (ctfir.Message, error) {
	st, ok := it.traces[m.Stream.Trace]
	if !ok {
		return nil, ierrMalformed("handleDiscardedPackets", "discarded-packets for a trace with no mapping state")
	}
	outStream, ok := st.maps.Data.LookupStream(m.Stream)
	if !ok {
		return nil, ierrMalformed("handleDiscardedPackets", "discarded-packets for a stream never mapped")
	}

	out := &ctfir.DiscardedPacketsMessage{Stream: outStream, HasCount: m.HasCount, Count: m.Count}
	if outStream.Class.DiscardedPacketsHaveDefaultClockSnapshots {
		begin, err := st.maps.Metadata.MapClockSnapshot(m.BeginClock)
		if err != nil {
			return nil, err
		}
		end, err := st.maps.Metadata.MapClockSnapshot(m.EndClock)
		if err != nil {
			return nil, err
		}
		out.BeginClock, out.EndClock = begin, end
	}
	return out, nil
}
