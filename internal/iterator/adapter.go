package iterator

import (
	"context"
	"time"

	"github.com/efficios/go-debuginfofilter/internal/metrics"
	"github.com/efficios/go-debuginfofilter/internal/tracing"
	"github.com/efficios/go-debuginfofilter/pkg/debuginfoindex"
	"github.com/efficios/go-debuginfofilter/pkg/procsources"
	"github.com/efficios/go-debuginfofilter/pkg/traceir"
)

// indexQuerier adapts one trace's *debuginfoindex.Index to
// traceir.DebugInfoQuerier, converting procsources.DebugInfoSource to
// traceir.DebugInfoSource field-for-field so traceir never imports
// debuginfoindex/procsources directly. It also records every query's
// cache outcome and wall-clock cost (SPEC_FULL.md §2: "cache hit/miss
// counters, resolution latency histogram") and wraps every query, cache
// hits included, in one child span.
type indexQuerier struct {
	idx    *debuginfoindex.Index
	ctx    context.Context
	tracer *tracing.Manager
}

func (q *indexQuerier) Query(vpid int64, ip uint64) (*traceir.DebugInfoSource, error) {
	start := time.Now()
	_, span := q.tracer.StartResolve(q.ctx, vpid, ip)

	src, hit, err := q.idx.Query(vpid, ip)
	tracing.End(span, err)

	switch {
	case err != nil:
		// No outcome recorded; the error itself is handled by the caller.
	case hit:
		metrics.RecordResolution("hit", time.Since(start))
	case src != nil:
		metrics.RecordResolution("miss_resolved", time.Since(start))
	default:
		metrics.RecordResolution("miss_unresolved", time.Since(start))
	}

	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, nil
	}
	return convertDebugInfoSource(src), nil
}

func convertDebugInfoSource(src *procsources.DebugInfoSource) *traceir.DebugInfoSource {
	return &traceir.DebugInfoSource{
		Func:         src.Func,
		HasSrcLoc:    src.HasSrcLoc,
		LineNo:       src.LineNo,
		SrcPath:      src.SrcPath,
		ShortSrcPath: src.ShortSrcPath,
		BinPath:      src.BinPath,
		ShortBinPath: src.ShortBinPath,
		BinLoc:       src.BinLoc,
	}
}
