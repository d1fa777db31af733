package debuginfoindex

// eventKind classifies the seven lttng-ust statedump/dl/lib event
// names this package acts on. classifyEventName looks each name up in
// a fixed map built once at package init, one hash lookup per event
// rather than seven string compares, mirroring the effect of the
// original's g_quark_from_string interning without its lazy,
// first-sight population — every name this filter recognizes is known
// upfront, so there is nothing to intern lazily (SPEC_FULL.md §5 item 4).
type eventKind int

const (
	eventKindOther eventKind = iota
	eventKindStatedumpStart
	eventKindStatedumpBinInfo
	eventKindStatedumpBuildID
	eventKindStatedumpDebugLink
	eventKindDlOpen
	eventKindLibLoad
	eventKindLibUnload
)

var eventNameToKind = map[string]eventKind{
	"lttng_ust_statedump:start":      eventKindStatedumpStart,
	"lttng_ust_statedump:bin_info":   eventKindStatedumpBinInfo,
	"lttng_ust_statedump:build_id":   eventKindStatedumpBuildID,
	"lttng_ust_statedump:debug_link": eventKindStatedumpDebugLink,
	"lttng_ust_dl:dlopen":            eventKindDlOpen,
	"lttng_ust_lib:load":             eventKindLibLoad,
	"lttng_ust_lib:unload":           eventKindLibUnload,
}

func classifyEventName(name string) eventKind {
	if k, ok := eventNameToKind[name]; ok {
		return k
	}
	return eventKindOther
}
