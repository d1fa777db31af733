package ctfir

// ClockClass describes one clock source (spec.md §4.3: "Clock class").
// Clock classes are copied into the output trace class once per input
// clock class and memoized — see traceir.metadataMaps.clockClassMap.
type ClockClass struct {
	Name             string
	Description      string
	UUID             [16]byte
	HasUUID          bool
	Frequency        uint64
	Precision        uint64
	OffsetSeconds    int64
	OffsetCycles     uint64
	OriginIsUnixEpoch bool
	UserAttrs        any
}

// ClockSnapshot is a single clock value tied to the ClockClass it was
// taken against.
type ClockSnapshot struct {
	Class *ClockClass
	Value uint64
}

// LogLevel mirrors the small fixed vocabulary an event class may carry.
type LogLevel int

const (
	LogLevelUnspecified LogLevel = iota
	LogLevelEmergency
	LogLevelAlert
	LogLevelCritical
	LogLevelError
	LogLevelWarning
	LogLevelNotice
	LogLevelInfo
	LogLevelDebug
)

// EventClass corresponds to one named kind of event within a stream
// class (spec.md §4.3: "Event class").
type EventClass struct {
	ID     uint64
	Name   string

	HasLogLevel bool
	LogLevel    LogLevel

	EMFURI string // "" if absent

	UserAttrs any

	SpecificContextFieldClass FieldClass // nil if absent
	PayloadFieldClass         FieldClass // nil if absent

	StreamClass *StreamClass
}

// StreamClass groups a set of event classes sharing a common context
// layout and packet framing behavior (spec.md §4.3: "Stream class").
type StreamClass struct {
	ID   uint64
	Name string

	DefaultClockClass *ClockClass // nil if absent

	UserAttrs any

	SupportsPackets                        bool
	PacketsHaveBeginningDefaultClockSnapshot bool
	PacketsHaveEndDefaultClockSnapshot       bool

	SupportsDiscardedEvents                     bool
	DiscardedEventsHaveDefaultClockSnapshots    bool
	SupportsDiscardedPackets                    bool
	DiscardedPacketsHaveDefaultClockSnapshots   bool

	AssignsAutomaticStreamID bool
	AssignsAutomaticEventClassID bool

	PacketContextFieldClass      FieldClass // nil if absent
	EventCommonContextFieldClass FieldClass // nil if absent

	EventClasses []*EventClass

	TraceClass *TraceClass
}

func (sc *StreamClass) EventClassByID(id uint64) *EventClass {
	for _, ec := range sc.EventClasses {
		if ec.ID == id {
			return ec
		}
	}
	return nil
}

func (sc *StreamClass) AppendEventClass(ec *EventClass) {
	ec.StreamClass = sc
	sc.EventClasses = append(sc.EventClasses, ec)
}

// EnvironmentEntry is one entry of the trace class's ordered,
// integer-or-string environment (spec.md §4.3: "environment entries").
type EnvironmentEntry struct {
	Name      string
	IsInteger bool
	IntValue  int64
	StrValue  string
}

// TraceClass is the root of one input (or output) metadata graph
// (spec.md §4.3: "Trace class").
type TraceClass struct {
	UserAttrs   any
	Environment []EnvironmentEntry

	AssignsAutomaticStreamClassID bool

	StreamClasses []*StreamClass
}

func (tc *TraceClass) StreamClassByID(id uint64) *StreamClass {
	for _, sc := range tc.StreamClasses {
		if sc.ID == id {
			return sc
		}
	}
	return nil
}

func (tc *TraceClass) AppendStreamClass(sc *StreamClass) {
	sc.TraceClass = tc
	tc.StreamClasses = append(tc.StreamClasses, sc)
}

// Trace is one instance of a TraceClass (spec.md §4.3: "Trace"). Its
// UUID is intentionally not copied by the data/metadata copier — see
// traceir's trace copy — because the output trace may diverge from the
// input and must not claim the input's identity.
type Trace struct {
	Class     *TraceClass
	Name      string
	HasName   bool
	UserAttrs any
	Streams   []*Stream
}

// Stream is one instance of a StreamClass within a Trace (spec.md §4.3:
// "Stream").
type Stream struct {
	ID        uint64
	Class     *StreamClass
	Trace     *Trace
	Name      string
	HasName   bool
	UserAttrs any
}

// Packet is one packet of a Stream (spec.md §4.3: "Packet").
type Packet struct {
	Stream       *Stream
	ContextField *Field // nil if the stream class carries no packet context
}
