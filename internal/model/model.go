// Package model holds the shared domain types described in spec.md §3:
// applications, queries, input tensors, responses, and lineage. These are
// plain value types with no framework dependency, following the
// teacher's handlers/models package convention of keeping wire-adjacent
// structs free of business logic.
package model

import "fmt"

// InputType is the element type tag carried by an application record and
// checked against every incoming input tensor.
type InputType uint8

const (
	InputTypeF64 InputType = iota
	InputTypeI32
	InputTypeString
	InputTypeByte
	InputTypeF32
)

func (t InputType) String() string {
	switch t {
	case InputTypeF64:
		return "f64"
	case InputTypeI32:
		return "i32"
	case InputTypeString:
		return "utf8-string"
	case InputTypeByte:
		return "byte"
	case InputTypeF32:
		return "f32"
	default:
		return "unknown"
	}
}

// ParseInputType maps the configuration store's string encoding of an
// input type to the InputType enum.
func ParseInputType(s string) (InputType, error) {
	switch s {
	case "f64", "doubles", "double":
		return InputTypeF64, nil
	case "i32", "ints", "int":
		return InputTypeI32, nil
	case "utf8-string", "strings", "string":
		return InputTypeString, nil
	case "byte", "bytes":
		return InputTypeByte, nil
	case "f32", "floats", "float":
		return InputTypeF32, nil
	default:
		return 0, fmt.Errorf("unrecognized input type %q", s)
	}
}

// VersionedModelId identifies one candidate model replica set: a
// (model-name, version) pair, per the GLOSSARY.
type VersionedModelId struct {
	Name    string
	Version string
}

func (m VersionedModelId) String() string {
	return m.Name + ":" + m.Version
}

// InputTensor is a typed, length-prefixed vector of primitives. Exactly
// one of the typed slices is populated, matching Type.
type InputTensor struct {
	Type    InputType `json:"type"`
	Doubles []float64 `json:"doubles,omitempty"`
	Ints    []int32   `json:"ints,omitempty"`
	Strings []string  `json:"strings,omitempty"`
	Bytes   []byte    `json:"bytes,omitempty"`
	Floats  []float32 `json:"floats,omitempty"`
}

// Len returns the element count regardless of underlying type.
func (t InputTensor) Len() int {
	switch t.Type {
	case InputTypeF64:
		return len(t.Doubles)
	case InputTypeI32:
		return len(t.Ints)
	case InputTypeString:
		return len(t.Strings)
	case InputTypeByte:
		return len(t.Bytes)
	case InputTypeF32:
		return len(t.Floats)
	default:
		return 0
	}
}

// Application is the record described in spec.md §3, identified by a
// unique Name and mutated only by the configuration store.
type Application struct {
	Name               string
	CandidateModels    []VersionedModelId
	InputType          InputType
	Policy             string
	DefaultOutput      float64
	LatencySLOMicros   int64
}

// Lineage is the flat, ordered mapping from pipeline stage name to a
// microsecond timestamp described in §9 ("Lineage graph"). It is not
// safe for concurrent writes from multiple goroutines without external
// synchronization — callers that race two completion paths (worker vs.
// deadline) must only let the winner append to it.
type Lineage struct {
	order  []string
	stamps map[string]int64
}

// NewLineage returns an empty lineage map.
func NewLineage() *Lineage {
	return &Lineage{stamps: make(map[string]int64)}
}

// Mark records a stage's timestamp in microseconds since epoch. Marking
// the same stage twice overwrites the timestamp but not its position in
// iteration order.
func (l *Lineage) Mark(stage string, microsSinceEpoch int64) {
	if _, ok := l.stamps[stage]; !ok {
		l.order = append(l.order, stage)
	}
	l.stamps[stage] = microsSinceEpoch
}

// Snapshot returns the lineage as an ordered slice of (stage, micros)
// pairs, suitable for JSON serialization while preserving insertion
// order (map iteration order is not guaranteed in Go).
func (l *Lineage) Snapshot() []LineageEntry {
	out := make([]LineageEntry, 0, len(l.order))
	for _, stage := range l.order {
		out = append(out, LineageEntry{Stage: stage, Micros: l.stamps[stage]})
	}
	return out
}

// LineageEntry is one (stage, timestamp) pair in a Lineage snapshot.
type LineageEntry struct {
	Stage  string `json:"stage"`
	Micros int64  `json:"micros"`
}

// Query is the ephemeral per-request value described in §3, created on
// arrival and destroyed after a response is delivered or the deadline
// fires.
type Query struct {
	AppName          string
	UserID           string
	Input            InputTensor
	DeadlineUnixNano int64
	Policy           string
	Candidates       []VersionedModelId
	Lineage          *Lineage
}

// Response is the terminal value produced for a Query: either a real
// prediction or the application's configured default.
type Response struct {
	QueryID     uint64
	Output      float64
	UsedDefault bool
	Lineage     *Lineage
}

// Feedback pairs an input with a user-supplied label, used by the
// /update path.
type Feedback struct {
	Input InputTensor
	Label float64
}

// FeedbackQuery is the ephemeral value backing the /update path.
type FeedbackQuery struct {
	AppName    string
	UserID     string
	Feedback   Feedback
	Policy     string
	Candidates []VersionedModelId
}

// FeedbackAck is the boolean acknowledgment returned by Update.
type FeedbackAck bool

// StateKey identifies one selection-policy state entry: an
// (application, user, model version) triple, per §3.
type StateKey struct {
	AppName string
	UserID  string
	Version string
}

// DefaultUserID is used to key the state seeded at application
// registration time, before any real user has made a request — mirrors
// the original Clipper implementation's DEFAULT_USER_ID sentinel.
const DefaultUserID = ""

// DefaultStateVersion is the sentinel state-key version seeded at
// application registration, following the original Clipper
// implementation's StateKey{name, DEFAULT_USER_ID, 0} — the version
// component of a StateKey tracks policy-state generations, not a
// selected model's version.
const DefaultStateVersion = "0"
