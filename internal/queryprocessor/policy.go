package queryprocessor

import (
	"fmt"

	"github.com/clipper-go/predictserve/internal/model"
)

// PolicyState is the opaque value a Policy owns per StateKey. It is held
// in the state table as a plain Go value; no serialized form is produced.
// Concrete policies type-assert their own concrete state type internally.
type PolicyState interface{}

// Policy is the selection-policy contract: init_state, select and
// on_feedback. It has no serialize/deserialize methods.
type Policy interface {
	Name() string
	InitState(defaultOutput float64) PolicyState
	Select(state PolicyState, candidates []model.VersionedModelId) (model.VersionedModelId, error)
	OnFeedback(state PolicyState, feedback model.Feedback) PolicyState
}

// DefaultOutputPolicyName is the only policy spec.md §4.3 requires.
const DefaultOutputPolicyName = "default_output_policy"

// defaultOutputState is the sole state a DefaultOutputPolicy carries:
// the configured default value used on deadline miss.
type defaultOutputState struct {
	defaultOutput float64
}

// DefaultOutputPolicy implements select() as "pick first candidate"; its
// state is solely the default output used on deadline miss, per
// spec.md §4.3. Grounded on the original Clipper implementation's
// DefaultOutputSelectionPolicy (original_source/src/frontends, referenced
// via clipper::DefaultOutputSelectionPolicy::get_name()).
type DefaultOutputPolicy struct{}

func (DefaultOutputPolicy) Name() string { return DefaultOutputPolicyName }

func (DefaultOutputPolicy) InitState(defaultOutput float64) PolicyState {
	return defaultOutputState{defaultOutput: defaultOutput}
}

func (DefaultOutputPolicy) Select(state PolicyState, candidates []model.VersionedModelId) (model.VersionedModelId, error) {
	if len(candidates) == 0 {
		return model.VersionedModelId{}, fmt.Errorf("no candidate models configured")
	}
	return candidates[0], nil
}

// OnFeedback is a no-op: the default-output policy carries no
// experience beyond the fixed default value.
func (DefaultOutputPolicy) OnFeedback(state PolicyState, feedback model.Feedback) PolicyState {
	return state
}

// DefaultOutputOf extracts the configured default from a state value
// produced by DefaultOutputPolicy.InitState, used by the processor when
// a deadline fires.
func DefaultOutputOf(state PolicyState) (float64, bool) {
	s, ok := state.(defaultOutputState)
	return s.defaultOutput, ok
}

// PolicyRegistry resolves a policy name to its implementation. Unknown
// names surface as a query-processing error, per spec.md §7.
type PolicyRegistry struct {
	policies map[string]Policy
}

// NewPolicyRegistry returns a registry pre-seeded with
// DefaultOutputPolicy, the only policy spec.md requires.
func NewPolicyRegistry() *PolicyRegistry {
	r := &PolicyRegistry{policies: make(map[string]Policy)}
	r.Register(DefaultOutputPolicy{})
	return r
}

// Register installs a policy under its own Name().
func (r *PolicyRegistry) Register(p Policy) {
	r.policies[p.Name()] = p
}

// Lookup resolves a policy name, returning an error if unregistered.
func (r *PolicyRegistry) Lookup(name string) (Policy, error) {
	p, ok := r.policies[name]
	if !ok {
		return nil, fmt.Errorf("unknown selection policy %q", name)
	}
	return p, nil
}
