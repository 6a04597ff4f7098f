// Package registrar is the Application Registrar from spec.md §4.6: it
// reacts to hset events from the configuration store, parses the flat
// application record, seeds selection-policy state, and installs
// handlers on both frontends. Grounded on the teacher's etcd
// RegisterWatchPathCallback wiring in cmd/inferflow/main.go, generalized
// from a struct-tree callback to a per-application hset handler.
package registrar

import (
	"fmt"
	"strconv"

	"github.com/clipper-go/predictserve/internal/configstore"
	"github.com/clipper-go/predictserve/internal/logging"
	"github.com/clipper-go/predictserve/internal/model"
	"github.com/clipper-go/predictserve/pkg/set"
)

var component = logging.Component("REGISTRAR")

// Handlers is what the registrar installs an application into once its
// record is parsed and its state seeded. httpfrontend.Router and
// zmqfrontend.Frontend both implement this.
type Handlers interface {
	InstallApplication(app model.Application) error
}

// StateSeeder is satisfied by queryprocessor.Processor.
type StateSeeder interface {
	SeedState(app model.Application) error
}

// Registrar owns the startup-time subscription to the configuration
// store and the idempotent installation of new applications.
type Registrar struct {
	store    configstore.Store
	seeder   StateSeeder
	targets  []Handlers
	seen     *set.ThreadSafeSet
}

// New constructs a registrar that will install newly seen applications
// into every target in targets, in order.
func New(store configstore.Store, seeder StateSeeder, targets ...Handlers) *Registrar {
	return &Registrar{
		store:   store,
		seeder:  seeder,
		targets: targets,
		seen:    set.NewThreadSafeSet(),
	}
}

// Start subscribes to the configuration store. Handler installation for
// events observed before Start returns is asynchronous; callers that
// need every already-existing application registered before serving
// traffic should call Bootstrap first.
func (r *Registrar) Start() {
	r.store.SubscribeToApplicationChanges(func(key string, eventType configstore.EventType) {
		if eventType != configstore.EventHset {
			// Deletions and updates to existing applications are ignored:
			// registration is append-only within a process lifetime, per
			// spec.md §9's open-question decision (see DESIGN.md).
			return
		}
		r.onHset(key)
	})
}

// Bootstrap installs every application already present in the store at
// startup, before Start begins watching for further hset events.
func (r *Registrar) Bootstrap(names []string) {
	for _, name := range names {
		r.onHset(name)
	}
}

// AppCount reports how many applications have been installed, mirroring
// the original Clipper implementation's num_applications() accessor
// (original_source/src/frontends/src/query_frontend.hpp).
func (r *Registrar) AppCount() int {
	return r.seen.Len()
}

func (r *Registrar) onHset(name string) {
	if r.seen.Contains(name) {
		// First-writer-wins: subsequent hsets for an already-installed
		// name replace neither state nor endpoints, per spec.md §4.6.
		return
	}

	fields, err := r.store.GetApplicationByKey(name)
	if err != nil {
		component.Error(fmt.Sprintf("failed to read application record for %q", name), err)
		return
	}

	app, err := parseApplication(name, fields)
	if err != nil {
		component.Error(fmt.Sprintf("malformed application record for %q", name), err)
		return
	}

	if err := r.seeder.SeedState(app); err != nil {
		component.Error(fmt.Sprintf("failed to seed selection-policy state for %q", name), err)
		return
	}

	for _, target := range r.targets {
		if err := target.InstallApplication(app); err != nil {
			component.Error(fmt.Sprintf("failed to install handlers for %q", name), err)
			return
		}
	}

	// Mark seen only once every target succeeded, so a failed
	// installation can be retried by a later duplicate hset rather than
	// being silently swallowed by the first-writer-wins guard.
	r.seen.Add(name)
	component.Info(fmt.Sprintf("application %q registered with %d candidate model(s)", name, len(app.CandidateModels)))
}

func parseApplication(name string, fields map[string]string) (model.Application, error) {
	inputType, err := model.ParseInputType(fields["input_type"])
	if err != nil {
		return model.Application{}, err
	}

	candidates, err := configstore.StrToModels(fields["candidate_models"])
	if err != nil {
		return model.Application{}, err
	}
	if len(candidates) == 0 {
		return model.Application{}, fmt.Errorf("application %q has no candidate models", name)
	}

	defaultOutput, err := strconv.ParseFloat(fields["default_output"], 64)
	if err != nil {
		return model.Application{}, fmt.Errorf("invalid default_output for %q: %w", name, err)
	}

	latencySLO, err := strconv.ParseInt(fields["latency_slo_micros"], 10, 64)
	if err != nil {
		return model.Application{}, fmt.Errorf("invalid latency_slo_micros for %q: %w", name, err)
	}

	policy := fields["policy"]
	if policy == "" {
		return model.Application{}, fmt.Errorf("application %q has no policy", name)
	}

	return model.Application{
		Name:             name,
		CandidateModels:  candidates,
		InputType:        inputType,
		Policy:           policy,
		DefaultOutput:    defaultOutput,
		LatencySLOMicros: latencySLO,
	}, nil
}
