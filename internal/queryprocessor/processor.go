// Package queryprocessor implements the Query Processor from spec.md
// §4.3: it assigns query ids, consults selection-policy state to pick a
// target model, dispatches to the model-RPC path with a deadline, and
// races the worker's response against a deadline timer using a one-shot
// future. Grounded on the teacher's dag-topology-executor package for
// its goroutine-dispatch and concurrent-map idioms, generalized from a
// DAG of named steps to a single dispatch-vs-timer race.
package queryprocessor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	qerrors "github.com/clipper-go/predictserve/internal/errors"
	"github.com/clipper-go/predictserve/internal/logging"
	"github.com/clipper-go/predictserve/internal/metrics"
	"github.com/clipper-go/predictserve/internal/model"
	"github.com/clipper-go/predictserve/internal/modelclient"
)

var component = logging.Component("QUERYPROCESSOR")

// PredictFuture completes with a Response once the worker responds or
// the deadline fires, whichever comes first.
type PredictFuture = Future[model.Response]

// UpdateFuture completes with a FeedbackAck once the feedback has been
// applied to selection-policy state.
type UpdateFuture = Future[model.FeedbackAck]

// Processor is the Query Processor. The zero value is not usable;
// construct with New.
type Processor struct {
	client   modelclient.ModelClient
	policies *PolicyRegistry
	states   *StateTable

	nextQueryID uint64

	// lifetimeCtx is cancelled only by Close, never by a per-query
	// deadline: spec.md §5 requires that a deadline miss "does not cancel
	// the in-flight worker request", it only stops the frontend from
	// waiting on it, so the worker dispatch below must not derive its
	// context from the query's deadline.
	lifetimeCtx    context.Context
	lifetimeCancel context.CancelFunc

	registry        *metrics.Registry
	dispatchMeter   *metrics.Meter
	deadlineMeter   *metrics.Meter
	workerWinMeter  *metrics.Meter
	dispatchLatency *metrics.Histogram
}

// New constructs a processor bound to the given model-RPC client and
// metrics registry. A single PolicyRegistry and StateTable are owned for
// the process's lifetime.
func New(client modelclient.ModelClient, registry *metrics.Registry) *Processor {
	lifetimeCtx, lifetimeCancel := context.WithCancel(context.Background())
	return &Processor{
		client:          client,
		policies:        NewPolicyRegistry(),
		states:          NewStateTable(),
		registry:        registry,
		lifetimeCtx:     lifetimeCtx,
		lifetimeCancel:  lifetimeCancel,
		dispatchMeter:   registry.CreateMeter("queryprocessor.dispatch.rate"),
		deadlineMeter:   registry.CreateMeter("queryprocessor.deadline_miss.rate"),
		workerWinMeter:  registry.CreateMeter("queryprocessor.worker_response.rate"),
		dispatchLatency: registry.CreateHistogram("queryprocessor.dispatch.latency_micros"),
	}
}

// Close cancels any still-dispatched worker requests. It exists only for
// process shutdown, not for per-query deadlines.
func (p *Processor) Close() { p.lifetimeCancel() }

// Policies exposes the policy registry so the Application Registrar can
// validate a configured policy name at registration time.
func (p *Processor) Policies() *PolicyRegistry { return p.policies }

// GetStateTable returns the processor's concurrent selection-policy
// state table, per spec.md §4.3.
func (p *Processor) GetStateTable() *StateTable { return p.states }

// SeedState installs the initial state for an application at
// registration time, keyed the way the original Clipper implementation
// keys default state: (app, DefaultUserID, DefaultStateVersion).
func (p *Processor) SeedState(app model.Application) error {
	policy, err := p.policies.Lookup(app.Policy)
	if err != nil {
		return &qerrors.QueryProcessingError{Cause: err.Error()}
	}
	key := model.StateKey{AppName: app.Name, UserID: model.DefaultUserID, Version: model.DefaultStateVersion}
	p.states.Put(key, policy.InitState(app.DefaultOutput))
	return nil
}

// Predict assigns a fresh query id, selects a target model via the
// application's selection policy, dispatches to the model-RPC path,
// arms a timer that fires at query.DeadlineUnixNano (the worker call
// itself carries no deadline), and returns a future that
// completes with either the worker's response or, on deadline miss, the
// application's default output. It only returns an error for malformed
// dispatch state (no candidate models, unknown policy) — deadline misses
// are absorbed into the future, never surfaced as an error, per
// spec.md §4.3 and §7.
func (p *Processor) Predict(ctx context.Context, query model.Query) (*PredictFuture, error) {
	policy, err := p.policies.Lookup(query.Policy)
	if err != nil {
		return nil, &qerrors.QueryProcessingError{Cause: err.Error()}
	}
	if len(query.Candidates) == 0 {
		return nil, &qerrors.QueryProcessingError{Cause: fmt.Sprintf("no candidate models configured for %q", query.AppName)}
	}

	key := model.StateKey{AppName: query.AppName, UserID: model.DefaultUserID, Version: model.DefaultStateVersion}
	state, ok := p.states.Get(key)
	if !ok {
		return nil, &qerrors.QueryProcessingError{Cause: fmt.Sprintf("no selection-policy state for %q", query.AppName)}
	}

	target, err := policy.Select(state, query.Candidates)
	if err != nil {
		return nil, &qerrors.QueryProcessingError{Cause: err.Error()}
	}

	queryID := atomic.AddUint64(&p.nextQueryID, 1)
	future := newFuture[model.Response]()
	deadline := time.Unix(0, query.DeadlineUnixNano)

	if query.Lineage != nil {
		query.Lineage.Mark("qp::dispatch", time.Now().UnixMicro())
	}
	p.dispatchMeter.Mark(1)

	// dispatchCtx is scoped to the processor's lifetime, not query's
	// deadline: the worker call is left running past a deadline miss and
	// its eventual response is simply discarded by the future below.
	dispatchCtx := p.lifetimeCtx

	go func() {
		start := time.Now()
		resp, err := p.client.Predict(dispatchCtx, target, modelclient.PredictRequest{
			AppName: query.AppName,
			UserID:  query.UserID,
			Input:   query.Input,
		})
		p.dispatchLatency.Update(float64(time.Since(start).Microseconds()))
		if err != nil {
			// A late worker error after the deadline has already fired is a
			// discarded loser: future.complete below is then a no-op.
			return
		}
		if future.complete(model.Response{QueryID: queryID, Output: resp.Output, UsedDefault: false, Lineage: query.Lineage}) {
			// Only the winner may append to Lineage — it is an
			// unsynchronized map and the loser's write would race with
			// whatever later reads the winner's response.
			if query.Lineage != nil {
				query.Lineage.Mark("qp::response_received", time.Now().UnixMicro())
			}
			p.workerWinMeter.Mark(1)
		}
	}()

	go func() {
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		<-timer.C
		defaultOutput, _ := DefaultOutputOf(state)
		if future.complete(model.Response{QueryID: queryID, Output: defaultOutput, UsedDefault: true, Lineage: query.Lineage}) {
			if query.Lineage != nil {
				query.Lineage.Mark("qp::deadline_fired", time.Now().UnixMicro())
			}
			p.deadlineMeter.Mark(1)
		}
	}()

	return future, nil
}

// Update applies feedback to the application's selection-policy state
// under per-key atomicity and returns a future that completes
// immediately with an acknowledgment — there is no worker dispatch to
// race, so the future here exists only to give callers the same
// non-blocking continuation shape as Predict, per spec.md §4.4.
func (p *Processor) Update(ctx context.Context, query model.FeedbackQuery) (*UpdateFuture, error) {
	policy, err := p.policies.Lookup(query.Policy)
	if err != nil {
		return nil, &qerrors.QueryProcessingError{Cause: err.Error()}
	}

	key := model.StateKey{AppName: query.AppName, UserID: model.DefaultUserID, Version: model.DefaultStateVersion}
	updated := p.states.Update(key, func(current PolicyState) PolicyState {
		if current == nil {
			component.Error(fmt.Sprintf("feedback for %q arrived with no seeded state", query.AppName), nil)
			return current
		}
		return policy.OnFeedback(current, query.Feedback)
	})

	future := newFuture[model.FeedbackAck]()
	future.complete(model.FeedbackAck(updated != nil))
	return future, nil
}
