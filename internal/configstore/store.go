// Package configstore is the Configuration Client from spec.md §4.2: two
// logical connections to an external key/value store (read/write and
// subscriber), used to read application records and watch for new ones.
//
// The teacher (pkg/etcd) binds a deeply nested Go struct to an etcd
// subtree via reflection, which fits inferflow's own tree-shaped model
// config but not spec.md's data model, which is a flat five-field hash
// per application (mirroring the original Clipper implementation's Redis
// HSET layout — see original_source/src/frontends/src/query_frontend.hpp).
// This package keeps the teacher's connect-with-retry and
// watch-with-callback idioms and drops the reflection-based struct
// binder in favor of a flat map[string]string per application.
package configstore

import (
	"fmt"
	"strings"

	"github.com/clipper-go/predictserve/internal/model"
)

// EventType mirrors the store's mutation kinds. Only Hset is acted upon
// by the Application Registrar, per spec.md §4.6; Hdel is delivered so
// callers can observe/count it but is otherwise ignored (see DESIGN.md's
// "application removal" open-question decision).
type EventType string

const (
	EventHset EventType = "hset"
	EventHdel EventType = "hdel"
)

// ChangeCallback is invoked once per store mutation, exactly the shape
// spec.md §4.2 describes: "the callback receives (key, event_type) for
// every store mutation".
type ChangeCallback func(key string, eventType EventType)

// Store is the Configuration Client contract used by the rest of the
// core. Two implementations exist: EtcdStore (production, backed by
// go.etcd.io/etcd/client/v3) and MemoryStore (an in-process fake used by
// tests and local development).
type Store interface {
	// Connect dials the store, retrying with a 1-second backoff until
	// connected. An implementation with a bounded retry budget (EtcdStore
	// with maxRetries > 0) returns an error once the budget is spent.
	Connect() error

	// GetApplicationByKey returns the flat field map for one application
	// record: candidate_models, input_type, policy, default_output,
	// latency_slo_micros.
	GetApplicationByKey(name string) (map[string]string, error)

	// ListApplicationNames returns every application name currently
	// present in the store, used to bootstrap the Application Registrar
	// with records written before the process started (spec.md §4.6
	// covers only the live-`hset`-event path; records that already
	// existed at boot never fire a watch event).
	ListApplicationNames() ([]string, error)

	// SubscribeToApplicationChanges registers callback to be invoked for
	// every mutation observed on the store's application namespace.
	// Subsequent loss of connection after Connect succeeds is fatal to
	// the frontend, per spec.md §4.2 and §7.
	SubscribeToApplicationChanges(callback ChangeCallback)

	// Close releases both connections.
	Close() error
}

// StrToModels parses the configuration store's encoding of the
// candidate_models field into a list of VersionedModelId. The wire
// format is a comma-separated list of "name:version" pairs, the flat
// encoding of the original Clipper implementation's candidate model list
// (redis stores the same list joined this way before parsing it back
// with clipper::redis::str_to_models).
func StrToModels(s string) ([]model.VersionedModelId, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	models := make([]model.VersionedModelId, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		nameVersion := strings.SplitN(part, ":", 2)
		if len(nameVersion) != 2 {
			return nil, fmt.Errorf("malformed candidate model entry %q, expected name:version", part)
		}
		models = append(models, model.VersionedModelId{
			Name:    strings.TrimSpace(nameVersion[0]),
			Version: strings.TrimSpace(nameVersion[1]),
		})
	}
	return models, nil
}

// ModelsToStr is the inverse of StrToModels, used by administrative
// tooling and by MemoryStore's test helpers when seeding records.
func ModelsToStr(models []model.VersionedModelId) string {
	parts := make([]string, len(models))
	for i, m := range models {
		parts[i] = m.Name + ":" + m.Version
	}
	return strings.Join(parts, ",")
}
