package registrar

import (
	"testing"

	"github.com/clipper-go/predictserve/internal/configstore"
	"github.com/clipper-go/predictserve/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSeeder struct {
	seeded []string
}

func (f *fakeSeeder) SeedState(app model.Application) error {
	f.seeded = append(f.seeded, app.Name)
	return nil
}

type fakeHandlers struct {
	installed []string
}

func (f *fakeHandlers) InstallApplication(app model.Application) error {
	f.installed = append(f.installed, app.Name)
	return nil
}

func seedRecord(store *configstore.MemoryStore, name string) {
	store.Put(name, map[string]string{
		"candidate_models":   "resnet:1",
		"input_type":         "f64",
		"policy":             "default_output_policy",
		"default_output":     "7.0",
		"latency_slo_micros": "20000",
	})
}

func TestRegistrarInstallsOnHset(t *testing.T) {
	store := configstore.NewMemoryStore()
	require.NoError(t, store.Connect())

	seeder := &fakeSeeder{}
	http := &fakeHandlers{}
	zmq := &fakeHandlers{}
	r := New(store, seeder, http, zmq)
	r.Start()

	seedRecord(store, "alpha")

	assert.Equal(t, []string{"alpha"}, seeder.seeded)
	assert.Equal(t, []string{"alpha"}, http.installed)
	assert.Equal(t, []string{"alpha"}, zmq.installed)
	assert.Equal(t, 1, r.AppCount())
}

func TestRegistrarIgnoresRepeatHsetForSameApp(t *testing.T) {
	store := configstore.NewMemoryStore()
	require.NoError(t, store.Connect())

	seeder := &fakeSeeder{}
	http := &fakeHandlers{}
	r := New(store, seeder, http)
	r.Start()

	seedRecord(store, "alpha")
	seedRecord(store, "alpha")

	assert.Len(t, seeder.seeded, 1)
	assert.Len(t, http.installed, 1)
}

func TestRegistrarIgnoresHdel(t *testing.T) {
	store := configstore.NewMemoryStore()
	require.NoError(t, store.Connect())

	seeder := &fakeSeeder{}
	http := &fakeHandlers{}
	r := New(store, seeder, http)
	r.Start()

	seedRecord(store, "alpha")
	store.Delete("alpha")

	assert.Len(t, seeder.seeded, 1)
	assert.Equal(t, 1, r.AppCount())
}

func TestRegistrarRejectsMalformedRecord(t *testing.T) {
	store := configstore.NewMemoryStore()
	require.NoError(t, store.Connect())

	seeder := &fakeSeeder{}
	r := New(store, seeder)
	r.Start()

	store.Put("bad", map[string]string{"input_type": "not-a-type"})
	assert.Equal(t, 0, r.AppCount())
}
