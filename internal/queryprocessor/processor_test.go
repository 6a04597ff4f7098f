package queryprocessor

import (
	"context"
	"testing"
	"time"

	"github.com/clipper-go/predictserve/internal/metrics"
	"github.com/clipper-go/predictserve/internal/model"
	"github.com/clipper-go/predictserve/internal/modelclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModelClient struct {
	delay  time.Duration
	output float64
	err    error
}

func (f *fakeModelClient) Predict(ctx context.Context, target model.VersionedModelId, req modelclient.PredictRequest) (modelclient.PredictResponse, error) {
	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		return modelclient.PredictResponse{}, ctx.Err()
	}
	if f.err != nil {
		return modelclient.PredictResponse{}, f.err
	}
	return modelclient.PredictResponse{Output: f.output}, nil
}

func (f *fakeModelClient) Close() error { return nil }

func newTestApp() model.Application {
	return model.Application{
		Name:             "alpha",
		CandidateModels:  []model.VersionedModelId{{Name: "resnet", Version: "1"}},
		InputType:        model.InputTypeF64,
		Policy:           DefaultOutputPolicyName,
		DefaultOutput:    7.0,
		LatencySLOMicros: 20_000,
	}
}

func TestPredictHappyPathReturnsWorkerOutput(t *testing.T) {
	registry := metrics.New(0)
	defer registry.Stop()

	client := &fakeModelClient{delay: time.Millisecond, output: 42.0}
	p := New(client, registry)
	app := newTestApp()
	require.NoError(t, p.SeedState(app))

	query := model.Query{
		AppName:          app.Name,
		UserID:           "u1",
		Input:            model.InputTensor{Type: model.InputTypeF64, Doubles: []float64{1, 2, 3}},
		DeadlineUnixNano: time.Now().Add(20 * time.Millisecond).UnixNano(),
		Policy:           app.Policy,
		Candidates:       app.CandidateModels,
		Lineage:          model.NewLineage(),
	}

	future, err := p.Predict(context.Background(), query)
	require.NoError(t, err)

	resp := future.Wait()
	assert.Equal(t, 42.0, resp.Output)
	assert.False(t, resp.UsedDefault)
}

func TestPredictDeadlineMissReturnsDefault(t *testing.T) {
	registry := metrics.New(0)
	defer registry.Stop()

	client := &fakeModelClient{delay: 50 * time.Millisecond, output: 42.0}
	p := New(client, registry)
	app := newTestApp()
	require.NoError(t, p.SeedState(app))

	query := model.Query{
		AppName:          app.Name,
		UserID:           "u1",
		Input:            model.InputTensor{Type: model.InputTypeF64, Doubles: []float64{1, 2, 3}},
		DeadlineUnixNano: time.Now().Add(5 * time.Millisecond).UnixNano(),
		Policy:           app.Policy,
		Candidates:       app.CandidateModels,
		Lineage:          model.NewLineage(),
	}

	future, err := p.Predict(context.Background(), query)
	require.NoError(t, err)

	resp := future.Wait()
	assert.Equal(t, 7.0, resp.Output)
	assert.True(t, resp.UsedDefault)
}

func TestPredictNoCandidatesIsQueryProcessingError(t *testing.T) {
	registry := metrics.New(0)
	defer registry.Stop()

	p := New(&fakeModelClient{}, registry)
	app := newTestApp()
	require.NoError(t, p.SeedState(app))

	query := model.Query{
		AppName:          app.Name,
		UserID:           "u1",
		DeadlineUnixNano: time.Now().Add(time.Second).UnixNano(),
		Policy:           app.Policy,
		Candidates:       nil,
	}
	_, err := p.Predict(context.Background(), query)
	assert.Error(t, err)
}

func TestPredictUnknownPolicyIsQueryProcessingError(t *testing.T) {
	registry := metrics.New(0)
	defer registry.Stop()

	p := New(&fakeModelClient{}, registry)
	query := model.Query{
		AppName:          "alpha",
		Policy:           "nonexistent_policy",
		Candidates:       []model.VersionedModelId{{Name: "resnet", Version: "1"}},
		DeadlineUnixNano: time.Now().Add(time.Second).UnixNano(),
	}
	_, err := p.Predict(context.Background(), query)
	assert.Error(t, err)
}

func TestUpdateAcknowledgesFeedback(t *testing.T) {
	registry := metrics.New(0)
	defer registry.Stop()

	p := New(&fakeModelClient{}, registry)
	app := newTestApp()
	require.NoError(t, p.SeedState(app))

	future, err := p.Update(context.Background(), model.FeedbackQuery{
		AppName:    app.Name,
		UserID:     "u1",
		Feedback:   model.Feedback{Label: 1.0},
		Policy:     app.Policy,
		Candidates: app.CandidateModels,
	})
	require.NoError(t, err)
	assert.Equal(t, model.FeedbackAck(true), future.Wait())
}

func TestStateTableGetDuringConcurrentUpdate(t *testing.T) {
	table := NewStateTable()
	key := model.StateKey{AppName: "alpha", UserID: "", Version: "0"}
	table.Put(key, defaultOutputState{defaultOutput: 1.0})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			table.Update(key, func(current PolicyState) PolicyState { return current })
		}
		close(done)
	}()
	for i := 0; i < 1000; i++ {
		_, _ = table.Get(key)
	}
	<-done
	assert.Equal(t, 1, table.Len())
}
