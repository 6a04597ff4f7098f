package httpfrontend

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/clipper-go/predictserve/internal/metrics"
	"github.com/clipper-go/predictserve/internal/model"
	"github.com/clipper-go/predictserve/internal/modelclient"
	"github.com/clipper-go/predictserve/internal/queryprocessor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModelClient struct {
	delay  time.Duration
	output float64
}

func (f *fakeModelClient) Predict(ctx context.Context, target model.VersionedModelId, req modelclient.PredictRequest) (modelclient.PredictResponse, error) {
	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		return modelclient.PredictResponse{}, ctx.Err()
	}
	return modelclient.PredictResponse{Output: f.output}, nil
}

func (f *fakeModelClient) Close() error { return nil }

func newTestRouter(t *testing.T, delay time.Duration) (*Router, *metrics.Registry) {
	t.Helper()
	registry := metrics.New(0)
	client := &fakeModelClient{delay: delay, output: 42.0}
	proc := queryprocessor.New(client, registry)

	app := model.Application{
		Name:             "alpha",
		CandidateModels:  []model.VersionedModelId{{Name: "resnet", Version: "1"}},
		InputType:        model.InputTypeF64,
		Policy:           queryprocessor.DefaultOutputPolicyName,
		DefaultOutput:    7.0,
		LatencySLOMicros: 20_000,
	}
	require.NoError(t, proc.SeedState(app))

	router := NewRouter(registry, proc, 8)
	require.NoError(t, router.InstallApplication(app))
	return router, registry
}

func TestPredictHappyPath(t *testing.T) {
	router, registry := newTestRouter(t, time.Millisecond)
	defer registry.Stop()

	body := bytes.NewBufferString(`{"uid":"u1","input":[1.0,2.0,3.0]}`)
	req := httptest.NewRequest(http.MethodPost, "/alpha/predict", body)
	rec := httptest.NewRecorder()
	router.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp predictResponseBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 42.0, resp.Output)
	assert.False(t, resp.Default)
}

func TestPredictDeadlineMiss(t *testing.T) {
	router, registry := newTestRouter(t, 50*time.Millisecond)
	defer registry.Stop()

	body := bytes.NewBufferString(`{"uid":"u1","input":[1.0,2.0,3.0]}`)
	req := httptest.NewRequest(http.MethodPost, "/alpha/predict", body)
	rec := httptest.NewRecorder()
	router.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp predictResponseBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 7.0, resp.Output)
	assert.True(t, resp.Default)
}

func TestPredictJSONSchemaViolation(t *testing.T) {
	router, registry := newTestRouter(t, time.Millisecond)
	defer registry.Stop()

	body := bytes.NewBufferString(`{"uid":"u1","input":["abc"]}`)
	req := httptest.NewRequest(http.MethodPost, "/alpha/predict", body)
	rec := httptest.NewRecorder()
	router.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Json error", resp["error"])
	assert.NotEmpty(t, resp["cause"])
}

func TestPredictUnknownApplication(t *testing.T) {
	router, registry := newTestRouter(t, time.Millisecond)
	defer registry.Stop()

	body := bytes.NewBufferString(`{"uid":"u1","input":[1.0]}`)
	req := httptest.NewRequest(http.MethodPost, "/beta/predict", body)
	rec := httptest.NewRecorder()
	router.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateHappyPath(t *testing.T) {
	router, registry := newTestRouter(t, time.Millisecond)
	defer registry.Stop()

	body := bytes.NewBufferString(`{"uid":"u1","input":[1.0],"label":1.0}`)
	req := httptest.NewRequest(http.MethodPost, "/alpha/update", body)
	rec := httptest.NewRecorder()
	router.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Feedback received? true")
}

func TestMetricsEndpointReturnsReport(t *testing.T) {
	router, registry := newTestRouter(t, time.Millisecond)
	defer registry.Stop()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var report metrics.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
}
