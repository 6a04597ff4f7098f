// Package httpfrontend is the HTTP Frontend from spec.md §4.4: a fixed
// GET /metrics endpoint plus per-application predict/update endpoints
// that become live once the Application Registrar installs them.
// Grounded on the gin.Engine wiring used across the rest of the
// example pack (e.g. interaction-store's internal/server/http), which
// the teacher itself doesn't use — the teacher only exposes gRPC.
package httpfrontend

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/clipper-go/predictserve/internal/errors"
	"github.com/clipper-go/predictserve/internal/logging"
	"github.com/clipper-go/predictserve/internal/metrics"
	"github.com/clipper-go/predictserve/internal/model"
	"github.com/clipper-go/predictserve/internal/queryprocessor"
	"github.com/gin-gonic/gin"
)

var component = logging.Component("HTTPFRONTEND")

// Router owns the gin engine and the concurrent map of installed
// applications. Rather than mutating gin's route tree at runtime — which
// gin does not guarantee is safe against concurrently in-flight lookups —
// two fixed wildcard routes are registered once at construction and
// dispatch checks the apps map on every request, matching S4's "endpoint
// does not exist until registered" via a 404 instead of a route miss.
type Router struct {
	engine    *gin.Engine
	registry  *metrics.Registry
	processor *queryprocessor.Processor

	apps sync.Map // string -> model.Application
}

// NewRouter builds the engine and registers its three endpoint families.
// concurrencyLimit bounds how many requests are processed at once,
// standing in for spec.md §5's configurable HTTP I/O pool; Go's
// goroutine-per-request model has no fixed thread pool to size, so this
// is enforced with a buffered-channel semaphore middleware instead of a
// literal pool size (see DESIGN.md).
func NewRouter(registry *metrics.Registry, processor *queryprocessor.Processor, concurrencyLimit int) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	if concurrencyLimit > 0 {
		engine.Use(concurrencyLimitMiddleware(concurrencyLimit))
	}

	r := &Router{engine: engine, registry: registry, processor: processor}

	engine.GET("/metrics", r.handleMetrics)
	engine.POST("/:app/predict", r.handlePredict)
	engine.POST("/:app/update", r.handleUpdate)

	return r
}

// Engine exposes the underlying gin engine for the entrypoint to serve.
func (r *Router) Engine() *gin.Engine { return r.engine }

// InstallApplication makes /<app>/predict and /<app>/update start
// accepting requests. Idempotent: the registrar itself guards against
// re-installation, but a redundant call is harmless (last write wins in
// the map, and the value is identical for a given name within a process
// lifetime per spec.md's append-only registration model).
func (r *Router) InstallApplication(app model.Application) error {
	r.apps.Store(app.Name, app)
	return nil
}

func concurrencyLimitMiddleware(limit int) gin.HandlerFunc {
	sem := make(chan struct{}, limit)
	return func(c *gin.Context) {
		sem <- struct{}{}
		defer func() { <-sem }()
		c.Next()
	}
}

func (r *Router) handleMetrics(c *gin.Context) {
	body, err := r.registry.ReportMetrics(false)
	if err != nil {
		component.Error("failed to render metrics report", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "metrics report failed", "cause": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json", []byte(body))
}

type predictRequestBody struct {
	UID   string          `json:"uid"`
	Input json.RawMessage `json:"input"`
}

type predictResponseBody struct {
	QueryID uint64  `json:"query_id"`
	Output  float64 `json:"output"`
	Default bool    `json:"default"`
}

func (r *Router) handlePredict(c *gin.Context) {
	appName := c.Param("app")
	appVal, ok := r.apps.Load(appName)
	if !ok {
		writeUnknownApplicationError(c, &errors.UnknownApplicationError{AppName: appName})
		return
	}
	app := appVal.(model.Application)

	var body predictRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeJSONError(c, &errors.JSONError{Cause: err.Error()})
		return
	}

	input, err := decodeInput(app.InputType, body.Input)
	if err != nil {
		writeJSONError(c, &errors.JSONError{Cause: err.Error()})
		return
	}

	query := model.Query{
		AppName:          app.Name,
		UserID:           body.UID,
		Input:            input,
		DeadlineUnixNano: time.Now().Add(time.Duration(app.LatencySLOMicros) * time.Microsecond).UnixNano(),
		Policy:           app.Policy,
		Candidates:       app.CandidateModels,
		Lineage:          model.NewLineage(),
	}

	future, err := r.processor.Predict(c.Request.Context(), query)
	if err != nil {
		writeQueryProcessingError(c, err)
		return
	}

	// The handler goroutine parks on respCh rather than the underlying
	// OS thread: attaching a continuation and waiting on its result is
	// the Go-idiomatic equivalent of spec.md §4.4's "attach a
	// continuation that writes the response... never block handler
	// threads" — a parked goroutine releases its OS thread back to the
	// scheduler, unlike a blocked thread in a fixed-size pool.
	respCh := make(chan model.Response, 1)
	future.Then(func(resp model.Response) { respCh <- resp })
	resp := <-respCh

	c.JSON(http.StatusOK, predictResponseBody{
		QueryID: resp.QueryID,
		Output:  resp.Output,
		Default: resp.UsedDefault,
	})
}

type updateRequestBody struct {
	UID   string          `json:"uid"`
	Input json.RawMessage `json:"input"`
	Label float64         `json:"label"`
}

func (r *Router) handleUpdate(c *gin.Context) {
	appName := c.Param("app")
	appVal, ok := r.apps.Load(appName)
	if !ok {
		writeUnknownApplicationError(c, &errors.UnknownApplicationError{AppName: appName})
		return
	}
	app := appVal.(model.Application)

	var body updateRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeJSONError(c, &errors.JSONError{Cause: err.Error()})
		return
	}

	input, err := decodeInput(app.InputType, body.Input)
	if err != nil {
		writeJSONError(c, &errors.JSONError{Cause: err.Error()})
		return
	}

	future, err := r.processor.Update(c.Request.Context(), model.FeedbackQuery{
		AppName:    app.Name,
		UserID:     body.UID,
		Feedback:   model.Feedback{Input: input, Label: body.Label},
		Policy:     app.Policy,
		Candidates: app.CandidateModels,
	})
	if err != nil {
		writeQueryProcessingError(c, err)
		return
	}

	ackCh := make(chan model.FeedbackAck, 1)
	future.Then(func(ack model.FeedbackAck) { ackCh <- ack })
	ack := <-ackCh

	c.String(http.StatusOK, "Feedback received? %v", bool(ack))
}

func writeQueryProcessingError(c *gin.Context, err error) {
	if qpErr, ok := err.(*errors.QueryProcessingError); ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query processing error", "cause": qpErr.Cause})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "cause": err.Error()})
}

// writeJSONError reports spec.md §7's "Json error" outcome for both
// parse failures and schema/type mismatches, per errors.JSONError's doc.
func writeJSONError(c *gin.Context, jsonErr *errors.JSONError) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "Json error", "cause": jsonErr.Cause})
}

// writeUnknownApplicationError reports the 404 outcome S4 describes for
// a request naming an application that has never been registered.
func writeUnknownApplicationError(c *gin.Context, appErr *errors.UnknownApplicationError) {
	c.JSON(http.StatusNotFound, gin.H{"error": "Unknown application", "cause": appErr.AppName})
}

func decodeInput(inputType model.InputType, raw json.RawMessage) (model.InputTensor, error) {
	switch inputType {
	case model.InputTypeF64:
		var vals []float64
		if err := json.Unmarshal(raw, &vals); err != nil {
			return model.InputTensor{}, fmt.Errorf("expected an array of f64: %w", err)
		}
		return model.InputTensor{Type: inputType, Doubles: vals}, nil
	case model.InputTypeF32:
		var vals []float32
		if err := json.Unmarshal(raw, &vals); err != nil {
			return model.InputTensor{}, fmt.Errorf("expected an array of f32: %w", err)
		}
		return model.InputTensor{Type: inputType, Floats: vals}, nil
	case model.InputTypeI32:
		var vals []int32
		if err := json.Unmarshal(raw, &vals); err != nil {
			return model.InputTensor{}, fmt.Errorf("expected an array of i32: %w", err)
		}
		return model.InputTensor{Type: inputType, Ints: vals}, nil
	case model.InputTypeString:
		var vals []string
		if err := json.Unmarshal(raw, &vals); err != nil {
			return model.InputTensor{}, fmt.Errorf("expected an array of strings: %w", err)
		}
		return model.InputTensor{Type: inputType, Strings: vals}, nil
	case model.InputTypeByte:
		var vals []byte
		if err := json.Unmarshal(raw, &vals); err != nil {
			return model.InputTensor{}, fmt.Errorf("expected a base64-encoded byte array: %w", err)
		}
		return model.InputTensor{Type: inputType, Bytes: vals}, nil
	default:
		return model.InputTensor{}, fmt.Errorf("unrecognized input type %q", inputType)
	}
}
