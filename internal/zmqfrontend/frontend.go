// Package zmqfrontend is the ZMQ Frontend from spec.md §4.5: two
// ROUTER sockets, a receive thread performing poll+recv, and a send
// thread handling handshakes and draining the response queue. There is
// no ZMQ binding anywhere in the example pack — the teacher and every
// other repo speak HTTP or gRPC — so github.com/pebbe/zmq4 is adopted
// as a named, ungrounded dependency because spec.md makes the ZMQ
// transport a first-class, non-optional component (see DESIGN.md).
// Everything around the socket calls (the arena, routing map, response
// queue, dispatch map) follows the pack's own concurrency idioms.
package zmqfrontend

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	zerrors "github.com/clipper-go/predictserve/internal/errors"
	"github.com/clipper-go/predictserve/internal/logging"
	"github.com/clipper-go/predictserve/internal/metrics"
	"github.com/clipper-go/predictserve/internal/model"
	"github.com/clipper-go/predictserve/internal/queryprocessor"
	zmq "github.com/pebbe/zmq4"
)

var component = logging.Component("ZMQFRONTEND")

const (
	requestsPerRecvIteration  = 100
	responsesPerSendIteration = 1000
	pollTimeout               = 100 * time.Millisecond
	reaperInterval            = 30 * time.Second
)

// clientLastSeen is one idle-client reaper observation: routing entries
// are never deleted (spec.md §3's "never overwritten... until the
// transport signals loss"), so this is additive instrumentation, not an
// eviction record.
type clientLastSeen struct {
	ClientID       uint64 `json:"client_id"`
	LastSeenMillis int64  `json:"last_seen_unix_millis"`
}

// DispatchRequest is the tuple passed to an installed application's
// dispatch function, per spec.md §4.5's "Per-application dispatch
// function" paragraph: (input, request_id, client_id, lineage,
// deadline).
type DispatchRequest struct {
	AppName          string
	Input            model.InputTensor
	RequestID        uint32
	ClientID         uint64
	Lineage          *model.Lineage
	DeadlineUnixNano int64
}

// Frontend owns both ROUTER sockets, the arena, routing map, response
// queue and the per-application dispatch table.
type Frontend struct {
	sendAddr string
	recvAddr string

	arena    *Arena
	routing  *RoutingMap
	queue    *ResponseQueue
	registry *metrics.Registry

	processor *queryprocessor.Processor

	appFnMu sync.RWMutex
	appFns  map[string]model.Application

	recvSocket *zmq.Socket
	sendSocket *zmq.Socket

	stop chan struct{}
	wg   sync.WaitGroup

	// inFlightSem bounds concurrently dispatched requests to
	// internal/config's zmq_max_in_flight, the ZMQ-path equivalent of the
	// HTTP frontend's concurrencyLimitMiddleware semaphore.
	inFlightSem chan struct{}

	arenaExhaustedMeter    *metrics.Meter
	unknownAppMeter        *metrics.Meter
	requestRecvMeter       *metrics.Meter
	responseEnqueueMeter   *metrics.Meter
	responseDequeueMeter   *metrics.Meter
	inputTypeMismatchMeter *metrics.Meter
	inFlightRejectedMeter  *metrics.Meter

	// lastSeenList backs the idle-client reaper's operational-visibility
	// report: one clientLastSeen observation per routing entry, appended
	// every reaperInterval.
	lastSeenList *metrics.DataList
}

// New constructs a Frontend bound to the given addresses. Bind is not
// called until Start. maxInFlight and responseQueueSoftCap back
// internal/config's zmq_max_in_flight and zmq_response_queue_capacity;
// passing 0 for either falls back to spec.md §3's defaults.
func New(recvAddr, sendAddr string, arenaSizeBytes int, maxInFlight int, responseQueueSoftCap int, processor *queryprocessor.Processor, registry *metrics.Registry) *Frontend {
	if maxInFlight <= 0 {
		maxInFlight = DefaultResponseQueueSoftCap
	}
	return &Frontend{
		sendAddr:               sendAddr,
		recvAddr:               recvAddr,
		arena:                  NewArena(arenaSizeBytes),
		routing:                NewRoutingMap(),
		queue:                  NewResponseQueueWithSoftCap(responseQueueSoftCap),
		registry:               registry,
		processor:              processor,
		appFns:                 make(map[string]model.Application),
		stop:                   make(chan struct{}),
		inFlightSem:            make(chan struct{}, maxInFlight),
		arenaExhaustedMeter:    registry.CreateMeter("zmqfrontend.arena_exhausted.rate"),
		unknownAppMeter:        registry.CreateMeter("zmqfrontend.unknown_application.rate"),
		requestRecvMeter:       registry.CreateMeter("zmqfrontend.request_enqueue.rate"),
		responseEnqueueMeter:   registry.CreateMeter("zmqfrontend.response_enqueue.rate"),
		responseDequeueMeter:   registry.CreateMeter("zmqfrontend.response_dequeue.rate"),
		inputTypeMismatchMeter: registry.CreateMeter("zmqfrontend.input_type_mismatch.rate"),
		inFlightRejectedMeter:  registry.CreateMeter("zmqfrontend.in_flight_rejected.rate"),
		lastSeenList:           registry.CreateDataList("zmqfrontend.client_last_seen"),
	}
}

// InstallApplication registers app so incoming requests naming it are
// dispatched to the query processor. Satisfies registrar.Handlers.
func (f *Frontend) InstallApplication(app model.Application) error {
	f.appFnMu.Lock()
	defer f.appFnMu.Unlock()
	f.appFns[app.Name] = app
	return nil
}

func (f *Frontend) lookupApplication(name string) (model.Application, bool) {
	f.appFnMu.RLock()
	defer f.appFnMu.RUnlock()
	app, ok := f.appFns[name]
	return app, ok
}

// Start binds both ROUTER sockets and launches the receive and send
// threads. A bind failure is fatal to the process, per spec.md §6/§7.
func (f *Frontend) Start() error {
	recvSocket, err := zmq.NewSocket(zmq.ROUTER)
	if err != nil {
		return fmt.Errorf("creating ZMQ receive socket: %w", err)
	}
	if err := recvSocket.Bind(f.recvAddr); err != nil {
		return fmt.Errorf("binding ZMQ receive socket to %s: %w", f.recvAddr, err)
	}
	f.recvSocket = recvSocket

	sendSocket, err := zmq.NewSocket(zmq.ROUTER)
	if err != nil {
		return fmt.Errorf("creating ZMQ send socket: %w", err)
	}
	if err := sendSocket.Bind(f.sendAddr); err != nil {
		return fmt.Errorf("binding ZMQ send socket to %s: %w", f.sendAddr, err)
	}
	f.sendSocket = sendSocket

	f.wg.Add(3)
	go f.runRecvThread()
	go f.runSendThread()
	go f.runReaperThread()

	component.Info(fmt.Sprintf("ZMQ frontend listening: recv=%s send=%s", f.recvAddr, f.sendAddr))
	return nil
}

// Stop cooperatively cancels both threads, waits for them to exit their
// poll loops, closes sockets, and clears the routing map, per spec.md
// §4.5's shutdown paragraph.
func (f *Frontend) Stop() {
	close(f.stop)
	f.queue.Close()
	f.wg.Wait()

	if f.recvSocket != nil {
		f.recvSocket.Close()
	}
	if f.sendSocket != nil {
		f.sendSocket.Close()
	}
	f.routing = NewRoutingMap()
}

func (f *Frontend) runRecvThread() {
	defer f.wg.Done()
	poller := zmq.NewPoller()
	poller.Add(f.recvSocket, zmq.POLLIN)

	for {
		select {
		case <-f.stop:
			return
		default:
		}

		sockets, err := poller.Poll(pollTimeout)
		if err != nil {
			component.Error("ZMQ receive poll failed", err)
			continue
		}
		if len(sockets) == 0 {
			continue
		}

		for i := 0; i < requestsPerRecvIteration; i++ {
			frames, err := f.recvSocket.RecvMessageBytes(zmq.DONTWAIT)
			if err != nil {
				break
			}
			f.handleIncoming(frames)
		}
	}
}

// handleIncoming processes one ZMQ multipart message: identity frame,
// empty delimiter, payload — per spec.md §4.5's request layout. A
// zero-length payload is the handshake protocol's client-id request.
func (f *Frontend) handleIncoming(frames [][]byte) {
	if len(frames) < 2 {
		return
	}
	identity := frames[0]
	payload := frames[len(frames)-1]

	if len(payload) == 0 {
		clientID := f.routing.Assign(identity)
		f.enqueueHandshakeAck(clientID)
		return
	}

	f.requestRecvMeter.Mark(1)

	decoded, err := decodeRequest(payload)
	if err != nil {
		component.Error("dropping malformed ZMQ request", err)
		return
	}

	app, ok := f.lookupApplication(decoded.AppName)
	if !ok {
		f.unknownAppMeter.Mark(1)
		component.Error("dropping request", &zerrors.UnknownApplicationError{AppName: decoded.AppName})
		return
	}

	// spec.md §3: "the element type must match the target application's
	// input_type; mismatches are rejected at parse time." The HTTP path
	// enforces this by decoding directly as app.InputType; the ZMQ path
	// carries an explicit wire type code, so it is cross-checked here
	// instead of trusted.
	expectedCode, err := typeCodeOf(app.InputType)
	if err != nil {
		component.Error(fmt.Sprintf("application %q has an unrecognized configured input type", decoded.AppName), err)
		return
	}
	if decoded.TypeCode != expectedCode {
		f.inputTypeMismatchMeter.Mark(1)
		component.Error("dropping request", &zerrors.JSONError{
			Cause: fmt.Sprintf("wire type code %d does not match %q's configured input_type", decoded.TypeCode, decoded.AppName),
		})
		return
	}

	reserved, offset, err := f.arena.Reserve(len(decoded.InputBytes))
	if err != nil {
		f.arenaExhaustedMeter.Mark(1)
		component.Error("dropping request", &zerrors.ArenaExhaustedError{RequestedBytes: len(decoded.InputBytes)})
		return
	}
	copy(reserved, decoded.InputBytes)

	input, err := decodeInputTensor(decodedRequest{
		TypeCode:   decoded.TypeCode,
		ElemCount:  decoded.ElemCount,
		InputBytes: f.arena.At(offset, len(decoded.InputBytes)),
	})
	if err != nil {
		component.Error("dropping request with unrecognized input encoding", err)
		return
	}

	select {
	case f.inFlightSem <- struct{}{}:
	default:
		f.inFlightRejectedMeter.Mark(1)
		component.Error(fmt.Sprintf("dropping request for %q, zmq_max_in_flight exceeded", decoded.AppName), nil)
		return
	}

	f.dispatch(app, DispatchRequest{
		AppName:          decoded.AppName,
		Input:            input,
		RequestID:        decoded.RequestID,
		ClientID:         decoded.ClientID,
		Lineage:          model.NewLineage(),
		DeadlineUnixNano: time.Now().Add(time.Duration(app.LatencySLOMicros) * time.Microsecond).UnixNano(),
	})
}

// dispatch is the per-application function spec.md §4.5 describes:
// it calls the query processor and enqueues the resulting response.
func (f *Frontend) dispatch(app model.Application, req DispatchRequest) {
	uidPlaceholder := fmt.Sprintf("zmq-client-%d", req.ClientID)
	query := model.Query{
		AppName:          req.AppName,
		UserID:           uidPlaceholder,
		Input:            req.Input,
		DeadlineUnixNano: req.DeadlineUnixNano,
		Policy:           app.Policy,
		Candidates:       app.CandidateModels,
		Lineage:          req.Lineage,
	}

	future, err := f.processor.Predict(context.Background(), query)
	if err != nil {
		<-f.inFlightSem
		component.Error(fmt.Sprintf("query processing error for %q", req.AppName), err)
		return
	}

	future.Then(func(resp model.Response) {
		defer func() { <-f.inFlightSem }()

		typeCode, outputBytes := encodeOutputValue(resp.Output)
		lineageJSON, _ := json.Marshal(resp.Lineage.Snapshot())

		overSoftCap := f.queue.Enqueue(PendingResponse{
			ClientID:    req.ClientID,
			RequestID:   req.RequestID,
			Output:      outputBytes,
			OutputTag:   typeCode,
			LineageJSON: lineageJSON,
		})
		f.responseEnqueueMeter.Mark(1)
		if overSoftCap {
			component.Info(fmt.Sprintf("response queue over soft cap for client %d", req.ClientID))
		}
	})
}

func (f *Frontend) enqueueHandshakeAck(clientID uint64) {
	f.queue.Enqueue(PendingResponse{
		ClientID:  clientID,
		RequestID: 0,
		Output:    nil,
		OutputTag: handshakeAckTag,
	})
	f.responseEnqueueMeter.Mark(1)
}

const handshakeAckTag byte = 0xff

// runReaperThread periodically appends every routing entry's current
// last-seen timestamp to lastSeenList. It never deletes a routing entry:
// spec.md §3 requires entries stay routable "until the transport signals
// loss", so this is observability only.
func (f *Frontend) runReaperThread() {
	defer f.wg.Done()
	ticker := time.NewTicker(reaperInterval)
	defer ticker.Stop()
	for {
		select {
		case <-f.stop:
			return
		case <-ticker.C:
			for clientID, lastSeen := range f.routing.LastSeenSnapshot() {
				f.lastSeenList.Append(clientLastSeen{
					ClientID:       clientID,
					LastSeenMillis: lastSeen.UnixMilli(),
				})
			}
		}
	}
}

func (f *Frontend) runSendThread() {
	defer f.wg.Done()
	for {
		select {
		case <-f.stop:
			return
		default:
		}

		batch := f.queue.DrainUpTo(responsesPerSendIteration)
		for _, resp := range batch {
			f.responseDequeueMeter.Mark(1)
			identity, ok := f.routing.Lookup(resp.ClientID)
			if !ok {
				component.Error(fmt.Sprintf("no routing entry for client %d, dropping response", resp.ClientID), nil)
				continue
			}

			var body []byte
			if resp.OutputTag == handshakeAckTag {
				body = encodeHandshakeAck(resp.ClientID)
			} else {
				body = encodeResponse(resp.RequestID, resp.OutputTag, resp.Output, resp.LineageJSON)
			}

			if _, err := f.sendSocket.SendMessage(identity, "", body); err != nil {
				component.Error(fmt.Sprintf("failed to send response to client %d", resp.ClientID), err)
			}
		}
	}
}
