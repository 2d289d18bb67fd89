package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/stocky-app/stocky-core/internal/connection"
	"github.com/stocky-app/stocky-core/internal/events"
	"github.com/stocky-app/stocky-core/internal/protocol"
	"github.com/stocky-app/stocky-core/internal/resolver"
	"github.com/stocky-app/stocky-core/internal/scanner"
)

// --- fakes ---

type fakeResolver struct {
	mu      sync.Mutex
	queries []resolver.Query
	err     error
}

func (r *fakeResolver) Resolve(_ context.Context, q resolver.Query) (resolver.Resolution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, q)
	if r.err != nil {
		return resolver.Resolution{}, r.err
	}
	return resolver.Resolution{
		Found:            true,
		Item:             &resolver.Item{ID: 1, Name: "Penne", UPC: q.Code},
		SuggestedActions: []string{resolver.ModeAction(q.Mode)},
	}, nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (e *recordingEmitter) Emit(ev events.Event) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return true
}

func (e *recordingEmitter) ofType(typ string) []events.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []events.Event
	for _, ev := range e.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []string
	closed bool
}

func (s *fakeSender) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return connection.ErrClosed
	}
	s.sent = append(s.sent, string(data))
	return nil
}

func (s *fakeSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSender) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

// conflictingRegistry loses every compare-and-swap.
type conflictingRegistry struct {
	*scanner.Registry
	attempts int
}

func (r *conflictingRegistry) CompareAndUpdate(_ context.Context, id string, expected uint64, _ scanner.Mutator) (scanner.State, error) {
	r.attempts++
	return scanner.State{}, &scanner.ConflictError{DeviceID: id, Expected: expected, Actual: expected + 1}
}

type harness struct {
	reg      *scanner.Registry
	conns    *connection.Manager
	resolver *fakeResolver
	emitter  *recordingEmitter
	coord    *Coordinator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		reg:      scanner.NewRegistry(nil),
		conns:    connection.NewManager(),
		resolver: &fakeResolver{},
		emitter:  &recordingEmitter{},
	}
	h.coord = New(h.reg, h.conns, h.resolver, h.emitter, Config{Markers: protocol.DefaultMarkers()})
	return h
}

func (h *harness) scan(t *testing.T, deviceID, raw string) *Result {
	t.Helper()
	res, err := h.coord.HandleScan(context.Background(), deviceID, raw)
	require.NoError(t, err)
	return res
}

func (h *harness) connect(t *testing.T, uiID string) *fakeSender {
	t.Helper()
	s := &fakeSender{}
	require.NoError(t, h.conns.Register(uiID, s))
	return s
}

// --- properties ---

func TestHandleScan_FirstScanCreatesDefaultState(t *testing.T) {
	h := newHarness(t)

	res := h.scan(t, "sk-new", "0123456789012")

	assert.Equal(t, OutcomeItemResolution, res.Outcome)
	assert.Equal(t, 1, h.reg.Count())
	st, err := h.reg.Get(context.Background(), "sk-new")
	require.NoError(t, err)
	assert.Equal(t, scanner.ModeAdd, st.Mode)
	assert.Nil(t, st.CurrentLocationID)
	assert.Nil(t, st.AssociatedUIID)
}

func TestHandleScan_WorkedExample(t *testing.T) {
	h := newHarness(t)
	ui7 := h.connect(t, "ui-7")
	other := h.connect(t, "ui-8")

	res := h.scan(t, "sk-abc", "LOC:pantry-1")
	assert.Equal(t, OutcomeStateUpdated, res.Outcome)
	assert.Equal(t, "pantry-1", res.State.LocationID())

	res = h.scan(t, "sk-abc", "0123456789012")
	assert.Equal(t, OutcomeItemResolution, res.Outcome)
	require.NotNil(t, res.Resolution)
	assert.True(t, res.Resolution.Found)
	require.Len(t, h.resolver.queries, 1)
	assert.Equal(t, resolver.Query{Code: "0123456789012", LocationID: "pantry-1", Mode: scanner.ModeAdd}, h.resolver.queries[0])
	assert.Empty(t, ui7.messages(), "barcodes never push to the UI")

	res = h.scan(t, "sk-abc", `{"command":"associate_ui","payload":"ui-7"}`)
	assert.Equal(t, OutcomeAssociationAck, res.Outcome)
	assert.Equal(t, "ui-7", res.UIInstanceID)
	assert.Equal(t, scanner.ModeAdd, res.State.Mode, "association leaves mode alone")
	assert.Equal(t, "pantry-1", res.State.LocationID(), "association leaves location alone")
	assert.Empty(t, ui7.messages(), "association does not push")

	res = h.scan(t, "sk-abc", `{"command":"show_view","payload":"log"}`)
	assert.Equal(t, OutcomeCommandDelivered, res.Outcome)
	assert.Equal(t, "ui-7", res.UIInstanceID)

	msgs := ui7.messages()
	require.Len(t, msgs, 1)
	assert.JSONEq(t, `{"action":"show_view","payload":"log"}`, msgs[0])
	assert.Empty(t, other.messages())
}

func TestHandleScan_ShowViewDoesNotChangeState(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "ui-7")
	before := h.scan(t, "sk-abc", `{"command":"associate_ui","payload":"ui-7"}`).State

	res := h.scan(t, "sk-abc", `{"command":"show_view","payload":"log"}`)
	assert.Equal(t, before, res.State)

	st, err := h.reg.Get(context.Background(), "sk-abc")
	require.NoError(t, err)
	assert.Equal(t, before.Version, st.Version)
}

func TestHandleScan_NotAssociated(t *testing.T) {
	h := newHarness(t)
	ui := h.connect(t, "ui-7")

	res := h.scan(t, "sk-abc", `{"command":"show_view","payload":"log"}`)
	assert.Equal(t, OutcomeNotAssociated, res.Outcome)
	assert.Empty(t, ui.messages())
	assert.Empty(t, h.emitter.ofType(events.TypeDeliveryAttempted))
}

func TestHandleScan_DisconnectedUI(t *testing.T) {
	h := newHarness(t)
	ui := h.connect(t, "ui-7")
	bound := h.scan(t, "sk-abc", `{"command":"associate_ui","payload":"ui-7"}`).State

	require.True(t, h.conns.Unregister("ui-7", ui))

	res := h.scan(t, "sk-abc", `{"command":"show_view","payload":"log"}`)
	assert.Equal(t, OutcomeNoSuchConnection, res.Outcome)

	st, err := h.reg.Get(context.Background(), "sk-abc")
	require.NoError(t, err)
	assert.Equal(t, bound, st, "stored state unaffected")

	deliveries := h.emitter.ofType(events.TypeDeliveryAttempted)
	require.Len(t, deliveries, 1)
	assert.Equal(t, string(OutcomeNoSuchConnection), deliveries[0].Outcome)
}

func TestHandleScan_ReconnectSupersedes(t *testing.T) {
	h := newHarness(t)
	old := h.connect(t, "ui-7")
	h.scan(t, "sk-abc", `{"command":"associate_ui","payload":"ui-7"}`)

	assert.Equal(t, OutcomeCommandDelivered, h.scan(t, "sk-abc", `{"command":"show_view","payload":"before"}`).Outcome)

	fresh := h.connect(t, "ui-7")
	assert.True(t, old.closed)

	assert.Equal(t, OutcomeCommandDelivered, h.scan(t, "sk-abc", `{"command":"show_view","payload":"after"}`).Outcome)

	require.Len(t, old.messages(), 1)
	assert.Contains(t, old.messages()[0], "before")
	require.Len(t, fresh.messages(), 1)
	assert.Contains(t, fresh.messages()[0], "after")
}

func TestHandleScan_SendFailed(t *testing.T) {
	h := newHarness(t)
	ui := h.connect(t, "ui-7")
	h.scan(t, "sk-abc", `{"command":"associate_ui","payload":"ui-7"}`)
	require.NoError(t, ui.Close())

	res := h.scan(t, "sk-abc", `{"command":"show_view","payload":"log"}`)
	assert.Equal(t, OutcomeSendFailed, res.Outcome)
	assert.False(t, h.conns.Connected("ui-7"), "failed sender is unregistered")

	res = h.scan(t, "sk-abc", `{"command":"show_view","payload":"log"}`)
	assert.Equal(t, OutcomeNoSuchConnection, res.Outcome)
}

func TestHandleScan_UnknownCommandLeavesStateUnchanged(t *testing.T) {
	h := newHarness(t)
	before := h.scan(t, "sk-abc", "LOC:pantry-1").State

	_, err := h.coord.HandleScan(context.Background(), "sk-abc", `{"command":"frobnicate"}`)
	require.ErrorIs(t, err, protocol.ErrUnknownCommand)

	st, err := h.reg.Get(context.Background(), "sk-abc")
	require.NoError(t, err)
	assert.Equal(t, before, st)

	rejected := h.emitter.ofType(events.TypeScanRejected)
	require.Len(t, rejected, 1)
	assert.Equal(t, "sk-abc", rejected[0].DeviceID)
}

func TestHandleScan_DecodeErrorCreatesNoState(t *testing.T) {
	h := newHarness(t)

	for _, raw := range []string{`{"command":"frobnicate"}`, "MODE:SIDEWAYS", ""} {
		_, err := h.coord.HandleScan(context.Background(), "sk-ghost", raw)
		var de *protocol.DecodeError
		require.ErrorAs(t, err, &de, raw)
	}
	assert.Zero(t, h.reg.Count())
}

func TestHandleScan_ConcurrentLocationScans(t *testing.T) {
	h := newHarness(t)
	h.scan(t, "sk-abc", "0123456789012")

	codes := []string{"LOC:pantry-1", "LOC:freezer-2"}
	var wg sync.WaitGroup
	start := make(chan struct{})
	for _, code := range codes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := h.coord.HandleScan(context.Background(), "sk-abc", code)
			assert.NoError(t, err)
		}()
	}
	close(start)
	wg.Wait()

	st, err := h.reg.Get(context.Background(), "sk-abc")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), st.Version, "both updates applied, none lost")
	assert.Contains(t, []string{"pantry-1", "freezer-2"}, st.LocationID())

	changes := h.emitter.ofType(events.TypeStateChanged)
	require.Len(t, changes, 2)
	assert.NotEqual(t, *changes[0].Version, *changes[1].Version)
}

func TestHandleScan_ConflictExhaustsRetries(t *testing.T) {
	reg := &conflictingRegistry{Registry: scanner.NewRegistry(nil)}
	c := New(reg, connection.NewManager(), &fakeResolver{}, nil, Config{CASRetries: 4})

	_, err := c.HandleScan(context.Background(), "sk-abc", "LOC:pantry-1")
	require.ErrorIs(t, err, scanner.ErrConflict)
	assert.Equal(t, 4, reg.attempts)
}

func TestHandleScan_ModeAndLocationCommands(t *testing.T) {
	h := newHarness(t)

	st := h.scan(t, "sk-abc", "MODE:REMOVE").State
	assert.Equal(t, scanner.ModeRemove, st.Mode)

	st = h.scan(t, "sk-abc", `{"command":"set_mode","payload":"lookup"}`).State
	assert.Equal(t, scanner.ModeLookup, st.Mode)

	st = h.scan(t, "sk-abc", `{"command":"set_location","payload":"garage"}`).State
	assert.Equal(t, "garage", st.LocationID())

	st = h.scan(t, "sk-abc", `{"command":"clear_location"}`).State
	assert.Nil(t, st.CurrentLocationID)

	h.scan(t, "sk-abc", "0123456789012")
	assert.Equal(t, scanner.ModeLookup, h.resolver.queries[0].Mode)
	assert.Empty(t, h.resolver.queries[0].LocationID)
}

func TestHandleScan_DisassociateCommand(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "ui-7")
	h.scan(t, "sk-abc", `{"command":"associate_ui","payload":"ui-7"}`)

	res := h.scan(t, "sk-abc", `{"command":"disassociate_ui"}`)
	assert.Equal(t, OutcomeStateUpdated, res.Outcome)
	assert.False(t, res.State.Bound())

	assert.Equal(t, OutcomeNotAssociated, h.scan(t, "sk-abc", `{"command":"show_view","payload":"log"}`).Outcome)
}

func TestHandleScan_TwoDevicesSameUI(t *testing.T) {
	h := newHarness(t)
	ui := h.connect(t, "ui-7")

	h.scan(t, "sk-a", `{"command":"associate_ui","payload":"ui-7"}`)
	h.scan(t, "sk-b", `{"command":"associate_ui","payload":"ui-7"}`)

	assert.Equal(t, OutcomeCommandDelivered, h.scan(t, "sk-a", `{"command":"show_view","payload":"a"}`).Outcome)
	assert.Equal(t, OutcomeCommandDelivered, h.scan(t, "sk-b", `{"command":"show_view","payload":"b"}`).Outcome)
	assert.Len(t, ui.messages(), 2)
}

func TestHandleScan_ResolverFailure(t *testing.T) {
	h := newHarness(t)
	before := h.scan(t, "sk-abc", "LOC:pantry-1").State
	h.resolver.err = errors.New("timeout")

	_, err := h.coord.HandleScan(context.Background(), "sk-abc", "0123456789012")
	assert.ErrorIs(t, err, ErrResolution)

	after, err := h.reg.Get(context.Background(), "sk-abc")
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, before.LastScanAt, after.LastScanAt)
	assert.Len(t, h.emitter.ofType(events.TypeScanAccepted), 1, "only the location scan was accepted")
}

func TestHandleScan_NoResolver(t *testing.T) {
	c := New(scanner.NewRegistry(nil), connection.NewManager(), nil, nil, Config{})
	_, err := c.HandleScan(context.Background(), "sk-abc", "0123456789012")
	assert.ErrorIs(t, err, ErrNoResolver)
}

func TestHandleScan_EmptyDeviceID(t *testing.T) {
	_, err := newHarness(t).coord.HandleScan(context.Background(), "", "123")
	assert.ErrorIs(t, err, scanner.ErrInvalidDeviceID)
}

func TestHandleScan_EmitsAcceptedEvents(t *testing.T) {
	h := newHarness(t)
	h.scan(t, "sk-abc", "LOC:pantry-1")
	h.scan(t, "sk-abc", "0123456789012")

	accepted := h.emitter.ofType(events.TypeScanAccepted)
	require.Len(t, accepted, 2)
	assert.Equal(t, string(OutcomeStateUpdated), accepted[0].Outcome)
	assert.Equal(t, string(OutcomeItemResolution), accepted[1].Outcome)
	require.NotNil(t, accepted[1].Version)
	assert.Equal(t, uint64(2), *accepted[1].Version)

	changed := h.emitter.ofType(events.TypeStateChanged)
	require.Len(t, changed, 1)
	assert.Equal(t, "set_location", changed[0].Outcome)
	assert.Equal(t, "pantry-1", changed[0].Details["location_id"])
}

func TestLookup(t *testing.T) {
	h := newHarness(t)

	res, err := h.coord.Lookup(context.Background(), "0123456789012")
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, []string{resolver.ActionDisplay}, res.SuggestedActions)
	assert.Equal(t, scanner.ModeLookup, h.resolver.queries[0].Mode)
	assert.Zero(t, h.reg.Count(), "manual lookup creates no state")
}

func TestDisassociate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.coord.Disassociate(ctx, "sk-unknown")
	assert.ErrorIs(t, err, scanner.ErrNotFound)

	bound := h.scan(t, "sk-abc", `{"command":"associate_ui","payload":"ui-7"}`).State
	st, err := h.coord.Disassociate(ctx, "sk-abc")
	require.NoError(t, err)
	assert.False(t, st.Bound())
	assert.Equal(t, bound.Version+1, st.Version)

	_, err = h.coord.Disassociate(ctx, "sk-abc")
	assert.ErrorIs(t, err, ErrNotAssociated)
	current, err := h.reg.Get(ctx, "sk-abc")
	require.NoError(t, err)
	assert.Equal(t, st.Version, current.Version, "unbound device is left alone")
}

func TestHandleScan_Telemetry(t *testing.T) {
	h := newHarness(t)
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	h.coord.SetTelemetry(tp, mp)

	h.scan(t, "sk-abc", "0123456789012")
	_, err := h.coord.HandleScan(context.Background(), "sk-abc", `{"command":"frobnicate"}`)
	require.Error(t, err)

	var names []string
	for _, s := range spans.Ended() {
		names = append(names, s.Name())
	}
	assert.Contains(t, names, "coordinator.HandleScan")
	assert.Contains(t, names, "coordinator.Resolve")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	outcomes := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "stocky.scanner.scans" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				v, _ := dp.Attributes.Value("outcome")
				outcomes[v.AsString()] = dp.Value
			}
		}
	}
	assert.Equal(t, map[string]int64{"item_resolution": 1, "rejected": 1}, outcomes)
}
