package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/stocky-app/stocky-core/internal/connection"
	"github.com/stocky-app/stocky-core/internal/events"
	"github.com/stocky-app/stocky-core/internal/infrastructure/logging"
	"github.com/stocky-app/stocky-core/internal/infrastructure/telemetry"
	"github.com/stocky-app/stocky-core/internal/protocol"
	"github.com/stocky-app/stocky-core/internal/resolver"
	"github.com/stocky-app/stocky-core/internal/scanner"
)

// DefaultCASRetries is the number of update attempts used when Config
// leaves CASRetries unset.
const DefaultCASRetries = 3

// Registry is the scanner state store.
type Registry interface {
	GetOrCreate(ctx context.Context, id string) (scanner.State, error)
	Get(ctx context.Context, id string) (scanner.State, error)
	CompareAndUpdate(ctx context.Context, id string, expectedVersion uint64, mutate scanner.Mutator) (scanner.State, error)
}

// Connections delivers push messages to UI instances.
type Connections interface {
	Send(uiID string, msg any) connection.Delivery
}

// ItemResolver resolves a barcode to an item.
type ItemResolver interface {
	Resolve(ctx context.Context, q resolver.Query) (resolver.Resolution, error)
}

// Emitter receives workflow events.
type Emitter interface {
	Emit(e events.Event) bool
}

// Logger defines the logging interface used by the Coordinator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopEmitter struct{}

func (noopEmitter) Emit(events.Event) bool { return true }

// Config tunes the Coordinator.
type Config struct {
	// CASRetries is the number of attempts for a conflicting update.
	CASRetries int
	Markers    protocol.Markers
}

// Coordinator runs the scan workflow. It holds no mutable state of its own
// and is safe for concurrent use.
type Coordinator struct {
	registry    Registry
	connections Connections
	resolver    ItemResolver
	emitter     Emitter
	logger      Logger

	casRetries int
	markers    protocol.Markers

	tracer       trace.Tracer
	scans        metric.Int64Counter
	scanDuration metric.Float64Histogram
	conflicts    metric.Int64Counter
}

// New creates a Coordinator. resolver and emitter may be nil.
func New(reg Registry, conns Connections, res ItemResolver, em Emitter, cfg Config) *Coordinator {
	if cfg.CASRetries <= 0 {
		cfg.CASRetries = DefaultCASRetries
	}
	if em == nil {
		em = noopEmitter{}
	}
	c := &Coordinator{
		registry:    reg,
		connections: conns,
		resolver:    res,
		emitter:     em,
		logger:      noopLogger{},
		casRetries:  cfg.CASRetries,
		markers:     cfg.Markers,
	}
	c.SetTelemetry(otel.GetTracerProvider(), otel.GetMeterProvider())
	return c
}

// SetLogger sets the logger for the coordinator.
func (c *Coordinator) SetLogger(logger Logger) {
	c.logger = logger
}

// SetTelemetry replaces the tracer and meter providers.
func (c *Coordinator) SetTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) {
	c.tracer = tp.Tracer(telemetry.InstrumentationName)
	meter := mp.Meter(telemetry.InstrumentationName)

	var err error
	if c.scans, err = meter.Int64Counter("stocky.scanner.scans",
		metric.WithDescription("Scans handled, by outcome"),
		metric.WithUnit("{scan}"),
	); err != nil {
		otel.Handle(err)
	}
	if c.scanDuration, err = meter.Float64Histogram("stocky.scanner.scan.duration",
		metric.WithDescription("Time to handle one scan"),
		metric.WithUnit("s"),
	); err != nil {
		otel.Handle(err)
	}
	if c.conflicts, err = meter.Int64Counter("stocky.scanner.cas_conflicts",
		metric.WithDescription("Version conflicts seen while updating scanner state"),
		metric.WithUnit("{conflict}"),
	); err != nil {
		otel.Handle(err)
	}
}

// HandleScan processes one raw scan from deviceID.
//
// A decode error is returned as a *protocol.DecodeError and leaves the
// registry untouched. Exhausted update retries return an error matching
// scanner.ErrConflict; the caller may resubmit. Delivery failures are
// outcomes, not errors.
func (c *Coordinator) HandleScan(ctx context.Context, deviceID, raw string) (*Result, error) {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "coordinator.HandleScan",
		trace.WithAttributes(attribute.String("scanner.device_id", logging.RedactKey(deviceID))),
	)
	defer span.End()

	res, err := c.handleScan(ctx, deviceID, raw)

	outcome := "error"
	switch {
	case err == nil:
		outcome = string(res.Outcome)
		span.SetAttributes(
			attribute.String("scanner.outcome", outcome),
			attribute.Int64("scanner.version", int64(res.State.Version)), //nolint:gosec // versions stay far below 2^63
		)
	case isDecodeError(err):
		outcome = "rejected"
		telemetry.RecordError(span, err)
	case errors.Is(err, scanner.ErrConflict):
		outcome = "conflict"
		telemetry.RecordError(span, err)
	default:
		telemetry.RecordError(span, err)
	}

	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	c.scans.Add(ctx, 1, attrs)
	c.scanDuration.Record(ctx, time.Since(start).Seconds(), attrs)

	return res, err
}

func (c *Coordinator) handleScan(ctx context.Context, deviceID, raw string) (*Result, error) {
	if deviceID == "" {
		return nil, scanner.ErrInvalidDeviceID
	}

	payload, err := protocol.Decode(raw)
	if err != nil {
		c.reject(deviceID, raw, err)
		return nil, err
	}

	// Marker barcodes are classified before any state exists so a bad
	// marker never creates or changes state.
	var class protocol.Classification
	if bc, ok := payload.(protocol.Barcode); ok {
		if class, err = c.markers.Classify(bc.Code); err != nil {
			c.reject(deviceID, raw, err)
			return nil, err
		}
	}

	st, err := c.registry.GetOrCreate(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("loading scanner state: %w", err)
	}

	var res *Result
	switch p := payload.(type) {
	case protocol.Barcode:
		res, err = c.handleBarcode(ctx, st, p, class)
	case protocol.Command:
		res, err = c.handleCommand(ctx, st, p)
	default:
		err = fmt.Errorf("unhandled payload type %T", payload)
	}
	if err != nil {
		return nil, err
	}

	c.emitter.Emit(events.Event{
		Type:         events.TypeScanAccepted,
		DeviceID:     deviceID,
		UIInstanceID: res.UIInstanceID,
		Outcome:      string(res.Outcome),
	}.WithVersion(res.State.Version))
	return res, nil
}

func (c *Coordinator) handleBarcode(ctx context.Context, st scanner.State, bc protocol.Barcode, class protocol.Classification) (*Result, error) {
	switch class.Kind {
	case protocol.BarcodeLocation:
		return c.transition(ctx, st, "set_location", scanner.SetLocation(class.LocationID))
	case protocol.BarcodeMode:
		return c.transition(ctx, st, "set_mode", scanner.SetMode(class.Mode))
	}

	if c.resolver == nil {
		return nil, ErrNoResolver
	}

	// Resolve first: a failed lookup rejects the scan and leaves the
	// state, including LastScanAt and Version, as it was.
	q := resolver.Query{Code: bc.Code, LocationID: st.LocationID(), Mode: st.Mode}
	resolution, err := c.resolve(ctx, q)
	if err != nil {
		return nil, err
	}

	next, err := c.update(ctx, st, scanner.Touch())
	if err != nil {
		return nil, err
	}

	return &Result{
		Outcome:    OutcomeItemResolution,
		DeviceID:   next.DeviceID,
		State:      next,
		Resolution: &resolution,
	}, nil
}

func (c *Coordinator) resolve(ctx context.Context, q resolver.Query) (resolver.Resolution, error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.Resolve",
		trace.WithAttributes(
			attribute.String("scanner.mode", string(q.Mode)),
			attribute.Bool("scanner.has_location", q.LocationID != ""),
		),
	)
	defer span.End()

	resolution, err := c.resolver.Resolve(ctx, q)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrResolution, err)
		telemetry.RecordError(span, err)
		return resolver.Resolution{}, err
	}
	span.SetAttributes(attribute.Bool("item.found", resolution.Found))
	return resolution, nil
}

func (c *Coordinator) handleCommand(ctx context.Context, st scanner.State, cmd protocol.Command) (*Result, error) {
	switch cmd.Name {
	case protocol.CommandAssociateUI:
		res, err := c.transition(ctx, st, string(cmd.Name), scanner.AssociateUI(cmd.Argument))
		if err != nil {
			return nil, err
		}
		res.Outcome = OutcomeAssociationAck
		res.UIInstanceID = cmd.Argument
		c.logger.Info("scanner associated", "device_id", logging.RedactKey(st.DeviceID), "ui_instance_id", cmd.Argument)
		return res, nil

	case protocol.CommandDisassociateUI:
		return c.transition(ctx, st, string(cmd.Name), scanner.DisassociateUI())

	case protocol.CommandSetMode:
		mode, err := scanner.ParseMode(cmd.Argument)
		if err != nil {
			return nil, err
		}
		return c.transition(ctx, st, string(cmd.Name), scanner.SetMode(mode))

	case protocol.CommandSetLocation:
		return c.transition(ctx, st, string(cmd.Name), scanner.SetLocation(cmd.Argument))

	case protocol.CommandClearLocation:
		return c.transition(ctx, st, string(cmd.Name), scanner.ClearLocation())

	case protocol.CommandShowView:
		return c.forward(ctx, st, cmd), nil
	}
	return nil, fmt.Errorf("%w: %q", protocol.ErrUnknownCommand, cmd.Name)
}

// forward pushes cmd to the device's bound UI. It never mutates state.
func (c *Coordinator) forward(ctx context.Context, st scanner.State, cmd protocol.Command) *Result {
	res := &Result{DeviceID: st.DeviceID, State: st, Action: string(cmd.Name)}

	if !st.Bound() {
		c.logger.Info("command from unassociated scanner ignored",
			"device_id", logging.RedactKey(st.DeviceID),
			"action", cmd.Name,
		)
		res.Outcome = OutcomeNotAssociated
		return res
	}

	uiID := st.UIInstanceID()
	res.UIInstanceID = uiID

	_, span := c.tracer.Start(ctx, "coordinator.Deliver",
		trace.WithAttributes(
			attribute.String("ui.instance_id", uiID),
			attribute.String("ui.action", string(cmd.Name)),
		),
	)
	delivery := c.connections.Send(uiID, protocol.NewPushMessage(cmd))
	span.SetAttributes(attribute.String("ui.delivery", delivery.String()))
	span.End()

	switch delivery {
	case connection.Delivered:
		res.Outcome = OutcomeCommandDelivered
	case connection.NoSuchConnection:
		res.Outcome = OutcomeNoSuchConnection
		c.logger.Info("bound ui not connected", "device_id", logging.RedactKey(st.DeviceID), "ui_instance_id", uiID)
	default:
		res.Outcome = OutcomeSendFailed
		c.logger.Warn("push to bound ui failed", "device_id", logging.RedactKey(st.DeviceID), "ui_instance_id", uiID)
	}

	c.emitter.Emit(events.Event{
		Type:         events.TypeDeliveryAttempted,
		DeviceID:     st.DeviceID,
		UIInstanceID: uiID,
		Outcome:      string(res.Outcome),
		Details:      map[string]any{"action": string(cmd.Name), "payload": cmd.Argument},
	})
	return res
}

// transition commits mutate and reports OutcomeStateUpdated.
func (c *Coordinator) transition(ctx context.Context, st scanner.State, name string, mutate scanner.Mutator) (*Result, error) {
	next, err := c.update(ctx, st, mutate)
	if err != nil {
		return nil, err
	}
	c.emitter.Emit(events.Event{
		Type:         events.TypeStateChanged,
		DeviceID:     next.DeviceID,
		UIInstanceID: next.UIInstanceID(),
		Outcome:      name,
		Details:      stateDetails(next),
	}.WithVersion(next.Version))

	return &Result{Outcome: OutcomeStateUpdated, DeviceID: next.DeviceID, State: next}, nil
}

// update applies mutate with compare-and-swap, re-reading and retrying on
// conflict up to casRetries attempts.
func (c *Coordinator) update(ctx context.Context, st scanner.State, mutate scanner.Mutator) (scanner.State, error) {
	cur := st
	for attempt := 1; ; attempt++ {
		next, err := c.registry.CompareAndUpdate(ctx, cur.DeviceID, cur.Version, mutate)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, scanner.ErrConflict) {
			return scanner.State{}, fmt.Errorf("updating scanner state: %w", err)
		}

		c.conflicts.Add(ctx, 1)
		if attempt >= c.casRetries {
			c.logger.Warn("scanner state update abandoned",
				"device_id", logging.RedactKey(cur.DeviceID),
				"attempts", attempt,
			)
			return scanner.State{}, fmt.Errorf("updating scanner state after %d attempts: %w", attempt, err)
		}

		if cur, err = c.registry.Get(ctx, cur.DeviceID); err != nil {
			return scanner.State{}, fmt.Errorf("re-reading scanner state: %w", err)
		}
	}
}

func (c *Coordinator) reject(deviceID, raw string, err error) {
	c.logger.Debug("scan rejected", "device_id", logging.RedactKey(deviceID), "error", err)
	c.emitter.Emit(events.Event{
		Type:     events.TypeScanRejected,
		DeviceID: deviceID,
		Outcome:  "rejected",
		Details:  map[string]any{"reason": err.Error(), "raw_length": len(raw)},
	})
}

func isDecodeError(err error) bool {
	var de *protocol.DecodeError
	return errors.As(err, &de)
}

func stateDetails(st scanner.State) map[string]any {
	d := map[string]any{"mode": string(st.Mode)}
	if st.CurrentLocationID != nil {
		d["location_id"] = *st.CurrentLocationID
	}
	return d
}
