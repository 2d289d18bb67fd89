package coordinator

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/stocky-app/stocky-core/internal/events"
	"github.com/stocky-app/stocky-core/internal/infrastructure/telemetry"
	"github.com/stocky-app/stocky-core/internal/resolver"
	"github.com/stocky-app/stocky-core/internal/scanner"
)

// Lookup resolves code in LOOKUP mode without touching any scanner state.
func (c *Coordinator) Lookup(ctx context.Context, code string) (resolver.Resolution, error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.Lookup")
	defer span.End()

	if c.resolver == nil {
		return resolver.Resolution{}, ErrNoResolver
	}

	res, err := c.resolve(ctx, resolver.Query{Code: code, Mode: scanner.ModeLookup})
	if err != nil {
		telemetry.RecordError(span, err)
		return resolver.Resolution{}, err
	}

	c.emitter.Emit(events.Event{
		Type:    events.TypeScanAccepted,
		Outcome: string(OutcomeItemResolution),
		Details: map[string]any{"manual": true, "found": res.Found},
	})
	return res, nil
}

// Disassociate unbinds deviceID from its UI. It returns ErrNotAssociated
// for a device that is not bound to any UI.
func (c *Coordinator) Disassociate(ctx context.Context, deviceID string) (scanner.State, error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.Disassociate",
		trace.WithAttributes(attribute.Bool("admin", true)),
	)
	defer span.End()

	st, err := c.registry.Get(ctx, deviceID)
	if err != nil {
		telemetry.RecordError(span, err)
		return scanner.State{}, fmt.Errorf("loading scanner state: %w", err)
	}
	if !st.Bound() {
		return scanner.State{}, ErrNotAssociated
	}

	prevUI := st.UIInstanceID()
	res, err := c.transition(ctx, st, "admin_disassociate", scanner.DisassociateUI())
	if err != nil {
		telemetry.RecordError(span, err)
		return scanner.State{}, err
	}
	c.logger.Info("scanner disassociated by admin", "ui_instance_id", prevUI)
	return res.State, nil
}
