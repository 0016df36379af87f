package emit

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter turns each event into a short-lived OpenTelemetry span,
// so a run's node/scope lifecycle shows up in distributed tracing
// backends alongside whatever else the host service instruments.
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter returns an OTelEmitter using tracer, typically
// otel.Tracer("deppy").
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

func (o *OTelEmitter) Emit(e Event) {
	_, span := o.tracer.Start(context.Background(), e.Msg)
	defer span.End()

	span.SetAttributes(attribute.String("run_id", e.RunID))
	if e.NodeID != "" {
		span.SetAttributes(attribute.String("node_id", e.NodeID))
	}
	if e.ScopeID != "" {
		span.SetAttributes(attribute.String("scope_id", e.ScopeID))
	}
	for k, v := range e.Meta {
		span.SetAttributes(attribute.String(k, fmt.Sprintf("%v", v)))
	}
	if e.Err != nil {
		span.RecordError(e.Err)
		span.SetStatus(codes.Error, e.Err.Error())
	}
}
