package auth

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/DenisZakharchuk/onward-sub002/internal/auth")

// endSpan ends span, marking it failed only for infrastructure errors.
// Rejected credentials and tokens are expected outcomes.
func endSpan(span trace.Span, err error) {
	if err != nil && !IsAuthFailure(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
