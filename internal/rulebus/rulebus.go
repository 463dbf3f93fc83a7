// Package rulebus distributes ruleset updates across a sigscan fleet
// over NATS, propagating W3C trace context so a reload downstream is
// visible as a child span of the publish that triggered it.
package rulebus

import (
	"context"

	nats "github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// UpdatedSubject is the NATS subject every sigscan daemon subscribes to
// for ruleset-updated notifications.
const UpdatedSubject = "sigscan.ruleset.updated"

var propagator = propagation.TraceContext{}

// PublishUpdate injects the current trace context into a NATS message
// header and publishes data (the new ruleset's content hash, not the
// ruleset itself: subscribers re-read the ruleset from its shared
// source) on subject.
func PublishUpdate(ctx context.Context, nc *nats.Conn, subject string, data []byte) error {
	hdr := nats.Header{}
	propagator.Inject(ctx, propagation.HeaderCarrier(hdr))
	return nc.PublishMsg(&nats.Msg{Subject: subject, Data: data, Header: hdr})
}

// SubscribeUpdates wraps nc.Subscribe, extracting the publisher's trace
// context for each message and starting a consumer span before invoking
// handler.
func SubscribeUpdates(nc *nats.Conn, subject string, handler func(context.Context, *nats.Msg)) (*nats.Subscription, error) {
	return nc.Subscribe(subject, func(m *nats.Msg) {
		ctx := propagator.Extract(context.Background(), propagation.HeaderCarrier(m.Header))
		ctx, span := otel.Tracer("sigscan-rulebus").Start(ctx, "rulebus.consume", trace.WithSpanKind(trace.SpanKindConsumer))
		defer span.End()
		handler(ctx, m)
	})
}
