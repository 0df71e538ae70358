package api

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	moveRoute       = "/api/teams/:teamId/moves"
	moveSpanName    = "board.move"
	moveEventName   = "board.move.request"
	moveEventDomain = "scrum-board"
	tracerName      = "scrum-board/api"
)

// moveRequestMetrics records one move request as a span plus an
// observability.event log entry.
type moveRequestMetrics struct {
	logger        *log.Logger
	span          trace.Span
	start         time.Time
	teamID        string
	crossList     bool
	duplicate     bool
	status        string
	issued        int
	failed        int
	applyDuration time.Duration
	errorStage    string
}

func newMoveRequestMetrics(ctx context.Context, logger *log.Logger) (*moveRequestMetrics, context.Context) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, moveSpanName, trace.WithSpanKind(trace.SpanKindServer))
	return &moveRequestMetrics{logger: logger, span: span, start: time.Now()}, ctx
}

func (m *moveRequestMetrics) SetTeam(teamID string) { m.teamID = teamID }

func (m *moveRequestMetrics) SetCrossList(cross bool) { m.crossList = cross }

func (m *moveRequestMetrics) SetDuplicate() {
	m.duplicate = true
	m.status = "duplicate"
}

func (m *moveRequestMetrics) ObserveApply(d time.Duration, status string, issued, failed int) {
	if d > 0 {
		m.applyDuration = d
	}
	m.status = status
	m.issued = issued
	m.failed = failed
}

func (m *moveRequestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

// Log ends the span and emits the event. It must be called once.
func (m *moveRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("http.route", moveRoute),
		attribute.Int("http.status_code", status),
		attribute.String("board.team_id", m.teamID),
		attribute.Bool("board.move.cross_list", m.crossList),
		attribute.Bool("board.move.duplicate", m.duplicate),
		attribute.Int("board.move.issued", m.issued),
		attribute.Int("board.move.failed", m.failed),
		attribute.Float64("board.move.total_ms", durationToMillis(time.Since(m.start))),
	}
	if m.status != "" {
		attrs = append(attrs, attribute.String("board.move.status", m.status))
	}
	if m.applyDuration > 0 {
		attrs = append(attrs, attribute.Float64("board.move.apply_ms", durationToMillis(m.applyDuration)))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String("board.move.error_stage", m.errorStage))
	}

	severityText, severityNumber := severityForStatus(status, err)
	eventAttrs := append([]attribute.KeyValue{
		attribute.String("event.name", moveEventName),
		attribute.String("event.domain", moveEventDomain),
		attribute.String("severity_text", severityText),
		attribute.Int("severity_number", severityNumber),
	}, attrs...)
	if err != nil {
		eventAttrs = append(eventAttrs, attribute.String("error.message", err.Error()))
	}

	m.span.SetAttributes(attrs...)
	m.span.AddEvent("observability.event", trace.WithAttributes(eventAttrs...))
	if severityText == "ERROR" {
		desc := http.StatusText(status)
		if err != nil {
			desc = err.Error()
		}
		m.span.SetStatus(codes.Error, desc)
	} else {
		m.span.SetStatus(codes.Ok, "")
	}
	sc := m.span.SpanContext()
	m.span.End()

	if m.logger == nil {
		return
	}
	logged := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		logged[string(kv.Key)] = kv.Value.AsInterface()
	}
	fields := log.Fields{
		"event.name":      moveEventName,
		"event.domain":    moveEventDomain,
		"severity_text":   severityText,
		"severity_number": severityNumber,
		"attributes":      logged,
	}
	if sc.HasTraceID() {
		fields["trace_id"] = sc.TraceID().String()
		fields["span_id"] = sc.SpanID().String()
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	entry := m.logger.WithFields(fields)
	switch severityText {
	case "ERROR":
		entry.Error("observability.event")
	case "WARN":
		entry.Warn("observability.event")
	default:
		entry.Info("observability.event")
	}
}

// severityForStatus follows the OpenTelemetry log severity numbers.
func severityForStatus(status int, err error) (string, int) {
	switch {
	case status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	case err != nil:
		return "ERROR", 17
	}
	return "INFO", 9
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
