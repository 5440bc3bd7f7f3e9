package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all custom metrics for the service
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal metric.Int64Counter
	HTTPDurationMs    metric.Float64Histogram

	// Intake metrics
	WizardOperationsTotal metric.Int64Counter
	SubmissionsTotal      metric.Int64Counter
	ActiveSessions        metric.Int64UpDownCounter
	DocumentsRejected     metric.Int64Counter

	// Dashboard and catalog metrics
	WorklistRefreshTotal metric.Int64Counter
	CatalogLookupsTotal  metric.Int64Counter

	// Auth metrics
	AuthFailuresTotal       metric.Int64Counter
	PermissionCheckDuration metric.Float64Histogram
}

// InitMetrics initializes all custom metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("github.com/WailSalutem-Health-Care/clinic-intake-service")
	m := &Metrics{}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.HTTPRequestsTotal, "http_server_requests_total", "Total number of HTTP requests", "{request}"},
		{&m.WizardOperationsTotal, "wizard_operations_total", "Wizard operations by kind and operation", "{operation}"},
		{&m.SubmissionsTotal, "wizard_submissions_total", "Wizard submissions by kind and result", "{submission}"},
		{&m.DocumentsRejected, "wizard_documents_rejected_total", "Uploaded documents rejected before encoding", "{file}"},
		{&m.WorklistRefreshTotal, "dashboard_refresh_total", "Worklist refreshes by worklist and result", "{refresh}"},
		{&m.CatalogLookupsTotal, "catalog_lookups_total", "Catalog searches by source", "{lookup}"},
		{&m.AuthFailuresTotal, "auth_failures_total", "Total number of authentication failures", "{failure}"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", c.name, err)
		}
		*c.dst = counter
	}

	var err error
	m.HTTPDurationMs, err = meter.Float64Histogram(
		"http_server_duration_milliseconds",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	m.PermissionCheckDuration, err = meter.Float64Histogram(
		"permission_check_duration_ms",
		metric.WithDescription("Permission check duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	m.ActiveSessions, err = meter.Int64UpDownCounter(
		"wizard_active_sessions",
		metric.WithDescription("Wizard sessions currently held in memory"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request metric
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, statusCode int, durationMs float64) {
	attrs := []attribute.KeyValue{
		attribute.String("http_method", method),
		attribute.String("http_route", route),
		attribute.Int("http_status_code", statusCode),
	}

	m.HTTPRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.HTTPDurationMs.Record(ctx, durationMs, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordWizardOperation(ctx context.Context, kind, operation string) {
	m.WizardOperationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("operation", operation),
	))
}

// RecordSubmission records a submit attempt; result is "success", "failed",
// "invalid" or "busy".
func (m *Metrics) RecordSubmission(ctx context.Context, kind, result string) {
	m.SubmissionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("result", result),
	))
}

func (m *Metrics) RecordSessionDelta(ctx context.Context, delta int64) {
	m.ActiveSessions.Add(ctx, delta)
}

func (m *Metrics) RecordDocumentsRejected(ctx context.Context, count int) {
	if count > 0 {
		m.DocumentsRejected.Add(ctx, int64(count))
	}
}

func (m *Metrics) RecordWorklistRefresh(ctx context.Context, worklist string, ok bool) {
	m.WorklistRefreshTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("worklist", worklist),
		attribute.Bool("ok", ok),
	))
}

// RecordCatalogLookup records where a search answer came from ("cache" or "upstream").
func (m *Metrics) RecordCatalogLookup(ctx context.Context, catalog, source string) {
	m.CatalogLookupsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("catalog", catalog),
		attribute.String("source", source),
	))
}

// RecordAuthFailure records an authentication failure metric
func (m *Metrics) RecordAuthFailure(ctx context.Context, reason string) {
	m.AuthFailuresTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

// RecordPermissionCheck records a permission check duration metric
func (m *Metrics) RecordPermissionCheck(ctx context.Context, permission string, durationMs float64, allowed bool) {
	m.PermissionCheckDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("permission", permission),
		attribute.Bool("allowed", allowed),
	))
}
