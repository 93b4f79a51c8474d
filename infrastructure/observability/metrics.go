package observability

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"betslip/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// MetricsProvider manages OpenTelemetry metrics for the betslip service
type MetricsProvider struct {
	config        *config.Config
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	initialized   bool
	mu            sync.RWMutex

	// Metric instruments
	marketUpdatesCounter          metric.Int64Counter
	marketsTrackedGauge           metric.Int64UpDownCounter
	legsReconciledCounter         metric.Int64Counter
	ticketsPostedCounter          metric.Int64Counter
	sessionsActiveGauge           metric.Int64UpDownCounter
	gatewayCallsCounter           metric.Int64Counter
	gatewayCallDurationHist       metric.Float64Histogram
	databaseQueriesCounter        metric.Int64Counter
	databaseQueryDurationHist     metric.Float64Histogram
	streamMessagesReceivedCounter metric.Int64Counter
}

// NewMetricsProvider creates a new metrics provider
func NewMetricsProvider(cfg *config.Config) *MetricsProvider {
	return &MetricsProvider{
		config: cfg,
	}
}

// Initialize sets up the OpenTelemetry metrics provider
func (mp *MetricsProvider) Initialize(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.initialized {
		log.Println("Metrics provider already initialized")
		return nil
	}

	if !mp.config.OTelEnabled {
		log.Println("OpenTelemetry metrics disabled")
		mp.initialized = true
		return nil
	}

	// Create resource with service information
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(mp.config.OTelServiceName),
			attribute.String("environment", mp.config.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	// Create appropriate exporter based on config
	var exporter sdkmetric.Exporter
	switch mp.config.OTelExporterType {
	case "console":
		exporter, err = stdoutmetric.New()
		if err != nil {
			return fmt.Errorf("failed to create console exporter: %w", err)
		}
		log.Println("Using console metric exporter")

	case "otlp":
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		exporter, err = otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(mp.config.OTelOTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		log.Printf("Using OTLP metric exporter: %s", mp.config.OTelOTLPEndpoint)

	case "none":
		log.Println("Metrics export disabled (exporter_type='none')")
		mp.initialized = true
		return nil

	default:
		return fmt.Errorf("unknown exporter type: %s", mp.config.OTelExporterType)
	}

	// Create meter provider with periodic reader
	mp.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(
				exporter,
				sdkmetric.WithInterval(time.Duration(mp.config.OTelExportIntervalMillis)*time.Millisecond),
			),
		),
	)

	// Set as global meter provider
	otel.SetMeterProvider(mp.meterProvider)

	// Get meter for creating instruments
	mp.meter = mp.meterProvider.Meter("betslip")

	// Create metric instruments
	if err := mp.createInstruments(); err != nil {
		return fmt.Errorf("failed to create instruments: %w", err)
	}

	mp.initialized = true
	log.Println("Metrics provider initialized successfully")
	return nil
}

// createInstruments creates all metric instruments
func (mp *MetricsProvider) createInstruments() error {
	var err error

	// Market feed metrics
	mp.marketUpdatesCounter, err = mp.meter.Int64Counter(
		MarketUpdatesTotal,
		metric.WithDescription("Total number of market updates consumed from the feed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create market updates counter: %w", err)
	}

	mp.marketsTrackedGauge, err = mp.meter.Int64UpDownCounter(
		MarketsTracked,
		metric.WithDescription("Current number of markets held in the registry"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create markets tracked gauge: %w", err)
	}

	// Reconciliation metrics
	mp.legsReconciledCounter, err = mp.meter.Int64Counter(
		LegsReconciledTotal,
		metric.WithDescription("Total number of slip legs touched by reconciliation"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create legs reconciled counter: %w", err)
	}

	// Ticket metrics
	mp.ticketsPostedCounter, err = mp.meter.Int64Counter(
		TicketsPostedTotal,
		metric.WithDescription("Total number of tickets accepted by the book"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create tickets posted counter: %w", err)
	}

	// Session metrics - using UpDownCounter for gauge-like behavior
	mp.sessionsActiveGauge, err = mp.meter.Int64UpDownCounter(
		SessionsActive,
		metric.WithDescription("Current number of live ticket sessions"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create sessions active gauge: %w", err)
	}

	// Gateway metrics
	mp.gatewayCallsCounter, err = mp.meter.Int64Counter(
		GatewayCallsTotal,
		metric.WithDescription("Total number of wagering gateway calls"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create gateway calls counter: %w", err)
	}

	mp.gatewayCallDurationHist, err = mp.meter.Float64Histogram(
		GatewayCallDuration,
		metric.WithDescription("Duration of wagering gateway calls in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return fmt.Errorf("failed to create gateway call duration histogram: %w", err)
	}

	// Database metrics
	mp.databaseQueriesCounter, err = mp.meter.Int64Counter(
		DatabaseQueriesTotal,
		metric.WithDescription("Total number of database queries"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create database queries counter: %w", err)
	}

	mp.databaseQueryDurationHist, err = mp.meter.Float64Histogram(
		DatabaseQueryDuration,
		metric.WithDescription("Duration of database queries in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0),
	)
	if err != nil {
		return fmt.Errorf("failed to create database query duration histogram: %w", err)
	}

	// Stream metrics
	mp.streamMessagesReceivedCounter, err = mp.meter.Int64Counter(
		StreamMessagesReceivedTotal,
		metric.WithDescription("Total number of messages received from the market stream"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create stream messages received counter: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the metrics provider
func (mp *MetricsProvider) Shutdown(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.meterProvider != nil {
		return mp.meterProvider.Shutdown(ctx)
	}
	return nil
}

// RecordMarketUpdate records one consumed market update and whether it
// applied or was dropped as stale
func (mp *MetricsProvider) RecordMarketUpdate(result string) {
	if !mp.isEnabled() {
		return
	}

	mp.marketUpdatesCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String(LabelResult, result),
		),
	)
}

// UpdateMarketsTracked moves the registry size gauge (increment/decrement)
func (mp *MetricsProvider) UpdateMarketsTracked(delta int64) {
	if !mp.isEnabled() {
		return
	}

	mp.marketsTrackedGauge.Add(context.Background(), delta)
}

// RecordLegsReconciled records legs flagged, invalidated, or auto-accepted
// by one reconciliation pass
func (mp *MetricsProvider) RecordLegsReconciled(outcome string, count int64) {
	if !mp.isEnabled() || count == 0 {
		return
	}

	mp.legsReconciledCounter.Add(context.Background(), count,
		metric.WithAttributes(
			attribute.String(LabelOutcome, outcome),
		),
	)
}

// RecordTicketPosted records a ticket accepted by the book
func (mp *MetricsProvider) RecordTicketPosted(wagerType string) {
	if !mp.isEnabled() {
		return
	}

	mp.ticketsPostedCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String(LabelType, wagerType),
		),
	)
}

// UpdateActiveSessions moves the live session gauge (increment/decrement)
func (mp *MetricsProvider) UpdateActiveSessions(delta int64) {
	if !mp.isEnabled() {
		return
	}

	mp.sessionsActiveGauge.Add(context.Background(), delta)
}

// RecordGatewayCall records a wagering gateway call with duration
func (mp *MetricsProvider) RecordGatewayCall(operation, result string, duration time.Duration) {
	if !mp.isEnabled() {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(LabelOperation, operation),
		attribute.String(LabelResult, result),
	)

	mp.gatewayCallsCounter.Add(context.Background(), 1, attrs)
	mp.gatewayCallDurationHist.Record(context.Background(), duration.Seconds(), attrs)
}

// MeasureGatewayCall returns a function to measure gateway call duration
// Usage:
//
//	done := mp.MeasureGatewayCall("AddLeg")
//	defer func() { done(result) }()
func (mp *MetricsProvider) MeasureGatewayCall(operation string) func(result string) {
	start := time.Now()
	return func(result string) {
		mp.RecordGatewayCall(operation, result, time.Since(start))
	}
}

// RecordDatabaseQuery records a database query with duration
func (mp *MetricsProvider) RecordDatabaseQuery(repository, method string, duration time.Duration) {
	if !mp.isEnabled() {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(LabelRepository, repository),
		attribute.String(LabelMethod, method),
	)

	mp.databaseQueriesCounter.Add(context.Background(), 1, attrs)
	mp.databaseQueryDurationHist.Record(context.Background(), duration.Seconds(), attrs)
}

// MeasureDatabaseQuery returns a function to measure database query duration
// Usage:
//
//	defer mp.MeasureDatabaseQuery("ticketArchive", "Archive")()
func (mp *MetricsProvider) MeasureDatabaseQuery(repository, method string) func() {
	start := time.Now()
	return func() {
		mp.RecordDatabaseQuery(repository, method, time.Since(start))
	}
}

// RecordStreamMessageReceived records a message received from the market feed
func (mp *MetricsProvider) RecordStreamMessageReceived(driver string) {
	if !mp.isEnabled() {
		return
	}

	mp.streamMessagesReceivedCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String(LabelDriver, driver),
		),
	)
}

// isEnabled checks if metrics are enabled and initialized. Nil receivers are
// fine so call sites can use GetMetrics() unconditionally.
func (mp *MetricsProvider) isEnabled() bool {
	if mp == nil {
		return false
	}
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return mp.initialized && mp.config.OTelEnabled && mp.meterProvider != nil
}

// Global metrics provider instance
var (
	globalMetrics *MetricsProvider
	metricsOnce   sync.Once
)

// InitializeGlobalMetrics initializes the global metrics provider
func InitializeGlobalMetrics(ctx context.Context, cfg *config.Config) error {
	var err error
	metricsOnce.Do(func() {
		globalMetrics = NewMetricsProvider(cfg)
		err = globalMetrics.Initialize(ctx)
	})
	return err
}

// GetMetrics returns the global metrics provider
func GetMetrics() *MetricsProvider {
	return globalMetrics
}

// ShutdownGlobalMetrics shuts down the global metrics provider
func ShutdownGlobalMetrics(ctx context.Context) error {
	if globalMetrics != nil {
		return globalMetrics.Shutdown(ctx)
	}
	return nil
}
