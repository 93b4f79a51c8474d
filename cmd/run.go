package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"betslip/application"
	"betslip/config"
	"betslip/database"
	"betslip/domain"
	"betslip/domain/entities"
	"betslip/domain/events"
	"betslip/domain/services"
	"betslip/infrastructure"
	"betslip/infrastructure/observability"
	"betslip/repository"
)

// Run initializes and starts the engine
func Run(ctx context.Context) error {
	log.Println("Starting betslip engine...")

	// Load configuration
	cfg := config.Get()

	// Initialize metrics provider
	if err := observability.InitializeGlobalMetrics(ctx, cfg); err != nil {
		log.Printf("Metrics initialization failed, continuing without: %v", err)
	}

	// Initialize database connection
	log.Println("Connecting to database...")
	db, err := database.NewConnection(ctx, cfg.GetDatabaseURL())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Println("Database connection established successfully")

	archive := repository.NewTicketArchive(db)

	// Initialize event bus
	log.Println("Initializing event bus...")
	eventBus := events.NewBus()
	eventBus.Subscribe(events.EventTypeTicketPosted, func(ctx context.Context, event events.Event) {
		posted, ok := event.(events.TicketPostedEvent)
		if !ok {
			return
		}
		observability.GetMetrics().RecordTicketPosted(string(posted.WagerType))
	})

	// Load limit reference tables
	tables, err := config.LoadLimitTables(cfg.LimitTablesPath)
	if err != nil {
		return fmt.Errorf("failed to load limit tables: %w", err)
	}

	// Market registry and optional snapshot cache
	registry := services.NewMarketRegistry()
	var cache domain.MarketSnapshotCache
	if cfg.RedisAddr != "" {
		log.Printf("Snapshot cache enabled at %s", cfg.RedisAddr)
		cache = infrastructure.NewRedisMarketCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	}

	// Remote wagering gateway
	gateway := infrastructure.NewHTTPWagerGateway(cfg.WageringAPIURL, cfg.WageringAPIKey)

	// Ticket session for the configured account
	sessions := application.NewSessionRegistry()
	profile := entities.AccountProfile{
		AccountID:             cfg.AccountID,
		AutoAcceptBetterOdds:  cfg.AutoAcceptBetterOdds,
		RequireReviewOnChange: cfg.RequireReviewOnChange,
		UnrestrictedCredit:    cfg.UnrestrictedCredit,
		FreePlayBalance:       entities.Money(cfg.FreePlayBalanceCents),
	}
	svc := services.NewTicketService(
		registry,
		services.NewLimitEngine(registry, tables),
		gateway,
		archive,
		eventBus,
		profile,
		time.Duration(cfg.ChangeGraceSeconds)*time.Second,
	)
	sessions.Register(profile.AccountID, svc)
	log.Printf("Ticket session ready for account %s", profile.AccountID)

	// Reconciler: prime from cached snapshots, then sweep flags in the background
	reconciler := application.NewReconciler(registry, cache, sessions, eventBus)
	if err := reconciler.WarmStart(ctx); err != nil {
		log.Printf("Warm start skipped: %v", err)
	}
	stopSweeper := reconciler.StartSweeper(ctx, time.Duration(cfg.SweepIntervalSeconds)*time.Second)

	// Market stream driver
	var stream domain.MarketStream
	switch cfg.StreamDriver {
	case "kafka":
		stream = infrastructure.NewKafkaMarketStream(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID)
	default:
		stream = infrastructure.NewNATSMarketStream(cfg.NATSServers)
	}

	// Blocks until the context is cancelled or the feed fails
	log.Printf("Engine is running in %s mode...", cfg.Environment)
	streamErr := stream.Start(ctx, reconciler.HandleMarketUpdate)

	// Cleanup resources
	log.Println("Shutting down engine...")
	stopSweeper()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := observability.ShutdownGlobalMetrics(shutdownCtx); err != nil {
		log.Printf("Error shutting down metrics: %v", err)
	}

	if cache != nil {
		if err := cache.Close(); err != nil {
			log.Printf("Error closing snapshot cache: %v", err)
		}
	}

	log.Println("Closing database connection...")
	db.Close()

	if streamErr != nil && ctx.Err() == nil {
		return fmt.Errorf("market stream failed: %w", streamErr)
	}

	log.Println("Shutdown completed")
	return nil
}
