package application

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"betslip/domain"
	"betslip/domain/entities"
	"betslip/domain/events"
	"betslip/domain/services"
	"betslip/infrastructure/observability"
)

// Reconciler connects the market feed to the shared registry and the live
// ticket sessions. Stream events merge into the registry first, then replay
// against every registered slip so held or repriced legs react immediately.
type Reconciler struct {
	registry  *services.MarketRegistry
	cache     domain.MarketSnapshotCache
	sessions  *SessionRegistry
	publisher domain.EventPublisher
}

// NewReconciler creates a reconciler over the shared registry. The snapshot
// cache and publisher may be nil when those concerns are disabled.
func NewReconciler(
	registry *services.MarketRegistry,
	cache domain.MarketSnapshotCache,
	sessions *SessionRegistry,
	publisher domain.EventPublisher,
) *Reconciler {
	return &Reconciler{
		registry:  registry,
		cache:     cache,
		sessions:  sessions,
		publisher: publisher,
	}
}

// WarmStart primes the registry from cached snapshots so quoting works before
// the feed replays. Safe to call with no cache configured.
func (r *Reconciler) WarmStart(ctx context.Context) error {
	if r.cache == nil {
		return nil
	}

	snapshots, err := r.cache.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to load market snapshots: %w", err)
	}

	installed := r.registry.Prime(snapshots)
	observability.GetMetrics().UpdateMarketsTracked(int64(installed))

	log.WithFields(log.Fields{
		"cached":    len(snapshots),
		"installed": installed,
	}).Info("Warmed market registry from snapshot cache")
	return nil
}

// HandleMarketUpdate merges one stream event into the registry and fans the
// result out to the snapshot cache, the event bus, and every live session.
// It is the feed's MarketUpdateHandler; a non-nil error asks the stream to
// redeliver, so stale-sequence drops return nil.
func (r *Reconciler) HandleMarketUpdate(ctx context.Context, u entities.MarketUpdate) error {
	before := r.registry.Len()

	m, applied := r.registry.Apply(u)
	if !applied {
		observability.GetMetrics().RecordMarketUpdate(observability.UpdateResultStale)
		log.WithFields(log.Fields{
			"gameID": u.Ref.GameID,
			"period": u.Ref.PeriodNumber,
			"seq":    u.Seq,
		}).Debug("Dropped stale market update")
		return nil
	}

	observability.GetMetrics().RecordMarketUpdate(observability.UpdateResultApplied)
	if grew := r.registry.Len() - before; grew > 0 {
		observability.GetMetrics().UpdateMarketsTracked(int64(grew))
	}

	if r.cache != nil {
		if err := r.cache.Put(ctx, m); err != nil {
			// Cache is a warm-start convenience; the registry already has
			// the snapshot, so a write failure must not stall the feed.
			log.WithFields(log.Fields{
				"gameID": u.Ref.GameID,
				"period": u.Ref.PeriodNumber,
				"error":  err,
			}).Warn("Failed to cache market snapshot")
		}
	}

	if r.publisher != nil {
		r.publisher.Publish(ctx, events.MarketUpdatedEvent{Ref: m.Ref, Seq: m.Seq})
	}

	r.sessions.Each(func(accountID string, svc *services.TicketService) {
		report := svc.ReconcileMarket(ctx, m, u)
		if report.Empty() {
			return
		}

		metrics := observability.GetMetrics()
		metrics.RecordLegsReconciled(observability.LegOutcomeFlagged, int64(report.Flagged))
		metrics.RecordLegsReconciled(observability.LegOutcomeInvalidated, int64(report.Invalidated))
		metrics.RecordLegsReconciled(observability.LegOutcomeAutoAccepted, int64(report.AutoAccepted))

		log.WithFields(log.Fields{
			"accountID":    accountID,
			"gameID":       u.Ref.GameID,
			"period":       u.Ref.PeriodNumber,
			"flagged":      report.Flagged,
			"invalidated":  report.Invalidated,
			"autoAccepted": report.AutoAccepted,
		}).Info("Reconciled ticket against market move")
	})

	return nil
}

// StartSweeper begins the background sweep that clears review flags once
// their grace window lapses. Returns a stop function for shutdown.
func (r *Reconciler) StartSweeper(ctx context.Context, interval time.Duration) func() {
	stopChan := make(chan struct{})

	sweep := func() {
		expired := 0
		r.sessions.Each(func(_ string, svc *services.TicketService) {
			expired += svc.SweepChangedFlags()
		})
		if expired > 0 {
			log.WithField("expired", expired).Debug("Swept expired change flags")
		}
	}

	go func() {
		log.WithField("interval", interval).Info("Change-flag sweeper started")

		for {
			select {
			case <-ctx.Done():
				log.Info("Change-flag sweeper shutting down (context cancelled)...")
				return
			case <-stopChan:
				log.Info("Change-flag sweeper shutting down (stop requested)...")
				return
			case <-time.After(interval):
				sweep()
			}
		}
	}()

	return func() {
		close(stopChan)
	}
}
