package services

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"betslip/domain"
	"betslip/domain/entities"
)

// MarketRegistry is the in-memory cache of every market seen on the update
// stream. The reconciliation loop is its only writer; legs and the limit
// engine read it concurrently. Lookups hand out clones, never live entries.
type MarketRegistry struct {
	mu      sync.RWMutex
	markets map[entities.MarketRef]*entities.Market
}

func NewMarketRegistry() *MarketRegistry {
	return &MarketRegistry{
		markets: make(map[entities.MarketRef]*entities.Market),
	}
}

// Apply merges a stream event into the cached entry, creating it on first
// sight. Events with a sequence at or behind the cached one are dropped; the
// feed is eventually consistent, so the newer snapshot always wins. Returns
// the post-merge snapshot and whether the event applied.
func (r *MarketRegistry) Apply(u entities.MarketUpdate) (*entities.Market, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.markets[u.Ref]
	if !ok {
		m = entities.NewMarketFromUpdate(u)
		r.markets[u.Ref] = m
		return m.Clone(), true
	}

	if u.Seq != 0 && u.Seq <= m.Seq {
		log.WithFields(log.Fields{
			"ref":       u.Ref.String(),
			"eventSeq":  u.Seq,
			"cachedSeq": m.Seq,
		}).Debug("Dropping stale market update")
		return nil, false
	}

	m.ApplyUpdate(u)
	return m.Clone(), true
}

// Prime seeds the registry from persisted snapshots on warm start. Entries
// already live with an equal or newer sequence are kept. Returns how many
// snapshots were installed.
func (r *MarketRegistry) Prime(snapshots []*entities.Market) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	installed := 0
	for _, s := range snapshots {
		if s == nil {
			continue
		}
		if live, ok := r.markets[s.Ref]; ok && live.Seq >= s.Seq {
			continue
		}
		r.markets[s.Ref] = s.Clone()
		installed++
	}
	return installed
}

// Lookup returns a clone of the cached market.
func (r *MarketRegistry) Lookup(ref entities.MarketRef) (*entities.Market, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.markets[ref]
	if !ok {
		return nil, false
	}
	return m.Clone(), true
}

// Quote resolves the current line/price for a selection, or explains why it
// cannot be bet right now.
func (r *MarketRegistry) Quote(ref entities.MarketRef, sub entities.SubMarket, side entities.Side) (entities.Quote, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.markets[ref]
	if !ok {
		return entities.Quote{}, domain.ErrMarketNotFound
	}
	if m.Held() {
		return entities.Quote{}, domain.ErrQuoteUnavailable
	}
	q, ok := m.QuoteFor(sub, side)
	if !ok {
		return entities.Quote{}, domain.ErrQuoteUnavailable
	}
	return q, nil
}

// IsUnderdog reports whether the selection is the market's underdog; when the
// market is gone the leg's own snapshot price decides.
func (r *MarketRegistry) IsUnderdog(item *entities.WagerItem) bool {
	r.mu.RLock()
	m, ok := r.markets[item.Ref]
	if ok {
		defer r.mu.RUnlock()
		return m.IsUnderdog(item.SubMarket, item.Side)
	}
	r.mu.RUnlock()
	return item.FinalPrice.Underdog()
}

// Len returns the number of cached markets.
func (r *MarketRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.markets)
}

// Snapshot clones the whole cache, for persistence or inspection.
func (r *MarketRegistry) Snapshot() []*entities.Market {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*entities.Market, 0, len(r.markets))
	for _, m := range r.markets {
		out = append(out, m.Clone())
	}
	return out
}
