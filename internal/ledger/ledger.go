// Package ledger holds the durable meta-progression economy: currencies,
// unlocks, the pending loadout and the last run record.
//
// A Ledger is owned by the tick loop and is not safe for concurrent use.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

const storeTimeout = 2 * time.Second

// Ledger is the session's view of one profile's record. Every write is
// persisted synchronously; a store failure switches the session to memory.
type Ledger struct {
	store    Store
	profile  string
	log      zerolog.Logger
	state    State
	degraded bool
}

// Open loads the profile record. A missing or corrupt record yields defaults
// and an unreachable store yields an in-memory ledger; Open never fails.
func Open(ctx context.Context, store Store, profile string, logger zerolog.Logger) *Ledger {
	l := &Ledger{
		store:   store,
		profile: profile,
		log:     logger.With().Str("component", "ledger").Str("profile", profile).Logger(),
		state:   Defaults(),
	}
	if store == nil {
		l.degrade(errors.New("no store configured"))
		return l
	}

	b, err := store.Load(ctx, profile)
	switch {
	case errors.Is(err, ErrNotFound):
		return l
	case err != nil:
		l.degrade(err)
		return l
	}

	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		l.log.Warn().Err(err).Msg("corrupt ledger record, using defaults")
		return l
	}
	st.normalize()
	l.state = st
	return l
}

// Degraded reports whether persistence was lost for this session.
func (l *Ledger) Degraded() bool { return l.degraded }

// Meta returns a deep copy of the current record.
func (l *Ledger) Meta() State { return l.state.Clone() }

// SetMeta replaces the record with a copy of s, clamped.
func (l *Ledger) SetMeta(s State) {
	st := s.Clone()
	st.normalize()
	l.state = st
	l.persist()
}

// Reset restores defaults.
func (l *Ledger) Reset() {
	l.state = Defaults()
	l.persist()
}

// AdjustCurrencies applies d, clamping each currency at zero.
func (l *Ledger) AdjustCurrencies(d Delta) {
	l.state.Salvage = clampNonNegative(l.state.Salvage + d.Salvage)
	l.state.Cores = clampNonNegative(l.state.Cores + d.Cores)
	l.persist()
}

// AddUnlock sets key to u. Setting the same value twice is a no-op.
func (l *Ledger) AddUnlock(key string, u Unlock) {
	if cur, ok := l.state.Unlocks[key]; ok && cur == u {
		return
	}
	l.state.Unlocks[key] = u
	l.persist()
}

func (l *Ledger) Unlocked(key string) (Unlock, bool) {
	u, ok := l.state.Unlocks[key]
	return u, ok && u.Unlocked()
}

func (l *Ledger) PendingLoadout() *Loadout { return l.state.PendingLoadout.Clone() }

func (l *Ledger) SetPendingLoadout(lo *Loadout) {
	l.state.PendingLoadout = lo.Clone()
	l.persist()
}

// ConsumePendingLoadout returns the pending loadout and clears it.
func (l *Ledger) ConsumePendingLoadout() *Loadout {
	lo := l.state.PendingLoadout
	if lo == nil {
		return nil
	}
	l.state.PendingLoadout = nil
	l.persist()
	return lo
}

// CommitRun credits the run's earnings and records it as the last run in one write.
func (l *Ledger) CommitRun(rec RunRecord) {
	l.state.Salvage = clampNonNegative(l.state.Salvage + rec.Salvage)
	l.state.Cores = clampNonNegative(l.state.Cores + rec.Cores)
	r := rec
	l.state.LastRun = &r
	l.persist()
}

func (l *Ledger) persist() {
	if l.degraded {
		return
	}
	b, err := json.Marshal(l.state)
	if err != nil {
		l.degrade(err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := l.store.Save(ctx, l.profile, b); err != nil {
		l.degrade(err)
	}
}

func (l *Ledger) degrade(err error) {
	l.degraded = true
	l.log.Warn().Err(err).Msg("ledger persistence unavailable, continuing in memory")
}
