package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/xtding233/sector-run/internal/graph"
	"github.com/xtding233/sector-run/internal/leaderboard"
	"github.com/xtding233/sector-run/internal/ledger"
	"github.com/xtding233/sector-run/internal/loop"
	"github.com/xtding233/sector-run/internal/report"
	"github.com/xtding233/sector-run/internal/run"
	"github.com/xtding233/sector-run/internal/selector"
	"github.com/xtding233/sector-run/internal/session"
)

type server struct {
	loop     *loop.Loop
	dir      *session.Director
	ledger   *ledger.Ledger
	board    *leaderboard.Board
	reporter *report.Reporter
	timeout  time.Duration
	strict   bool
	log      zerolog.Logger

	// last decision delivered to a /run/preview continuation; loop-owned
	decision *selector.Decision
}

type errResp struct {
	Err string `json:"err"`
}

type previewResp struct {
	Token         uint64       `json:"token"`
	Phase         string       `json:"phase"`
	RouteComplete bool         `json:"routeComplete,omitempty"`
	Options       []graph.Node `json:"options,omitempty"`
	Chosen        *graph.Node  `json:"chosen,omitempty"`
}

type shotResp struct {
	session.Shot
	Err string `json:"err,omitempty"`
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("POST /run/begin", s.handleBegin)
	mux.HandleFunc("POST /run/choose", s.handleChoose)
	mux.HandleFunc("POST /run/preview", s.handlePreview)
	mux.HandleFunc("POST /run/record", s.handleRecord)
	mux.HandleFunc("POST /run/complete", s.handleComplete)
	mux.HandleFunc("POST /run/abandon", s.handleAbandon)
	mux.HandleFunc("GET /run", s.handleRun)
	mux.HandleFunc("GET /run/summary", s.handleSummary)

	mux.HandleFunc("POST /play/start", s.handlePlayStart)
	mux.HandleFunc("GET /play", s.handleView)
	mux.HandleFunc("POST /play/fire", s.handleFire)
	mux.HandleFunc("POST /play/hit-unit", s.handleHitUnit)
	mux.HandleFunc("POST /play/hit-boss", s.handleHitBoss)
	mux.HandleFunc("POST /play/hit-entity", s.handleHitEntity)
	mux.HandleFunc("POST /play/player-hit", s.handlePlayerHit)
	mux.HandleFunc("POST /play/move", s.handleMove)

	mux.HandleFunc("GET /meta", s.handleMeta)
	mux.HandleFunc("POST /meta/currencies", s.handleCurrencies)
	mux.HandleFunc("POST /meta/unlock", s.handleUnlock)
	mux.HandleFunc("POST /loadout", s.handleLoadout)
	mux.HandleFunc("POST /loadout/consume", s.handleConsumeLoadout)
	mux.HandleFunc("GET /leaderboard", s.handleLeaderboard)
	return mux
}

func parseFloat(r *http.Request, key string) (float64, bool, string) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return 0, false, ""
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, "invalid " + key
	}
	return v, true, ""
}

func parseInt(r *http.Request, key string) (int, bool, string) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return 0, false, ""
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false, "invalid " + key
	}
	return v, true, ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errResp{Err: msg})
}

// onLoop runs fn on the tick loop and reports whether it ran.
func (s *server) onLoop(w http.ResponseWriter, r *http.Request, fn func()) bool {
	if err := s.loop.Do(r.Context(), fn); err != nil {
		writeErr(w, http.StatusServiceUnavailable, err.Error())
		return false
	}
	return true
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var degraded bool
	if !s.onLoop(w, r, func() { degraded = s.ledger.Degraded() }) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "ledgerDegraded": degraded})
}

func beginOptions(r *http.Request) (run.Options, string) {
	var opts run.Options
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
			return run.Options{}, "invalid body: " + err.Error()
		}
	}
	seed, ok, msg := parseInt(r, "seed")
	if msg != "" {
		return run.Options{}, msg
	}
	if ok {
		opts.Seed = int64(seed)
	}
	if g := r.URL.Query().Get("graph"); g != "" {
		opts.GraphID = g
	}
	return opts, ""
}

// begin runs lifecycle operations directly; the play endpoints drive the full encounter loop.
func (s *server) handleBegin(w http.ResponseWriter, r *http.Request) {
	opts, msg := beginOptions(r)
	if msg != "" {
		writeErr(w, http.StatusBadRequest, msg)
		return
	}
	var (
		st  run.State
		err error
	)
	ok := s.onLoop(w, r, func() {
		// a run the director is playing must release its encounter before the lifecycle forfeits it
		if ph := s.dir.Phase(); !s.strict && ph != session.PhaseIdle && ph != session.PhaseFinished {
			s.dir.Abandon(run.ReasonSuperseded)
		}
		s.decision = nil
		st, err = s.dir.Lifecycle().Begin(opts)
	})
	if !ok {
		return
	}
	if err != nil {
		writeErr(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *server) handleChoose(w http.ResponseWriter, r *http.Request) {
	node := r.URL.Query().Get("node")
	if node == "" {
		writeErr(w, http.StatusBadRequest, "missing param node")
		return
	}
	var (
		st     run.State
		active bool
		err    error
	)
	ok := s.onLoop(w, r, func() {
		lc := s.dir.Lifecycle()
		switch {
		case !lc.Active():
			err = session.ErrNoRun
		case s.dir.Selector().Phase() == selector.PhaseAwaitingChoice:
			err = s.dir.Choose(node)
		default:
			// no preview pending: the caller is naming the node it entered
			_, active = lc.Choose(node)
			if !active {
				err = session.ErrNoRun
			}
		}
		if snap := lc.Snapshot(); snap != nil {
			st = *snap
		}
	})
	if !ok {
		return
	}
	switch {
	case errors.Is(err, session.ErrNoRun):
		writeErr(w, http.StatusConflict, err.Error())
	case err != nil:
		writeErr(w, http.StatusBadRequest, err.Error())
	default:
		writeJSON(w, http.StatusOK, st)
	}
}

// handlePreview starts a preview and waits for it to settle into a choice,
// an auto-advance, or route completion.
func (s *server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var (
		tok    uint64
		active bool
	)
	ok := s.onLoop(w, r, func() {
		active = s.dir.Lifecycle().Active()
		if !active {
			return
		}
		s.decision = nil
		tok = s.dir.Selector().PreviewNextNodes(context.WithoutCancel(r.Context()), func(d selector.Decision) {
			s.decision = &d
		})
	})
	if !ok {
		return
	}
	if !active {
		writeErr(w, http.StatusConflict, session.ErrNoRun.Error())
		return
	}

	deadline := time.Now().Add(s.timeout + time.Second)
	for {
		var resp previewResp
		var settled bool
		if !s.onLoop(w, r, func() {
			sel := s.dir.Selector()
			resp = previewResp{Token: tok, Phase: sel.Phase().String()}
			if sel.Token() != tok {
				resp.Phase = "superseded"
				settled = true
				return
			}
			switch {
			case sel.Phase() == selector.PhaseAwaitingChoice:
				resp.Options = sel.Options()
				settled = true
			case s.decision != nil && s.decision.Token == tok:
				resp.RouteComplete = s.decision.RouteComplete
				if !s.decision.RouteComplete {
					n := s.decision.Node.Clone()
					resp.Chosen = &n
				}
				settled = true
			}
		}) {
			return
		}
		if settled || time.Now().After(deadline) {
			writeJSON(w, http.StatusOK, resp)
			return
		}
		select {
		case <-r.Context().Done():
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (s *server) handleRecord(w http.ResponseWriter, r *http.Request) {
	salvage, _, msg := parseInt(r, "salvage")
	if msg != "" {
		writeErr(w, http.StatusBadRequest, msg)
		return
	}
	cores, _, msg := parseInt(r, "cores")
	if msg != "" {
		writeErr(w, http.StatusBadRequest, msg)
		return
	}
	res := run.WaveResult{
		NodeID:  r.URL.Query().Get("node"),
		Salvage: salvage,
		Cores:   cores,
		Label:   r.URL.Query().Get("label"),
	}
	var (
		recorded bool
		st       *run.State
	)
	if !s.onLoop(w, r, func() {
		recorded = s.dir.Lifecycle().RecordWaveResult(res)
		st = s.dir.Lifecycle().Snapshot()
	}) {
		return
	}
	if !recorded {
		writeErr(w, http.StatusConflict, session.ErrNoRun.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *server) handleComplete(w http.ResponseWriter, r *http.Request) {
	success := r.URL.Query().Get("success") != "false"
	out := run.Outcome{Success: success}
	if note := r.URL.Query().Get("note"); note != "" {
		out.Notes = []string{note}
	}
	var sum *report.Summary
	if !s.onLoop(w, r, func() { sum = s.dir.Complete(out) }) {
		return
	}
	if sum == nil {
		writeErr(w, http.StatusConflict, session.ErrNoRun.Error())
		return
	}
	done := s.reporter.Finish(r.Context(), *sum, r.URL.Query().Get("name"))
	if !s.onLoop(w, r, func() { s.dir.Submitted(done) }) {
		return
	}
	writeJSON(w, http.StatusOK, done)
}

func (s *server) handleAbandon(w http.ResponseWriter, r *http.Request) {
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "abandoned"
	}
	var st *run.State
	if !s.onLoop(w, r, func() { st = s.dir.Abandon(reason) }) {
		return
	}
	if st == nil {
		writeErr(w, http.StatusConflict, session.ErrNoRun.Error())
		return
	}
	writeJSON(w, http.StatusOK, report.Build(*st))
}

func (s *server) handleRun(w http.ResponseWriter, r *http.Request) {
	var st *run.State
	if !s.onLoop(w, r, func() { st = s.dir.Lifecycle().Snapshot() }) {
		return
	}
	if st == nil {
		writeErr(w, http.StatusNotFound, session.ErrNoRun.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *server) handleSummary(w http.ResponseWriter, r *http.Request) {
	var sum *report.Summary
	if !s.onLoop(w, r, func() {
		sum = s.dir.Summary()
		if sum == nil {
			if last := s.dir.Lifecycle().Last(); last != nil {
				b := report.Build(*last)
				sum = &b
			}
		}
	}) {
		return
	}
	if sum == nil {
		writeErr(w, http.StatusNotFound, "no finished run")
		return
	}
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if err := report.Render(w, *sum); err != nil {
			s.log.Warn().Err(err).Msg("render summary")
		}
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *server) handlePlayStart(w http.ResponseWriter, r *http.Request) {
	opts, msg := beginOptions(r)
	if msg != "" {
		writeErr(w, http.StatusBadRequest, msg)
		return
	}
	var (
		st  run.State
		err error
	)
	if !s.onLoop(w, r, func() {
		s.decision = nil
		st, err = s.dir.Start(context.WithoutCancel(r.Context()), opts)
	}) {
		return
	}
	if err != nil {
		writeErr(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *server) handleView(w http.ResponseWriter, r *http.Request) {
	var v session.View
	if !s.onLoop(w, r, func() { v = s.dir.View() }) {
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func inputStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrNoRun), errors.Is(err, session.ErrNoEncounter), errors.Is(err, session.ErrWrongKind):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func (s *server) handleFire(w http.ResponseWriter, r *http.Request) {
	var (
		shot session.Shot
		err  error
	)
	if !s.onLoop(w, r, func() { shot, err = s.dir.FirePlayerShot() }) {
		return
	}
	if errors.Is(err, session.ErrShotNotFired) {
		writeJSON(w, http.StatusOK, shotResp{Err: err.Error()})
		return
	}
	if err != nil {
		writeErr(w, inputStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, shotResp{Shot: shot})
}

func (s *server) handleHitUnit(w http.ResponseWriter, r *http.Request) {
	id, ok, msg := parseInt(r, "id")
	if !ok {
		if msg == "" {
			msg = "missing param id"
		}
		writeErr(w, http.StatusBadRequest, msg)
		return
	}
	var (
		killed bool
		points int
		err    error
	)
	if !s.onLoop(w, r, func() { killed, points, err = s.dir.HitUnit(id) }) {
		return
	}
	if err != nil {
		writeErr(w, inputStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"killed": killed, "points": points})
}

func (s *server) handleHitBoss(w http.ResponseWriter, r *http.Request) {
	bullet, ok, msg := parseInt(r, "bullet")
	if !ok {
		if msg == "" {
			msg = "missing param bullet"
		}
		writeErr(w, http.StatusBadRequest, msg)
		return
	}
	var (
		dmg      float64
		defeated bool
		err      error
	)
	if !s.onLoop(w, r, func() { dmg, defeated, err = s.dir.HitBoss(bullet) }) {
		return
	}
	if err != nil {
		writeErr(w, inputStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"damage": dmg, "defeated": defeated})
}

func (s *server) handleHitEntity(w http.ResponseWriter, r *http.Request) {
	id, ok, msg := parseInt(r, "id")
	if !ok {
		if msg == "" {
			msg = "missing param id"
		}
		writeErr(w, http.StatusBadRequest, msg)
		return
	}
	var (
		destroyed bool
		err       error
	)
	if !s.onLoop(w, r, func() { destroyed, err = s.dir.HitEntity(id) }) {
		return
	}
	if err != nil {
		writeErr(w, inputStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"destroyed": destroyed})
}

func (s *server) handlePlayerHit(w http.ResponseWriter, r *http.Request) {
	var (
		out bool
		err error
	)
	if !s.onLoop(w, r, func() { out, err = s.dir.PlayerHit() }) {
		return
	}
	if err != nil {
		writeErr(w, inputStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"destroyed": out})
}

func (s *server) handleMove(w http.ResponseWriter, r *http.Request) {
	x, ok, msg := parseFloat(r, "x")
	if !ok {
		if msg == "" {
			msg = "missing param x"
		}
		writeErr(w, http.StatusBadRequest, msg)
		return
	}
	var err error
	if !s.onLoop(w, r, func() { err = s.dir.MovePlayer(x) }) {
		return
	}
	if err != nil {
		writeErr(w, inputStatus(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleMeta(w http.ResponseWriter, r *http.Request) {
	var meta ledger.State
	if !s.onLoop(w, r, func() { meta = s.ledger.Meta() }) {
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (s *server) handleCurrencies(w http.ResponseWriter, r *http.Request) {
	salvage, _, msg := parseInt(r, "salvage")
	if msg != "" {
		writeErr(w, http.StatusBadRequest, msg)
		return
	}
	cores, _, msg := parseInt(r, "cores")
	if msg != "" {
		writeErr(w, http.StatusBadRequest, msg)
		return
	}
	var meta ledger.State
	if !s.onLoop(w, r, func() {
		s.ledger.AdjustCurrencies(ledger.Delta{Salvage: salvage, Cores: cores})
		meta = s.ledger.Meta()
	}) {
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// handleUnlock sets key to ?level=N, or to a flag (?flag=false clears it).
func (s *server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeErr(w, http.StatusBadRequest, "missing param key")
		return
	}
	u := ledger.FlagUnlock(r.URL.Query().Get("flag") != "false")
	level, ok, msg := parseInt(r, "level")
	if msg != "" {
		writeErr(w, http.StatusBadRequest, msg)
		return
	}
	if ok {
		u = ledger.LevelUnlock(level)
	}
	var meta ledger.State
	if !s.onLoop(w, r, func() {
		s.ledger.AddUnlock(key, u)
		meta = s.ledger.Meta()
	}) {
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (s *server) handleLoadout(w http.ResponseWriter, r *http.Request) {
	var lo ledger.Loadout
	if err := json.NewDecoder(r.Body).Decode(&lo); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	var pending *ledger.Loadout
	if !s.onLoop(w, r, func() {
		s.ledger.SetPendingLoadout(&lo)
		pending = s.ledger.PendingLoadout()
	}) {
		return
	}
	writeJSON(w, http.StatusOK, pending)
}

func (s *server) handleConsumeLoadout(w http.ResponseWriter, r *http.Request) {
	var lo *ledger.Loadout
	if !s.onLoop(w, r, func() { lo = s.ledger.ConsumePendingLoadout() }) {
		return
	}
	if lo == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, lo)
}

func (s *server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, ok, msg := parseInt(r, "limit")
	if msg != "" {
		writeErr(w, http.StatusBadRequest, msg)
		return
	}
	if !ok || limit <= 0 {
		limit = leaderboard.DefaultTopSize
	}
	top, err := s.board.Top(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusOK, leaderboard.Standing{Status: leaderboard.StatusUnavailable})
		return
	}
	writeJSON(w, http.StatusOK, leaderboard.Standing{Status: leaderboard.StatusAvailable, Top: top})
}
