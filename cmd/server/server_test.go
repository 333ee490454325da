package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/xtding233/sector-run/internal/graph"
	"github.com/xtding233/sector-run/internal/leaderboard"
	"github.com/xtding233/sector-run/internal/ledger"
	"github.com/xtding233/sector-run/internal/loop"
	"github.com/xtding233/sector-run/internal/report"
	"github.com/xtding233/sector-run/internal/run"
	"github.com/xtding233/sector-run/internal/session"
)

func newTestServer(t *testing.T) (*server, http.Handler) {
	t.Helper()
	src, err := graph.NewEmbeddedSource()
	if err != nil {
		t.Fatalf("embedded: %v", err)
	}
	resolver := graph.NewResolver(src, run.DefaultGraphID, zerolog.Nop())
	led := ledger.Open(context.Background(), ledger.NewMemoryStore(), "http", zerolog.Nop())
	board := leaderboard.NewBoard(leaderboard.Disabled{}, zerolog.Nop())
	rep := report.NewReporter(board, zerolog.Nop())

	lp := loop.New(loop.Config{TickRate: 60}, loop.NewManualClock(time.Unix(20_000, 0)), zerolog.Nop())
	lp.SetSpawner(loop.Inline)
	dir := session.New(lp, led, resolver, zerolog.Nop(), session.Options{
		ResolveTimeout: time.Second,
		Reporter:       rep,
	})
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = lp.Run(ctx) }()
	t.Cleanup(cancel)

	s := &server{
		loop:     lp,
		dir:      dir,
		ledger:   led,
		board:    board,
		reporter: rep,
		timeout:  time.Second,
		log:      zerolog.Nop(),
	}
	return s, s.routes()
}

func call(t *testing.T, h http.Handler, method, target string, body string, want int) []byte {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != want {
		t.Fatalf("%s %s = %d, want %d: %s", method, target, rec.Code, want, rec.Body.String())
	}
	return rec.Body.Bytes()
}

func decode[T any](t *testing.T, b []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
	return v
}

// waitFor polls cond on the loop until it holds.
func waitFor(t *testing.T, s *server, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		var ok bool
		if err := s.loop.Do(context.Background(), func() { ok = cond() }); err != nil {
			t.Fatalf("loop: %v", err)
		}
		if ok {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHealthz(t *testing.T) {
	_, h := newTestServer(t)
	got := decode[map[string]any](t, call(t, h, http.MethodGet, "/healthz", "", http.StatusOK))
	if got["ok"] != true || got["ledgerDegraded"] != false {
		t.Fatalf("healthz = %v", got)
	}
}

func TestLifecycleOverHTTP(t *testing.T) {
	_, h := newTestServer(t)

	st := decode[run.State](t, call(t, h, http.MethodPost, "/run/begin?graph=sector-default&seed=9", "", http.StatusOK))
	if st.GraphID != "sector-default" || st.Status != run.StatusInProgress {
		t.Fatalf("begin = %+v", st)
	}
	call(t, h, http.MethodPost, "/run/choose?node=start", "", http.StatusOK)

	prev := decode[previewResp](t, call(t, h, http.MethodPost, "/run/preview", "", http.StatusOK))
	if prev.Phase != "awaiting-choice" || len(prev.Options) != 2 {
		t.Fatalf("preview = %+v", prev)
	}
	call(t, h, http.MethodPost, "/run/choose?node=boss", "", http.StatusBadRequest)
	st = decode[run.State](t, call(t, h, http.MethodPost, "/run/choose?node="+prev.Options[0].ID, "", http.StatusOK))
	if n := len(st.SelectedNodes); n != 2 || st.SelectedNodes[n-1] != prev.Options[0].ID {
		t.Fatalf("selected = %v, want start then %q", st.SelectedNodes, prev.Options[0].ID)
	}

	call(t, h, http.MethodPost, "/run/record?salvage=20&cores=0", "", http.StatusOK)
	sum := decode[report.Summary](t, call(t, h, http.MethodPost, "/run/complete?success=true", "", http.StatusOK))
	if sum.SalvageEarned != 20 || sum.Status != run.StatusSuccess {
		t.Fatalf("summary = %+v", sum)
	}
	if sum.Leaderboard == nil {
		t.Fatalf("summary has no leaderboard standing")
	}
	call(t, h, http.MethodPost, "/run/complete?success=true", "", http.StatusConflict)

	meta := decode[ledger.State](t, call(t, h, http.MethodGet, "/meta", "", http.StatusOK))
	if meta.Salvage != 20 {
		t.Fatalf("salvage = %d, want 20", meta.Salvage)
	}
	text := string(call(t, h, http.MethodGet, "/run/summary?format=text", "", http.StatusOK))
	if !strings.Contains(text, "Victory") {
		t.Fatalf("text summary = %q", text)
	}
}

func TestChooseWithoutRun(t *testing.T) {
	_, h := newTestServer(t)
	call(t, h, http.MethodPost, "/run/choose?node=start", "", http.StatusConflict)
	call(t, h, http.MethodPost, "/run/choose", "", http.StatusBadRequest)
	call(t, h, http.MethodPost, "/run/preview", "", http.StatusConflict)
	call(t, h, http.MethodGet, "/run", "", http.StatusNotFound)
}

func clearWaveOverHTTP(t *testing.T, h http.Handler) {
	t.Helper()
	v := decode[session.View](t, call(t, h, http.MethodGet, "/play", "", http.StatusOK))
	if v.Wave == nil {
		t.Fatalf("no wave in phase %s", v.Phase)
	}
	for _, u := range v.Wave.Units {
		for i := 0; i < 3 && u.Alive; i++ {
			res := decode[map[string]any](t, call(t, h, http.MethodPost, "/play/hit-unit?id="+strconv.Itoa(u.ID), "", http.StatusOK))
			u.Alive = res["killed"] != true
		}
	}
}

func TestPlayStartThenComplete(t *testing.T) {
	s, h := newTestServer(t)
	call(t, h, http.MethodPost, "/play/start?seed=4", "", http.StatusOK)
	waitFor(t, s, "start wave", func() bool { return s.dir.Phase() == session.PhaseFighting })

	clearWaveOverHTTP(t, h)
	waitFor(t, s, "node choice", func() bool { return s.dir.Phase() == session.PhaseSelecting && len(s.dir.Selector().Options()) == 2 })
	call(t, h, http.MethodPost, "/run/choose?node=mid-a", "", http.StatusOK)
	waitFor(t, s, "mid-a wave", func() bool { return s.dir.Phase() == session.PhaseFighting })
	if v := decode[session.View](t, call(t, h, http.MethodGet, "/play", "", http.StatusOK)); v.Modifier != "elite-interceptors" {
		t.Fatalf("modifier = %q", v.Modifier)
	}

	sum := decode[report.Summary](t, call(t, h, http.MethodPost, "/run/complete?success=true", "", http.StatusOK))
	if !sum.Success || sum.SalvageEarned != 20 {
		t.Fatalf("summary = %+v", sum)
	}
	time.Sleep(50 * time.Millisecond)
	v := decode[session.View](t, call(t, h, http.MethodGet, "/play", "", http.StatusOK))
	if v.Phase != session.PhaseFinished || v.Modifier != "" || v.Wave != nil {
		t.Fatalf("after complete: phase %s modifier %q wave %v", v.Phase, v.Modifier, v.Wave != nil)
	}
	if v.Summary == nil || v.Summary.Leaderboard == nil {
		t.Fatalf("view summary lost the leaderboard standing: %+v", v.Summary)
	}
	call(t, h, http.MethodPost, "/play/fire", "", http.StatusConflict)
}

func TestBeginSupersedesPlayedRun(t *testing.T) {
	s, h := newTestServer(t)
	call(t, h, http.MethodPost, "/play/start?seed=2", "", http.StatusOK)
	waitFor(t, s, "start wave", func() bool { return s.dir.Phase() == session.PhaseFighting })

	call(t, h, http.MethodPost, "/run/begin?seed=3", "", http.StatusOK)
	var (
		last  *run.State
		phase session.Phase
	)
	waitFor(t, s, "forfeit", func() bool {
		last, phase = s.dir.Lifecycle().Last(), s.dir.Phase()
		return s.dir.Encounter() == nil
	})
	if phase != session.PhaseIdle || last == nil || last.StatusReason != run.ReasonSuperseded {
		t.Fatalf("phase %s last %+v", phase, last)
	}
	if cur := decode[run.State](t, call(t, h, http.MethodGet, "/run", "", http.StatusOK)); cur.Seed != 3 {
		t.Fatalf("active seed = %d, want 3", cur.Seed)
	}
}

func TestLoadoutAndMeta(t *testing.T) {
	_, h := newTestServer(t)
	call(t, h, http.MethodPost, "/meta/currencies?salvage=-50", "", http.StatusOK)
	meta := decode[ledger.State](t, call(t, h, http.MethodPost, "/meta/currencies?salvage=30&cores=2", "", http.StatusOK))
	if meta.Salvage != 30 || meta.Cores != 2 {
		t.Fatalf("meta = %+v", meta)
	}
	call(t, h, http.MethodPost, "/meta/currencies?salvage=x", "", http.StatusBadRequest)
	meta = decode[ledger.State](t, call(t, h, http.MethodPost, "/meta/unlock?key=weapon_damage&level=2", "", http.StatusOK))
	if u := meta.Unlocks["weapon_damage"]; u.Level != 2 {
		t.Fatalf("unlock = %+v", u)
	}

	call(t, h, http.MethodPost, "/loadout", `{"upgrades":{"weapon_damage":2}}`, http.StatusOK)
	lo := decode[ledger.Loadout](t, call(t, h, http.MethodPost, "/loadout/consume", "", http.StatusOK))
	if lo.Upgrade("weapon_damage") != 2 {
		t.Fatalf("loadout = %+v", lo)
	}
	call(t, h, http.MethodPost, "/loadout/consume", "", http.StatusNoContent)
	call(t, h, http.MethodPost, "/loadout", `{`, http.StatusBadRequest)
}

func TestLeaderboardUnavailable(t *testing.T) {
	_, h := newTestServer(t)
	got := decode[leaderboard.Standing](t, call(t, h, http.MethodGet, "/leaderboard?limit=5", "", http.StatusOK))
	if got.Status != leaderboard.StatusUnavailable {
		t.Fatalf("status = %s", got.Status)
	}
}
