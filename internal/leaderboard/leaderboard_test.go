package leaderboard

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func startServer(t *testing.T) (string, *MemoryService) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := grpc.NewServer()
	svc := NewMemoryService()
	RegisterService(srv, svc)
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	return lis.Addr().String(), svc
}

func dialTest(t *testing.T, addr string) *GRPCClient {
	t.Helper()
	c, err := Dial(addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestSanitizeName(t *testing.T) {
	cases := []struct{ in, want string }{
		{"  Ace  Pilot ", "Ace Pilot"},
		{"visit https://spam.example now", "visit now"},
		{"https://x.io second", "second"},
		{"<script>x</script>", "scriptxscript"},
		{"", DefaultName},
		{"!!!", DefaultName},
		{strings.Repeat("a", 40), strings.Repeat("a", MaxNameLength)},
		{"dot.dash-under_score", "dot.dash-under_score"},
	}
	for _, c := range cases {
		if got := SanitizeName(c.in); got != c.want {
			t.Fatalf("SanitizeName(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestClampScore(t *testing.T) {
	if clampScore(-5) != 0 || clampScore(MaxScore+1) != MaxScore || clampScore(42) != 42 {
		t.Fatalf("clamp wrong")
	}
}

func TestGRPCRoundTrip(t *testing.T) {
	addr, _ := startServer(t)
	c := dialTest(t, addr)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, score := range []int{120, 450, 300} {
		e := Entry{Name: "pilot", Score: score, RunID: string(rune('a' + i)), At: at}
		if err := c.Submit(ctx, e); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	top, err := c.Top(ctx, 2)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 2 || top[0].Score != 450 || top[1].Score != 300 {
		t.Fatalf("top = %+v", top)
	}
	if !top[0].At.Equal(at) || top[0].RunID != "b" {
		t.Fatalf("entry fields lost: %+v", top[0])
	}
}

func TestBoardRanksSubmission(t *testing.T) {
	addr, _ := startServer(t)
	b := NewBoard(dialTest(t, addr), zerolog.Nop(), WithThrottle(0))

	if _, err := b.Submit(context.Background(), "first", 900, "run-1"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	st, err := b.Submit(context.Background(), "https://x.io second", 400, "run-2")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if st.Status != StatusAvailable || st.Rank != 2 || st.Entry.Name != "second" {
		t.Fatalf("standing = %+v", st)
	}
}

func TestBoardThrottlesAndSkips(t *testing.T) {
	addr, svc := startServer(t)
	now := time.Unix(100, 0)
	b := NewBoard(dialTest(t, addr), zerolog.Nop(), WithClock(func() time.Time { return now }))

	st, err := b.Submit(context.Background(), "p", 0, "r0")
	if err != nil || st.Status != StatusSkipped {
		t.Fatalf("zero score = %+v, %v", st, err)
	}
	if _, err := b.Submit(context.Background(), "p", 10, "r1"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	now = now.Add(2 * time.Second)
	if _, err := b.Submit(context.Background(), "p", 10, "r2"); !errors.Is(err, ErrThrottled) {
		t.Fatalf("want throttled, got %v", err)
	}
	now = now.Add(5 * time.Second)
	if _, err := b.Submit(context.Background(), "p", 10, "r3"); err != nil {
		t.Fatalf("submit after throttle: %v", err)
	}
	svc.mu.RLock()
	n := len(svc.entries)
	svc.mu.RUnlock()
	if n != 2 {
		t.Fatalf("server entries = %d", n)
	}
}

func TestBoardUnavailable(t *testing.T) {
	b := NewBoard(Disabled{}, zerolog.Nop())
	st, err := b.Submit(context.Background(), "p", 50, "r")
	if !errors.Is(err, ErrUnavailable) || st.Status != StatusUnavailable {
		t.Fatalf("standing = %+v, err = %v", st, err)
	}
}

func TestBoardServerDown(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := lis.Addr().String()
	_ = lis.Close()

	b := NewBoard(dialTest(t, addr), zerolog.Nop(), WithTimeout(300*time.Millisecond))
	st, err := b.Submit(context.Background(), "p", 50, "r")
	if !errors.Is(err, ErrUnavailable) || st.Status != StatusUnavailable {
		t.Fatalf("standing = %+v, err = %v", st, err)
	}
}

func TestHealthy(t *testing.T) {
	addr, _ := startServer(t)
	c := dialTest(t, addr)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Healthy(ctx); err != nil {
		t.Fatalf("healthy: %v", err)
	}

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	down := lis.Addr().String()
	_ = lis.Close()
	c = dialTest(t, down)
	ctx2, cancel2 := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel2()
	if err := c.Healthy(ctx2); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}
