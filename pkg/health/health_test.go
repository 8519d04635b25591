package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type probeBody struct {
	Status string
	Checks map[string]string
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) probeBody {
	t.Helper()
	var body probeBody
	d := jx.DecodeBytes(w.Body.Bytes())
	require.NoError(t, d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			s, err := d.Str()
			body.Status = s
			return err
		case "checks":
			body.Checks = map[string]string{}
			return d.Obj(func(d *jx.Decoder, name string) error {
				s, err := d.Str()
				body.Checks[name] = s
				return err
			})
		default:
			return d.Skip()
		}
	}))
	return body
}

func passing(context.Context) error { return nil }

func failing(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func probe(t *testing.T, h http.HandlerFunc) (int, probeBody) {
	t.Helper()
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	return w.Code, decodeBody(t, w)
}

func TestRegister_Defaults(t *testing.T) {
	h := New()
	h.Register(Check{Name: "db", Probe: Readiness, Func: passing})

	s := h.checks[0]
	assert.Equal(t, 3, s.FailureThreshold)
	assert.Equal(t, 1, s.SuccessThreshold)
	assert.Equal(t, time.Second, s.Timeout)
	assert.True(t, s.healthy.Load())
}

func TestLiveEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		runs       int
		check      CheckFunc
		wantStatus int
		wantChecks map[string]string
	}{
		{name: "no runs yet", runs: 0, check: failing("down"), wantStatus: http.StatusOK},
		{name: "passing", runs: 3, check: passing, wantStatus: http.StatusOK},
		{name: "below threshold", runs: 2, check: failing("down"), wantStatus: http.StatusOK},
		{
			name: "at threshold", runs: 3, check: failing("down"),
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"loop": "down"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New()
			h.Register(Check{Name: "loop", Probe: Liveness, Func: tt.check})
			for range tt.runs {
				h.checks[0].run(context.Background())
			}

			code, body := probe(t, h.LiveEndpoint)
			assert.Equal(t, tt.wantStatus, code)
			if tt.wantChecks == nil {
				assert.Equal(t, "ok", body.Status)
				assert.Nil(t, body.Checks)
				return
			}
			assert.Equal(t, "unhealthy", body.Status)
			assert.Equal(t, tt.wantChecks, body.Checks)
		})
	}
}

func TestLiveEndpoint_IgnoresReadinessChecks(t *testing.T) {
	h := New()
	h.Register(Check{Name: "db", Probe: Readiness, Func: failing("refused"), FailureThreshold: 1})
	h.checks[0].run(context.Background())

	code, _ := probe(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, code)
}

func TestReadyEndpoint(t *testing.T) {
	h := New()
	h.Register(Check{Name: "postgres", Probe: Readiness, Func: passing})
	h.Register(Check{Name: "rules", Probe: Readiness, Func: failing("relation does not exist"), FailureThreshold: 1})

	code, body := probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, map[string]string{"_readiness": "service is not ready"}, body.Checks)

	h.SetReady(true)
	code, body = probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)
	assert.True(t, h.IsReady())

	for _, s := range h.checks {
		s.run(context.Background())
	}
	code, body = probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, map[string]string{"rules": "relation does not exist"}, body.Checks)
	assert.False(t, h.IsReady())

	h.SetReady(false)
	_, body = probe(t, h.ReadyEndpoint)
	assert.Len(t, body.Checks, 2)
}

func TestCheckRecovers(t *testing.T) {
	var (
		mu  sync.Mutex
		err error = errors.New("flaky")
	)
	h := New()
	h.Register(Check{
		Name:             "flaky",
		Probe:            Readiness,
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Func: func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			return err
		},
	})
	h.SetReady(true)
	s := h.checks[0]

	s.run(context.Background())
	assert.False(t, h.IsReady())

	mu.Lock()
	err = nil
	mu.Unlock()

	s.run(context.Background())
	assert.False(t, h.IsReady(), "one success is below the success threshold")
	s.run(context.Background())
	assert.True(t, h.IsReady())

	last := s.last.Load()
	require.NotNil(t, last)
	assert.NoError(t, last.err)
}

func TestCheckTimeout(t *testing.T) {
	h := New()
	h.Register(Check{
		Name:             "slow",
		Probe:            Readiness,
		Timeout:          10 * time.Millisecond,
		FailureThreshold: 1,
		Func: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})
	h.checks[0].run(context.Background())

	assert.False(t, h.checks[0].healthy.Load())
	assert.ErrorIs(t, h.checks[0].last.Load().err, context.DeadlineExceeded)
}

func TestStartStop(t *testing.T) {
	h := New()
	h.Register(Check{Name: "db", Probe: Readiness, Func: failing("down"), FailureThreshold: 1})
	h.SetReady(true)

	h.Start(context.Background(), 5*time.Millisecond)
	require.Eventually(t, func() bool { return !h.IsReady() }, time.Second, 5*time.Millisecond)

	h.Stop()
	h.Stop()
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type stubCounter struct {
	n   int
	err error
}

func (c stubCounter) CountActiveRules(context.Context) (int, error) { return c.n, c.err }

func TestCheckers(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, PingCheck(stubPinger{})(ctx))
	assert.ErrorContains(t, PingCheck(stubPinger{err: errors.New("refused")})(ctx), "ping: refused")

	assert.NoError(t, ActiveRulesCheck(stubCounter{n: 0})(ctx))
	assert.NoError(t, ActiveRulesCheck(stubCounter{n: 12})(ctx))
	assert.ErrorContains(t, ActiveRulesCheck(stubCounter{err: errors.New("boom")})(ctx), "count active rules")

	assert.NoError(t, GoroutineCountCheck(1_000_000)(ctx))
	assert.Error(t, GoroutineCountCheck(0)(ctx))
}
