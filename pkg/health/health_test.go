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

func serve(t *testing.T, handler http.HandlerFunc) (int, probeBody) {
	t.Helper()
	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body probeBody
	err := jx.DecodeBytes(w.Body.Bytes()).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			s, err := d.Str()
			body.Status = s
			return err
		case "checks":
			body.Checks = make(map[string]string)
			return d.Obj(func(d *jx.Decoder, name string) error {
				s, err := d.Str()
				body.Checks[name] = s
				return err
			})
		default:
			return d.Skip()
		}
	})
	require.NoError(t, err)
	return w.Code, body
}

func fail(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func pass(context.Context) error { return nil }

func TestLiveEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		fn       CheckFunc
		runs     int
		wantCode int
		wantMsg  string
	}{
		{name: "healthy before first run", fn: fail("down"), runs: 0, wantCode: http.StatusOK},
		{name: "below threshold", fn: fail("down"), runs: 2, wantCode: http.StatusOK},
		{name: "at threshold", fn: fail("down"), runs: 3, wantCode: http.StatusServiceUnavailable, wantMsg: "down"},
		{name: "passing", fn: pass, runs: 5, wantCode: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New()
			h.AddLivenessCheck("db", tt.fn, Options{})
			for range tt.runs {
				h.liveness[0].run(context.Background())
			}

			code, body := serve(t, h.LiveEndpoint)
			assert.Equal(t, tt.wantCode, code)
			if tt.wantMsg == "" {
				assert.Equal(t, "ok", body.Status)
				return
			}
			assert.Equal(t, "unhealthy", body.Status)
			assert.Equal(t, tt.wantMsg, body.Checks["db"])
		})
	}
}

func TestReadyEndpoint(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", pass, Options{})
	h.AddReadinessCheck("rabbitmq", fail("connection closed"), Options{FailureThreshold: 1})

	code, body := serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "service is not ready", body.Checks["_readiness"])

	h.SetReady(true)
	code, _ = serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, h.IsReady())

	h.readiness[1].run(context.Background())
	code, body = serve(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, map[string]string{"rabbitmq": "connection closed"}, body.Checks)
	assert.False(t, h.IsReady())
}

func TestCheck_Recovery(t *testing.T) {
	var (
		mu      sync.Mutex
		failing = true
	)
	fn := func(context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		if failing {
			return errors.New("down")
		}
		return nil
	}

	c := newCheck("flaky", fn, Options{FailureThreshold: 1, SuccessThreshold: 2})
	ctx := context.Background()

	c.run(ctx)
	assert.False(t, c.healthy.Load())

	mu.Lock()
	failing = false
	mu.Unlock()

	c.run(ctx)
	assert.False(t, c.healthy.Load(), "one success is below the threshold")
	c.run(ctx)
	assert.True(t, c.healthy.Load())
}

func TestCheck_Timeout(t *testing.T) {
	c := newCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, Options{Timeout: 10 * time.Millisecond, FailureThreshold: 1})

	c.run(context.Background())
	msg, failed := c.failure()
	require.True(t, failed)
	assert.Contains(t, msg, "deadline exceeded")
}

func TestStartStop(t *testing.T) {
	h := New()
	runs := make(chan struct{}, 16)
	h.AddLivenessCheck("tick", func(context.Context) error {
		select {
		case runs <- struct{}{}:
		default:
		}
		return nil
	}, Options{})

	h.Start(context.Background(), 5*time.Millisecond)
	for range 2 {
		select {
		case <-runs:
		case <-time.After(time.Second):
			t.Fatal("check did not run")
		}
	}
	h.Stop()
	h.Stop()
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestCheckers(t *testing.T) {
	ctx := context.Background()

	require.NoError(t, GoroutineCountCheck(1_000_000)(ctx))
	require.Error(t, GoroutineCountCheck(0)(ctx))

	require.NoError(t, PingCheck(pinger{})(ctx))
	require.EqualError(t, PingCheck(pinger{err: errors.New("refused")})(ctx), "refused")
}
