package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinPulse/internal/domain/models"
	"FinPulse/internal/scheduler"
	"FinPulse/internal/usecase"
	"FinPulse/pkg/config"
)

type stubRunner struct {
	err   error
	calls int
}

func (r *stubRunner) Run(_ context.Context, tick models.TickInfo, _ *usecase.State, _ func(models.Phase)) (*models.TickReport, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return &models.TickReport{Tick: tick}, nil
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestApp_RunOnce(t *testing.T) {
	r := &stubRunner{}
	app := New(&config.Config{}, scheduler.New(r, nil, nil), nil)
	require.NoError(t, app.RunOnce(context.Background()))
	assert.Equal(t, 1, r.calls)
	assert.Equal(t, "once", app.Scheduler().LastReport().Tick.Trigger)

	r.err = errors.New("boom")
	require.Error(t, app.RunOnce(context.Background()))
}

func TestApp_RunServesStatusUntilCancelled(t *testing.T) {
	port := freePort(t)
	cfg := &config.Config{
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            port,
			ReadTimeout:     time.Second,
			WriteTimeout:    time.Second,
			ShutdownTimeout: time.Second,
		},
	}
	app := New(cfg, scheduler.New(&stubRunner{}, nil, nil), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	url := "http://127.0.0.1:" + strconv.Itoa(port) + "/healthz"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("app did not stop")
	}
}

func TestApp_ServerDisabled(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{Disabled: true}}
	app := New(cfg, scheduler.New(&stubRunner{}, nil, nil), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, app.Run(ctx))
}
