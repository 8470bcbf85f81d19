package ctrlr_kinematics

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.viam.com/rdk/logging"
)

// pipeDialer returns a Dialer that serves every connection from a fake controller and
// counts how many it opened.
func pipeDialer(t *testing.T, dials *int64) Dialer {
	return func(ctx context.Context, cfg ControllerConfig, logger logging.Logger) (*Controller, error) {
		atomic.AddInt64(dials, 1)
		client, server := net.Pipe()
		startFakeController(t, server, kinematicsController(nil, nil, []float64{0, 0, 0, 0, 0, 0}))
		return NewController(client, cfg.ReadTimeout, logger), nil
	}
}

func testControllerConfig(host string) ControllerConfig {
	return ControllerConfig{Host: host, Port: DefaultCommandPort, DialTimeout: time.Second, ReadTimeout: time.Second}
}

func TestRegistryCreation(t *testing.T) {
	registry := NewControllerRegistry(nil)
	require.NotNil(t, registry)
	assert.NotNil(t, registry.entries)
	assert.NotNil(t, registry.dial)
	assert.Empty(t, registry.entries)
}

func TestRegistrySharesControllers(t *testing.T) {
	logger := logging.NewTestLogger(t)
	var dials int64
	registry := NewControllerRegistry(pipeDialer(t, &dials))
	cfg := testControllerConfig("10.0.0.1")

	first, err := registry.GetController(context.Background(), cfg, logger)
	require.NoError(t, err)
	second, err := registry.GetController(context.Background(), cfg, logger)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int64(1), atomic.LoadInt64(&dials))

	refCount, connected, summary := registry.GetControllerStatus(cfg.Address())
	assert.Equal(t, int64(2), refCount)
	assert.True(t, connected)
	assert.Contains(t, summary, "10.0.0.1:29001")

	require.NoError(t, registry.ReleaseController(cfg))
	refCount, connected, _ = registry.GetControllerStatus(cfg.Address())
	assert.Equal(t, int64(1), refCount)
	assert.True(t, connected)

	// still usable by the remaining holder
	_, err = first.Exchange(context.Background(), CmdGetLastPosition, nil, LastPositionLayout)
	require.NoError(t, err)

	require.NoError(t, registry.ReleaseController(cfg))
	refCount, connected, _ = registry.GetControllerStatus(cfg.Address())
	assert.Equal(t, int64(0), refCount)
	assert.False(t, connected)

	// last release closed the socket
	_, err = first.Exchange(context.Background(), CmdGetLastPosition, nil, LastPositionLayout)
	assert.ErrorIs(t, err, ErrNoResponse)

	// releasing an unknown controller is a no-op
	assert.NoError(t, registry.ReleaseController(cfg))
}

func TestRegistryConfigConflict(t *testing.T) {
	logger := logging.NewTestLogger(t)
	var dials int64
	registry := NewControllerRegistry(pipeDialer(t, &dials))

	cfg := testControllerConfig("10.0.0.2")
	_, err := registry.GetController(context.Background(), cfg, logger)
	require.NoError(t, err)

	other := cfg
	other.ReadTimeout = 3 * time.Second
	_, err = registry.GetController(context.Background(), other, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conflict")

	require.NoError(t, registry.ForceCloseController(cfg))
	refCount, connected, _ := registry.GetControllerStatus(cfg.Address())
	assert.Equal(t, int64(0), refCount)
	assert.False(t, connected)

	// a fresh config can connect after a force close
	_, err = registry.GetController(context.Background(), other, logger)
	require.NoError(t, err)
	assert.Equal(t, int64(2), atomic.LoadInt64(&dials))
}

func TestRegistryDialFailure(t *testing.T) {
	logger := logging.NewTestLogger(t)
	attempts := 0
	registry := NewControllerRegistry(func(ctx context.Context, cfg ControllerConfig, logger logging.Logger) (*Controller, error) {
		attempts++
		return nil, fmt.Errorf("connection refused")
	})

	cfg := testControllerConfig("10.0.0.3")
	_, err := registry.GetController(context.Background(), cfg, logger)
	require.Error(t, err)
	_, err = registry.GetController(context.Background(), cfg, logger)
	require.Error(t, err)

	// failures are not cached, each call retries
	assert.Equal(t, 2, attempts)
	refCount, connected, _ := registry.GetControllerStatus(cfg.Address())
	assert.Equal(t, int64(0), refCount)
	assert.False(t, connected)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	logger := logging.NewTestLogger(t)
	var dials int64
	registry := NewControllerRegistry(pipeDialer(t, &dials))
	cfg := testControllerConfig("10.0.0.4")

	const workers = 10
	var wg sync.WaitGroup
	controllers := make([]*Controller, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			controllers[i], errs[i] = registry.GetController(context.Background(), cfg, logger)
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, controllers[0], controllers[i])
	}
	assert.Equal(t, int64(1), atomic.LoadInt64(&dials))

	refCount, _, _ := registry.GetControllerStatus(cfg.Address())
	assert.Equal(t, int64(workers), refCount)

	for i := 0; i < workers; i++ {
		require.NoError(t, registry.ReleaseController(cfg))
	}
	_, connected, _ := registry.GetControllerStatus(cfg.Address())
	assert.False(t, connected)
}
