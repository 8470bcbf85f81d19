package ctrlr_kinematics

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.viam.com/rdk/logging"
)

// Dialer opens a controller connection. Tests substitute it.
type Dialer func(ctx context.Context, cfg ControllerConfig, logger logging.Logger) (*Controller, error)

type ControllerEntry struct {
	controller *Controller
	config     ControllerConfig
	refCount   int64 // Atomic reference counter
	mu         sync.RWMutex
}

// ControllerRegistry shares one command socket per controller address among every
// resource that talks to it.
type ControllerRegistry struct {
	entries map[string]*ControllerEntry // host:port -> entry
	mu      sync.RWMutex
	dial    Dialer
}

func NewControllerRegistry(dial Dialer) *ControllerRegistry {
	if dial == nil {
		dial = DialController
	}
	return &ControllerRegistry{
		entries: make(map[string]*ControllerEntry),
		dial:    dial,
	}
}

var defaultRegistry = NewControllerRegistry(nil)

func configsEqual(a, b ControllerConfig) bool {
	return a.Host == b.Host &&
		a.Port == b.Port &&
		a.DialTimeout == b.DialTimeout &&
		a.ReadTimeout == b.ReadTimeout
}

// GetController returns the shared controller for cfg, connecting on first use.
// Every successful call must be paired with ReleaseController.
func (r *ControllerRegistry) GetController(ctx context.Context, cfg ControllerConfig, logger logging.Logger) (*Controller, error) {
	address := cfg.Address()

	r.mu.RLock()
	entry, exists := r.entries[address]
	r.mu.RUnlock()

	if exists {
		return r.getExistingController(entry, cfg)
	}

	return r.createNewController(ctx, address, cfg, logger)
}

func (r *ControllerRegistry) getExistingController(entry *ControllerEntry, cfg ControllerConfig) (*Controller, error) {
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.controller == nil {
		return nil, fmt.Errorf("controller not available for %s", cfg.Address())
	}

	if !configsEqual(entry.config, cfg) {
		currentRefCount := atomic.LoadInt64(&entry.refCount)
		return nil, fmt.Errorf("conflict: existing controller uses different config (refCount: %d)", currentRefCount)
	}

	atomic.AddInt64(&entry.refCount, 1)
	return entry.controller, nil
}

func (r *ControllerRegistry) createNewController(
	ctx context.Context,
	address string,
	cfg ControllerConfig,
	logger logging.Logger,
) (*Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Another caller may have connected while we waited for the lock.
	if entry, exists := r.entries[address]; exists {
		return r.getExistingController(entry, cfg)
	}

	entry := &ControllerEntry{config: cfg}

	// Failed dials are not cached; the next caller tries again.
	controller, err := r.dial(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to controller: %w", err)
	}

	entry.controller = controller
	atomic.StoreInt64(&entry.refCount, 1)
	r.entries[address] = entry

	logger.Infof("Created new controller connection for %s", address)
	return controller, nil
}

// ReleaseController drops one reference and closes the socket with the last one.
func (r *ControllerRegistry) ReleaseController(cfg ControllerConfig) error {
	address := cfg.Address()

	// Registry lock first, same order as createNewController.
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.entries[address]
	if !exists {
		return nil
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	var err error
	currentRefCount := atomic.AddInt64(&entry.refCount, -1)
	if currentRefCount <= 0 {
		if entry.controller != nil {
			err = entry.controller.Close()
		}
		delete(r.entries, address)

		entry.controller = nil
		atomic.StoreInt64(&entry.refCount, 0)
	}
	return err
}

// ForceCloseController closes the socket regardless of outstanding references.
func (r *ControllerRegistry) ForceCloseController(cfg ControllerConfig) error {
	address := cfg.Address()

	r.mu.Lock()
	entry, exists := r.entries[address]
	if exists {
		delete(r.entries, address)
	}
	r.mu.Unlock()

	if !exists {
		return nil
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	var err error
	if entry.controller != nil {
		err = entry.controller.Close()
		entry.controller = nil
		atomic.StoreInt64(&entry.refCount, 0)
	}

	return err
}

// GetControllerStatus reports reference count, whether a controller is open, and a summary.
func (r *ControllerRegistry) GetControllerStatus(address string) (int64, bool, string) {
	r.mu.RLock()
	entry, exists := r.entries[address]
	r.mu.RUnlock()

	if !exists {
		return 0, false, ""
	}

	entry.mu.RLock()
	defer entry.mu.RUnlock()

	currentRefCount := atomic.LoadInt64(&entry.refCount)
	hasController := entry.controller != nil
	configSummary := fmt.Sprintf("TCP: %s, timeout: %v", entry.config.Address(), entry.config.ReadTimeout)

	return currentRefCount, hasController, configSummary
}
