package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// ErrAlreadyRunning reports a live interview already owning the socket.
var ErrAlreadyRunning = errors.New("rehearse interview already running")

// SocketEnv overrides the socket location.
const SocketEnv = "REHEARSE_SOCKET"

// RuntimeSocketPath is $REHEARSE_SOCKET, or $XDG_RUNTIME_DIR/rehearse.sock.
func RuntimeSocketPath() (string, error) {
	if path := strings.TrimSpace(os.Getenv(SocketEnv)); path != "" {
		return path, nil
	}
	runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if runtimeDir == "" {
		return "", fmt.Errorf("XDG_RUNTIME_DIR is not set (or set %s)", SocketEnv)
	}
	return filepath.Join(runtimeDir, "rehearse.sock"), nil
}

// AcquireOptions tunes how a new interview claims the socket.
type AcquireOptions struct {
	// ProbeTimeout bounds the status request sent to an existing socket.
	ProbeTimeout time.Duration
	// Retries is the number of extra bind attempts after removing a stale socket.
	Retries int
	// OnStale runs after a stale socket file has been removed.
	OnStale func(context.Context) error
}

// DefaultAcquireOptions suits an interactive start.
func DefaultAcquireOptions() AcquireOptions {
	return AcquireOptions{ProbeTimeout: 180 * time.Millisecond, Retries: 8}
}

// Acquire binds path as the interview owner. A socket answering a status
// probe belongs to a live interview and yields ErrAlreadyRunning; a dead one
// is removed and the bind retried with a growing pause.
func Acquire(ctx context.Context, path string, opts AcquireOptions) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ensure runtime socket dir: %w", err)
	}

	for attempt := 0; ; attempt++ {
		listener, err := bindOwner(path)
		if err == nil {
			return listener, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("listen unix %s: %w", path, err)
		}
		if err := reclaimStale(ctx, path, opts); err != nil {
			return nil, err
		}
		if attempt >= opts.Retries {
			return nil, fmt.Errorf("failed to acquire socket %s after %d retries", path, opts.Retries)
		}

		pause := time.NewTimer(time.Duration(attempt+1) * 25 * time.Millisecond)
		select {
		case <-ctx.Done():
			pause.Stop()
			return nil, ctx.Err()
		case <-pause.C:
		}
	}
}

func bindOwner(path string) (net.Listener, error) {
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	_ = os.Chmod(path, 0o600)
	return listener, nil
}

// reclaimStale removes path unless a live interview answers on it. An
// inconclusive probe leaves the file in place.
func reclaimStale(ctx context.Context, path string, opts AcquireOptions) error {
	alive, err := Probe(ctx, path, opts.ProbeTimeout)
	if alive {
		return ErrAlreadyRunning
	}
	if err != nil {
		return fmt.Errorf("probe existing socket %s: %w", path, err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket %s: %w", path, err)
	}
	if opts.OnStale != nil {
		_ = opts.OnStale(ctx)
	}
	return nil
}
