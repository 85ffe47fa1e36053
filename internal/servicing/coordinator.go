// Package servicing implements the servicing control plane: a
// process-wide coordinator guarding two locks (connection, servicing), a
// per-request log forwarder, and the HTTP/NDJSON RPC surface that
// exposes them over the control socket.
//
// The transport is HTTP/1.1 over a Unix domain socket: plain JSON for
// unary reads, newline-delimited JSON frames over a chunked body for
// streaming servicing operations. The wire stays introspectable with
// curl --unix-socket.
package servicing

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"trident/internal/tridenterr"
)

// Unavailable is returned when a request's non-blocking lock acquisition
// fails. The message names which lock was contended.
type Unavailable struct {
	Message string
}

func (u *Unavailable) Error() string {
	return u.Message
}

const (
	msgConnectionBusy = "Trident is busy"
	msgServicingBusy  = "Servicing is active"
)

// Coordinator is the single process-wide lock pair every RPC handler
// acquires before doing any work. Both locks are plain sync.RWMutex --
// TryLock/TryRLock give exactly the non-blocking acquire-or-fail
// semantics needed here, with no need for a custom semaphore.
type Coordinator struct {
	connection sync.RWMutex
	servicing  sync.RWMutex
}

// NewCoordinator builds an idle coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// ReadGuard is held for the duration of a unary read RPC.
type ReadGuard struct {
	c *Coordinator
}

// Release drops both locks. Safe to call at most once.
func (g *ReadGuard) Release() {
	g.c.servicing.RUnlock()
	g.c.connection.RUnlock()
}

// AcquireRead takes the connection and servicing locks in shared mode,
// non-blocking. Failure to acquire either returns Unavailable with the
// message naming which lock was contended.
func (c *Coordinator) AcquireRead() (*ReadGuard, error) {
	if !c.connection.TryRLock() {
		return nil, &Unavailable{Message: msgConnectionBusy}
	}
	if !c.servicing.TryRLock() {
		c.connection.RUnlock()
		return nil, &Unavailable{Message: msgServicingBusy}
	}
	return &ReadGuard{c: c}, nil
}

// ServicingGuard is held for the duration of a streaming servicing RPC.
type ServicingGuard struct {
	c *Coordinator
}

// Release drops the servicing lock. Safe to call at most once.
func (g *ServicingGuard) Release() {
	g.c.servicing.Unlock()
}

// AcquireServicing takes the connection lock exclusively for the
// acquisition window and the servicing lock exclusively for the guard's
// lifetime, non-blocking. The connection lock is dropped again before
// returning: it only serializes overlapping acquisition attempts, while
// the held servicing lock is what rejects every reader and writer for as
// long as the worker runs -- which is why a request arriving mid-service
// observes "Servicing is active" rather than the connection-busy message.
func (c *Coordinator) AcquireServicing() (*ServicingGuard, error) {
	if !c.connection.TryLock() {
		return nil, &Unavailable{Message: msgConnectionBusy}
	}
	defer c.connection.Unlock()
	if !c.servicing.TryLock() {
		return nil, &Unavailable{Message: msgServicingBusy}
	}
	return &ServicingGuard{c: c}, nil
}

// workerFunc is the shape every streaming RPC handler implements: it does
// its work on the goroutine RunServicing starts for it and returns the
// terminal error, if any, to be carried in the stream's FinalStatus frame
// rather than truncating the stream.
type workerFunc func(emit func(LogEntry)) error

// RunServicing acquires the exclusive servicing guard, installs a
// per-request log forwarder sink, and runs worker. If the guard can't be
// acquired it returns that error and no stream; otherwise wait reports
// the worker's error, if any -- callers stream Start/Log/FinalStatus
// around this.
func (c *Coordinator) RunServicing(forwarder *LogForwarder, worker workerFunc) (logs <-chan LogEntry, wait func() error, err error) {
	guard, err := c.AcquireServicing()
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan LogEntry, 256)
	if ferr := forwarder.Install(ch); ferr != nil {
		guard.Release()
		return nil, nil, tridenterr.Internalf("failed to set log forwarder: %v", ferr)
	}

	done := make(chan error, 1)
	go func() {
		workerErr := worker(func(e LogEntry) {
			select {
			case ch <- e:
			default:
				log.Warn("log forwarder channel full, dropping log entry")
			}
		})
		forwarder.Clear()
		close(ch)
		guard.Release()
		done <- workerErr
	}()

	return ch, func() error { return <-done }, nil
}
