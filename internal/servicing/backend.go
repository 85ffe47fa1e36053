package servicing

import (
	log "github.com/sirupsen/logrus"

	"trident/internal/storagegraph"
)

// Backend is the external-tool boundary: the only surface through which
// a validated plan turns into mutations of the running system; everything
// above this interface stays pure validation and planning. NopBackend is
// the only implementation in this module.
type Backend interface {
	// ApplyStorage realizes the validated storage graph on disk.
	ApplyStorage(g *storagegraph.Graph) error
	// WriteCrypttab persists the synthesized crypttab body; an empty body
	// means any existing crypttab should be removed.
	WriteCrypttab(content string) error
}

// NopBackend logs each call and succeeds without touching the system.
// tridentd and the tests use it.
type NopBackend struct{}

func (NopBackend) ApplyStorage(g *storagegraph.Graph) error {
	log.WithField("nodes", len(g.Nodes())).Info("storage plan accepted (no-op backend)")
	return nil
}

func (NopBackend) WriteCrypttab(content string) error {
	log.WithField("bytes", len(content)).Info("crypttab accepted (no-op backend)")
	return nil
}
