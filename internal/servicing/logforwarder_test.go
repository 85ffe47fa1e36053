package servicing

import (
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestForwarderSingleSlot(t *testing.T) {
	f := NewLogForwarder()
	ch := make(chan LogEntry, 1)

	require.NoError(t, f.Install(ch))
	require.Error(t, f.Install(ch))

	f.Clear()
	f.Clear() // idempotent
	require.NoError(t, f.Install(ch))
	f.Clear()
}

func TestForwardWithoutSinkIsDropped(t *testing.T) {
	f := NewLogForwarder()
	f.Forward(LogEntry{Message: "nobody listening"})
}

func TestForwardDeliversToSink(t *testing.T) {
	f := NewLogForwarder()
	ch := make(chan LogEntry, 4)
	require.NoError(t, f.Install(ch))
	defer f.Clear()

	f.Forward(LogEntry{Message: "hello"})
	select {
	case e := <-ch:
		require.Equal(t, "hello", e.Message)
	default:
		t.Fatal("entry was not delivered")
	}
}

func TestHookCapturesLogrusEntries(t *testing.T) {
	f := NewLogForwarder()
	ch := make(chan LogEntry, 4)
	require.NoError(t, f.Install(ch))
	defer f.Clear()

	logger := log.New()
	logger.AddHook(&Hook{Forwarder: f, Target: "test"})
	logger.WithFields(log.Fields{"module": "mkfs", "file": "x.go", "line": 7}).Info("created filesystem")

	select {
	case e := <-ch:
		require.Equal(t, "created filesystem", e.Message)
		require.Equal(t, "test", e.Target)
		require.Equal(t, "mkfs", e.Module)
		require.Equal(t, "x.go", e.File)
		require.Equal(t, 7, e.Line)
		require.Equal(t, time.UTC, e.Timestamp.Location())
	default:
		t.Fatal("hook did not forward the entry")
	}
}
