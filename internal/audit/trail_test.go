package audit_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/enrollgate/internal/audit"
)

type recordingStorage struct {
	mu      sync.Mutex
	batches [][]audit.Event
}

func (s *recordingStorage) WriteBatch(ctx context.Context, events []audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Копируем: воркер переиспользует слайс батча
	batch := make([]audit.Event, len(events))
	copy(batch, events)
	s.batches = append(s.batches, batch)
	return nil
}

func (s *recordingStorage) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func TestTrail_StopFlushesEverything(t *testing.T) {
	storage := &recordingStorage{}
	trail := audit.NewTrail(storage, zap.NewNop(), nil)
	trail.Start()

	const n = 120 // больше одного батча
	for i := 0; i < n; i++ {
		trail.Log(audit.Event{ID: fmt.Sprintf("e-%d", i), Action: audit.ActionSubmitted})
	}
	trail.Stop()

	assert.Equal(t, n, storage.total())
}

func TestTrail_LogAfterStopIsDropped(t *testing.T) {
	storage := &recordingStorage{}
	trail := audit.NewTrail(storage, zap.NewNop(), nil)
	trail.Start()
	trail.Stop()

	// Не должно паниковать на закрытом канале
	require.NotPanics(t, func() {
		trail.Log(audit.Event{ID: "late"})
	})
	assert.Zero(t, storage.total())
}

func TestTrail_TimestampIsAlwaysSet(t *testing.T) {
	storage := &recordingStorage{}
	trail := audit.NewTrail(storage, zap.NewNop(), nil)
	trail.Start()

	trail.Log(audit.Event{ID: "e-1"})
	trail.Stop()

	require.Equal(t, 1, storage.total())
	assert.False(t, storage.batches[0][0].Timestamp.IsZero())
}
