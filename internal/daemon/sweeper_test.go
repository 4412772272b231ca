package daemon

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	calls atomic.Int32
}

func (c *countingStore) DeleteIdle(time.Time) (int, error) {
	c.calls.Add(1)
	return 1, nil
}

func TestSweeperRunsPeriodically(t *testing.T) {
	store := &countingStore{}
	s, err := NewSweeper(store, time.Hour, 20*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, s.Start())
	defer func() { _ = s.Stop() }()

	assert.Eventually(t, func() bool {
		return store.calls.Load() >= 2
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSweeperStop(t *testing.T) {
	store := &countingStore{}
	s, err := NewSweeper(store, time.Hour, time.Hour)
	require.NoError(t, err)
	require.NoError(t, s.Start())
	assert.NoError(t, s.Stop())
}
