package queue

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexhq/cortex/pkg/models"
)

func TestIntakeFIFO(t *testing.T) {
	q := NewIntake(8, nil)
	q.Push(models.PerceivedEvent{EventID: "a"})
	q.Push(models.PerceivedEvent{EventID: "b"})
	assert.Equal(t, 2, q.Depth())

	first, err := q.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", first.EventID)

	second, err := q.Next()
	require.NoError(t, err)
	assert.Equal(t, "b", second.EventID)

	_, err = q.Next()
	assert.ErrorIs(t, err, ErrNoEventsAvailable)
}

func TestIntakeDropsOldestAtCapacity(t *testing.T) {
	q := NewIntake(3, nil)
	for i := 0; i < 5; i++ {
		q.Push(models.PerceivedEvent{EventID: fmt.Sprintf("evt-%d", i)})
	}
	assert.Equal(t, 3, q.Depth())

	next, err := q.Next()
	require.NoError(t, err)
	assert.Equal(t, "evt-2", next.EventID)
}
