package news

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/cielo-abierto/internal/localstore"
)

func TestFeed_Latest(t *testing.T) {
	now := time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)
	f := NewFeed(0, func() time.Time { return now })

	items, err := f.Latest(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 4)
	assert.Equal(t, now, items[0].Date)
	for i := 1; i < len(items); i++ {
		assert.True(t, items[i].Date.Before(items[i-1].Date), "item %d out of order", i)
		assert.Equal(t, i+1, items[i].ID)
	}
}

func TestFeed_LatencyHonoursContext(t *testing.T) {
	f := NewFeed(localstore.Latency(time.Second), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Latest(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
