package orders

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrder(t *testing.T) {
	o := NewOrder(100, 5)
	require.NotEqual(t, uuid.Nil, o.ID)
	assert.Equal(t, uint32(100), o.Price)
	assert.Equal(t, uint32(5), o.Quantity)
	assert.WithinDuration(t, time.Now(), o.CreatedAt, time.Second)

	// IDs are unique per construction.
	assert.NotEqual(t, o.ID, NewOrder(100, 5).ID)
}

func TestSide(t *testing.T) {
	assert.Equal(t, "Bid", SideBid.String())
	assert.Equal(t, "Ask", SideAsk.String())
	assert.Equal(t, SideAsk, SideBid.Opposite())
	assert.Equal(t, SideBid, SideAsk.Opposite())
}
