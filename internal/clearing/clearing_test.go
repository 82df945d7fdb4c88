package clearing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rishav/order-book/internal/orders"
)

func makeFill(seq uint64, side orders.Side, price, qty uint32) orders.Fill {
	return orders.Fill{
		Seq:           seq,
		AggressorSide: side,
		AggressorID:   uuid.New(),
		RestingID:     uuid.New(),
		Price:         price,
		Quantity:      qty,
		Timestamp:     orders.Now(),
	}
}

func TestHouseTallies(t *testing.T) {
	h := NewHouse()
	h.Report(makeFill(1, orders.SideBid, 100, 10))
	h.Report(makeFill(2, orders.SideAsk, 101, 5))
	h.Report(makeFill(3, orders.SideBid, 102, 1))

	stats := h.Stats()
	assert.Equal(t, uint64(3), stats.Trades)
	assert.Equal(t, uint64(16), stats.Volume)
	assert.Equal(t, uint32(102), stats.LastPrice)
	assert.Equal(t, uint64(3), stats.LastSeq)
	assert.Equal(t, uint64(11), stats.BidTakeVolume)
	assert.Equal(t, uint64(5), stats.AskTakeVolume)
}

func TestJournalAppendReplayRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fills.journal")
	j, err := NewJournal(JournalConfig{Path: path, Logger: zerolog.Nop()})
	require.NoError(t, err)

	want := []orders.Fill{
		makeFill(1, orders.SideBid, 100, 10),
		makeFill(2, orders.SideAsk, 99, 3),
		makeFill(3, orders.SideBid, 101, 7),
	}
	for _, fill := range want {
		require.NoError(t, j.Append(fill))
	}
	require.NoError(t, j.Close())

	// Reopen: recovery finds the last sequence number.
	j, err = NewJournal(JournalConfig{Path: path, Logger: zerolog.Nop()})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), j.LastSeq())

	var got []orders.Fill
	require.NoError(t, j.Replay(func(fill orders.Fill) error {
		got = append(got, fill)
		return nil
	}))
	require.NoError(t, j.Close())
	assert.Equal(t, want, got)
}

func TestJournalDetectsCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fills.journal")
	j, err := NewJournal(JournalConfig{Path: path, Logger: zerolog.Nop()})
	require.NoError(t, err)
	require.NoError(t, j.Append(makeFill(1, orders.SideBid, 100, 10)))
	require.NoError(t, j.Close())

	// Flip a byte inside the record body.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[8] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = NewJournal(JournalConfig{Path: path, Logger: zerolog.Nop()})
	assert.Error(t, err)
}

func TestBufferedForwardsInOrder(t *testing.T) {
	capture := &sliceReporter{}
	b := NewBuffered(capture, 64)

	want := make([]uint64, 0, 32)
	for i := uint64(1); i <= 32; i++ {
		b.Report(makeFill(i, orders.SideBid, 100, 1))
		want = append(want, i)
	}
	b.Close()

	got := make([]uint64, 0, len(capture.fills))
	for _, fill := range capture.fills {
		got = append(got, fill.Seq)
	}
	assert.Equal(t, want, got)
	assert.Zero(t, b.Dropped())
}

func TestBufferedDropsWhenFull(t *testing.T) {
	block := make(chan struct{})
	capture := &blockingReporter{release: block}
	b := NewBuffered(capture, 1)

	// One fill may be in flight in the drain goroutine and one fits the
	// buffer; everything beyond that must be dropped, not block.
	for i := uint64(1); i <= 10; i++ {
		b.Report(makeFill(i, orders.SideBid, 100, 1))
	}
	assert.GreaterOrEqual(t, b.Dropped(), uint64(8))
	close(block)
	b.Close()
}

func TestMultiFansOut(t *testing.T) {
	a := &sliceReporter{}
	c := &sliceReporter{}
	m := Multi{a, c}
	m.Report(makeFill(1, orders.SideAsk, 50, 2))
	assert.Len(t, a.fills, 1)
	assert.Len(t, c.fills, 1)
}

type sliceReporter struct {
	fills []orders.Fill
}

func (s *sliceReporter) Report(fill orders.Fill) {
	s.fills = append(s.fills, fill)
}

type blockingReporter struct {
	release chan struct{}
}

func (b *blockingReporter) Report(orders.Fill) {
	<-b.release
}
