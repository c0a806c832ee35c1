package ordering

import (
	"context"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/require"

	"github.com/arvo-net/arvo/libs/log"
	"github.com/arvo-net/arvo/types"
)

func TestLocalSequencesSubmissions(t *testing.T) {
	defer leaktest.Check(t)()

	ctx, cancel := context.WithCancel(context.Background())

	l := NewLocal(log.NewNopLogger())
	require.NoError(t, l.Start(ctx))
	defer l.Wait()
	defer cancel()

	txs := []*types.Transaction{
		{Code: nil, Diff: types.Diff{{Key: []byte("a")}}},
		{Code: nil, Diff: types.Diff{{Key: []byte("b")}}},
		{Code: nil, Diff: types.Diff{{Key: []byte("c")}}},
	}
	for _, tx := range txs {
		require.NoError(t, l.SubmitItem(ctx, Item{Tx: tx}))
	}

	// All three were queued before a cut, so they arrive in one block, in
	// submission order.
	select {
	case block := <-l.Blocks():
		require.EqualValues(t, 1, block.Height)
		require.False(t, block.Time.IsZero())
		require.Len(t, block.Items, 3)
		for i, item := range block.Items {
			require.Equal(t, txs[i], item.Tx)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for block")
	}
}

func TestLocalHeightsIncrease(t *testing.T) {
	defer leaktest.Check(t)()

	ctx, cancel := context.WithCancel(context.Background())

	l := NewLocal(log.NewNopLogger())
	require.NoError(t, l.Start(ctx))
	defer l.Wait()
	defer cancel()

	var lastHeight int64
	for i := 0; i < 3; i++ {
		require.NoError(t, l.SubmitItem(ctx, Item{Commitment: &types.Commitment{Hash: []byte{byte(i)}}}))

		select {
		case block := <-l.Blocks():
			require.Greater(t, block.Height, lastHeight)
			lastHeight = block.Height
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for block")
		}
	}
}

func TestLocalStopClosesBlocks(t *testing.T) {
	defer leaktest.Check(t)()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewLocal(log.NewNopLogger())
	require.NoError(t, l.Start(ctx))

	cancel()
	l.Wait()

	_, ok := <-l.Blocks()
	require.False(t, ok, "blocks channel closes on stop")
}

func TestLocalQueueFull(t *testing.T) {
	l := NewLocal(log.NewNopLogger())

	// Not started: nothing drains the queue.
	ctx := context.Background()
	var err error
	for i := 0; i <= localQueueCapacity; i++ {
		err = l.SubmitItem(ctx, Item{})
		if err != nil {
			break
		}
	}
	require.ErrorIs(t, err, ErrQueueFull)
}
