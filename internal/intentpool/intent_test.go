package intentpool

import (
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newListedIntent(expiry time.Time) *WrappedIntent {
	wi := &WrappedIntent{timestamp: time.Now().UTC()}
	wi.intent.Expiry = expiry
	return wi
}

func TestWrappedIntentListInsert(t *testing.T) {
	list := NewWrappedIntentList(func(wi1, wi2 *WrappedIntent) bool {
		return wi1.intent.Expiry.After(wi2.intent.Expiry) ||
			wi1.intent.Expiry.Equal(wi2.intent.Expiry)
	})

	rng := rand.New(rand.NewSource(1))
	base := time.Now().UTC()

	var inserted []*WrappedIntent
	for i := 0; i < 100; i++ {
		wi := newListedIntent(base.Add(time.Duration(rng.Intn(10000)) * time.Millisecond))
		list.Insert(wi)
		inserted = append(inserted, wi)
	}
	require.Equal(t, len(inserted), list.Size())

	require.True(t, sort.SliceIsSorted(list.intents, func(i, j int) bool {
		return list.intents[i].intent.Expiry.Before(list.intents[j].intent.Expiry)
	}), "expiry index is sorted soonest first")
}

func TestWrappedIntentListRemove(t *testing.T) {
	list := NewWrappedIntentList(func(wi1, wi2 *WrappedIntent) bool {
		return wi1.intent.Expiry.After(wi2.intent.Expiry) ||
			wi1.intent.Expiry.Equal(wi2.intent.Expiry)
	})

	rng := rand.New(rand.NewSource(2))
	base := time.Now().UTC()

	var inserted []*WrappedIntent
	for i := 0; i < 50; i++ {
		wi := newListedIntent(base.Add(time.Duration(rng.Intn(1000)) * time.Millisecond))
		list.Insert(wi)
		inserted = append(inserted, wi)
	}

	rng.Shuffle(len(inserted), func(i, j int) {
		inserted[i], inserted[j] = inserted[j], inserted[i]
	})
	for _, wi := range inserted {
		list.Remove(wi)
	}
	require.Zero(t, list.Size())
}

func TestWrappedIntentListFront(t *testing.T) {
	list := NewWrappedIntentList(func(wi1, wi2 *WrappedIntent) bool {
		return wi1.intent.Expiry.After(wi2.intent.Expiry) ||
			wi1.intent.Expiry.Equal(wi2.intent.Expiry)
	})
	require.Nil(t, list.Front())

	base := time.Now().UTC()
	late := newListedIntent(base.Add(time.Hour))
	early := newListedIntent(base)

	list.Insert(late)
	list.Insert(early)
	require.Same(t, early, list.Front(), "front is the soonest expiry")

	list.Remove(early)
	require.Same(t, late, list.Front())
}

func TestWrappedIntentListReset(t *testing.T) {
	list := NewWrappedIntentList(func(wi1, wi2 *WrappedIntent) bool {
		return wi1.intent.Expiry.After(wi2.intent.Expiry)
	})

	list.Insert(newListedIntent(time.Now()))
	require.Equal(t, 1, list.Size())
	list.Reset()
	require.Zero(t, list.Size())
}
