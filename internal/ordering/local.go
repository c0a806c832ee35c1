package ordering

import (
	"context"
	"errors"
	"time"

	"github.com/arvo-net/arvo/libs/log"
	"github.com/arvo-net/arvo/libs/service"
)

const (
	// localQueueCapacity bounds the submission queue. Submissions beyond it
	// fail fast instead of blocking the caller indefinitely.
	localQueueCapacity = 4096

	// localBatchInterval is how often the sequencer cuts a block from the
	// queued items.
	localBatchInterval = 100 * time.Millisecond
)

// ErrQueueFull is returned when the local sequencer cannot accept more
// submissions.
var ErrQueueFull = errors.New("ordering queue is full")

// Local is a single-node FIFO sequencer standing in for the external
// ordering service. It batches submitted items into blocks at a fixed
// interval and assigns monotonically increasing heights.
type Local struct {
	service.BaseService
	logger log.Logger

	queue  chan Item
	blocks chan Block

	height int64
	done   chan struct{}
}

var _ Service = (*Local)(nil)

// NewLocal returns an unstarted local sequencer.
func NewLocal(logger log.Logger) *Local {
	l := &Local{
		logger: logger,
		queue:  make(chan Item, localQueueCapacity),
		blocks: make(chan Block, 1),
		done:   make(chan struct{}),
	}
	l.BaseService = *service.NewBaseService(logger, "ordering.Local", l)
	return l
}

// SubmitItem implements Service.
func (l *Local) SubmitItem(ctx context.Context, item Item) error {
	select {
	case l.queue <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// Blocks implements Service.
func (l *Local) Blocks() <-chan Block {
	return l.blocks
}

// OnStart implements service.Implementation.
func (l *Local) OnStart(ctx context.Context) error {
	go l.sequenceRoutine(ctx)
	return nil
}

// OnStop implements service.Implementation.
func (l *Local) OnStop() {
	close(l.done)
}

func (l *Local) sequenceRoutine(ctx context.Context) {
	ticker := time.NewTicker(localBatchInterval)
	defer ticker.Stop()
	defer close(l.blocks)

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.done:
			return
		case <-ticker.C:
			block := l.cutBlock()
			if block == nil {
				continue
			}

			select {
			case l.blocks <- *block:
			case <-ctx.Done():
				return
			case <-l.done:
				return
			}
		}
	}
}

// cutBlock drains currently queued items into a block, or returns nil when
// nothing is queued. Blocks are finite even under sustained submission: only
// items queued before the cut are included.
func (l *Local) cutBlock() *Block {
	n := len(l.queue)
	if n == 0 {
		return nil
	}

	items := make([]Item, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, <-l.queue)
	}

	l.height++
	return &Block{
		Height: l.height,
		Time:   time.Now().UTC(),
		Items:  items,
	}
}
