package store

import (
	"context"

	"github.com/ecociel/remind/lib/domain"
	log "github.com/sirupsen/logrus"
)

// Subscription delivers full task list snapshots on C. Only the latest
// snapshot is kept: a snapshot nobody has read yet is replaced by a newer one.
// C is closed once the subscription ends.
type Subscription struct {
	C <-chan []domain.Task

	out    chan []domain.Task
	kick   chan struct{}
	query  func(context.Context) ([]domain.Task, error)
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newSubscription(ctx context.Context, query func(context.Context) ([]domain.Task, error)) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		out:    make(chan []domain.Task, 1),
		kick:   make(chan struct{}, 1),
		query:  query,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	sub.C = sub.out
	sub.kick <- struct{}{}
	return sub
}

// Close ends the subscription and waits until C is closed.
func (sub *Subscription) Close() {
	sub.cancel()
	<-sub.done
}

func (sub *Subscription) refresh() {
	select {
	case sub.kick <- struct{}{}:
	default:
	}
}

func (sub *Subscription) run() {
	defer close(sub.done)
	defer close(sub.out)
	for {
		select {
		case <-sub.ctx.Done():
			return
		case <-sub.kick:
			tasks, err := sub.query(sub.ctx)
			if err != nil {
				if sub.ctx.Err() != nil {
					return
				}
				log.Printf("live task query: %v", err)
				continue
			}
			if tasks == nil {
				tasks = []domain.Task{}
			}
			sub.deliver(tasks)
		}
	}
}

// deliver never blocks: run is the only sender, so after draining a stale
// snapshot there is room for the new one.
func (sub *Subscription) deliver(tasks []domain.Task) {
	select {
	case <-sub.out:
	default:
	}
	sub.out <- tasks
}
