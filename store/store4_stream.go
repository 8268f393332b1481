package store

import (
	"sync"
	"time"

	"linkup/utils"

	"github.com/bep/debounce"
)

// CancelFunc releases a live subscription. Callers must invoke it on
// teardown to stop deliveries and free the hub slot.
type CancelFunc func()

// streamDebounce coalesces bursts of record events into one snapshot
// recompute.
const streamDebounce = 40 * time.Millisecond

// Stream converts change events on the given collections into a push
// channel of full snapshots produced by fetch. Each delivery replaces the
// previous one: the channel holds at most the latest snapshot, a slow
// consumer skips intermediate states instead of lagging behind. An initial
// snapshot is delivered without waiting for a change.
func Stream[T any](rec Records, collections []string, fetch func() (T, error)) (<-chan T, CancelFunc) {
	out := make(chan T, 1)
	done := make(chan struct{})

	var emitMu sync.Mutex
	emit := func() {
		emitMu.Lock()
		defer emitMu.Unlock()

		select {
		case <-done:
			return
		default:
		}

		snap, err := fetch()
		if err != nil {
			utils.Log().Error(err, "stream snapshot fetch failed")
			return
		}

		for {
			select {
			case out <- snap:
				return
			default:
				// drop the stale pending snapshot
				select {
				case <-out:
				default:
				}
			}
		}
	}

	deb := debounce.New(streamDebounce)
	cancels := make([]func(), 0, len(collections))
	for _, collection := range collections {
		events, cancel := rec.Watch(collection)
		cancels = append(cancels, cancel)

		go func(events <-chan Event) {
			for {
				select {
				case <-done:
					return
				case _, ok := <-events:
					if !ok {
						return
					}
					deb(emit)
				}
			}
		}(events)
	}

	go emit()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			for _, c := range cancels {
				c()
			}
		})
	}
	return out, CancelFunc(cancel)
}
