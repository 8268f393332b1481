package notification

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"linkup/apperr"
	"linkup/store"
	"linkup/utils"

	"github.com/gammazero/workerpool"
)

// Observer receives engine events. Observers run on the fanout worker
// pool, off the caller's request path.
type Observer interface {
	Name() string
	Update(event Event) error
}

type Fanout struct {
	records   store.Records
	pool      *workerpool.WorkerPool
	mu        sync.RWMutex
	observers []Observer
}

func NewFanout(records store.Records) *Fanout {
	f := &Fanout{
		records: records,
		pool:    workerpool.New(4),
	}
	f.Register(&storeObserver{fanout: f})
	return f
}

func (f *Fanout) Register(o Observer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observers = append(f.observers, o)
}

// Publish dispatches an engine event to every observer asynchronously.
func (f *Fanout) Publish(event Event) {
	f.mu.RLock()
	observers := make([]Observer, len(f.observers))
	copy(observers, f.observers)
	f.mu.RUnlock()

	for _, o := range observers {
		o := o
		f.pool.Submit(func() {
			if err := o.Update(event); err != nil {
				utils.Log().Error(err, "notification observer failed", "observer", o.Name(), "type", event.Type)
			}
		})
	}
}

// Stop drains the worker pool. Used on shutdown and by tests that need
// delivery to have settled.
func (f *Fanout) Stop() {
	f.pool.StopWait()
}

// Notify appends a stored notification entry for a user.
func (f *Fanout) Notify(ctx context.Context, event Event) (*Entry, error) {
	if event.UserID == "" {
		return nil, apperr.Validation("notification user id can not empty")
	}

	entry := &Entry{
		ID:        utils.NewCUID(),
		UserID:    event.UserID,
		Type:      event.Type,
		FromID:    event.FromID,
		Message:   event.Message,
		CreatedAt: time.Now().UTC(),
	}
	if err := f.records.Create(ctx, store.Notifications, entry.ID, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// ListInbox merges stored non-archived entries with entries synthesized
// from the user's pending incoming requests, newest first.
func (f *Fanout) ListInbox(ctx context.Context, uid string) ([]*Entry, error) {
	if uid == "" {
		return nil, apperr.Validation("uid can not empty")
	}

	stored, err := f.records.Find(ctx, store.Notifications, store.Query{
		Eq: map[string]interface{}{"user": uid},
	})
	if err != nil {
		return nil, err
	}

	entries := []*Entry{}
	for _, doc := range stored {
		entry := &Entry{}
		if err := store.Decode(doc, entry); err != nil {
			return nil, apperr.Internal("decode notification", err)
		}
		if entry.Archived {
			continue
		}
		entries = append(entries, entry)
	}

	synthesized, err := f.pendingRequestEntries(ctx, uid)
	if err != nil {
		return nil, err
	}
	entries = append(entries, synthesized...)

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	return entries, nil
}

func (f *Fanout) pendingRequestEntries(ctx context.Context, uid string) ([]*Entry, error) {
	docs, err := f.records.Find(ctx, store.FriendRequests, store.Query{
		Eq: map[string]interface{}{"to": uid},
	})
	if err != nil {
		return nil, err
	}

	entries := make([]*Entry, 0, len(docs))
	for _, doc := range docs {
		req := &incomingRequest{}
		if err := store.Decode(doc, req); err != nil {
			return nil, apperr.Internal("decode friend request", err)
		}
		entries = append(entries, &Entry{
			ID:        req.ID,
			UserID:    uid,
			Type:      TypeFriendRequest,
			FromID:    req.From,
			Message:   fmt.Sprintf("%s sent you a friend request", req.FromName),
			CreatedAt: req.CreatedAt,
			Read:      req.Seen,
		})
	}
	return entries, nil
}

// MarkRead flips one entry to read. The id may name a stored entry or a
// synthesized friend-request entry; for the latter the underlying request
// record's seen flag is the state that changes.
func (f *Fanout) MarkRead(ctx context.Context, uid, notifID string) error {
	err := f.records.Update(ctx, store.Notifications, notifID, func(doc store.Document) (store.Document, error) {
		if doc["user"] != uid {
			return nil, apperr.Permission("notification belongs to another user")
		}
		doc["read"] = true
		return doc, nil
	})
	if !apperr.IsNotFound(err) {
		return err
	}

	return f.records.Update(ctx, store.FriendRequests, notifID, func(doc store.Document) (store.Document, error) {
		if doc["to"] != uid {
			return nil, apperr.Permission("request is not addressed to this user")
		}
		doc["seen"] = true
		return doc, nil
	})
}

// MarkAllRead clears both badge sources: stored entries get read=true and
// every pending incoming request gets seen=true, so the bell and the
// request badge reset together.
func (f *Fanout) MarkAllRead(ctx context.Context, uid string) error {
	stored, err := f.records.Find(ctx, store.Notifications, store.Query{
		Eq: map[string]interface{}{"user": uid, "read": false},
	})
	if err != nil {
		return err
	}
	for _, doc := range stored {
		id, _ := doc["_id"].(string)
		err := f.records.Update(ctx, store.Notifications, id, func(doc store.Document) (store.Document, error) {
			doc["read"] = true
			return doc, nil
		})
		if err != nil && !apperr.IsNotFound(err) {
			return err
		}
	}

	requests, err := f.records.Find(ctx, store.FriendRequests, store.Query{
		Eq: map[string]interface{}{"to": uid, "seen": false},
	})
	if err != nil {
		return err
	}
	for _, doc := range requests {
		id, _ := doc["_id"].(string)
		err := f.records.Update(ctx, store.FriendRequests, id, func(doc store.Document) (store.Document, error) {
			doc["seen"] = true
			return doc, nil
		})
		if err != nil && !apperr.IsNotFound(err) {
			return err
		}
	}
	return nil
}

// Archive hides a stored entry from the inbox while keeping it in storage.
func (f *Fanout) Archive(ctx context.Context, uid, notifID string) error {
	return f.records.Update(ctx, store.Notifications, notifID, func(doc store.Document) (store.Document, error) {
		if doc["user"] != uid {
			return nil, apperr.Permission("notification belongs to another user")
		}
		doc["archived"] = true
		doc["read"] = true
		return doc, nil
	})
}

// UnreadCount reports the two badge counters.
func (f *Fanout) UnreadCount(ctx context.Context, uid string) (*Badge, error) {
	requests, err := f.records.Find(ctx, store.FriendRequests, store.Query{
		Eq: map[string]interface{}{"to": uid, "seen": false},
	})
	if err != nil {
		return nil, err
	}

	stored, err := f.records.Find(ctx, store.Notifications, store.Query{
		Eq: map[string]interface{}{"user": uid, "read": false},
	})
	if err != nil {
		return nil, err
	}

	unreadStored := 0
	for _, doc := range stored {
		if archived, _ := doc["archived"].(bool); !archived {
			unreadStored++
		}
	}

	badge := &Badge{Requests: len(requests), Notifications: unreadStored}
	badge.Total = badge.Requests + badge.Notifications
	return badge, nil
}

// WatchInbox pushes a full replacement inbox snapshot whenever stored
// notifications or pending requests change.
func (f *Fanout) WatchInbox(uid string) (<-chan []*Entry, store.CancelFunc) {
	return store.Stream(f.records, []string{store.Notifications, store.FriendRequests}, func() ([]*Entry, error) {
		return f.ListInbox(context.Background(), uid)
	})
}

// storeObserver persists observer events. Friend-request events are
// skipped: the pending request record already carries that state.
type storeObserver struct {
	fanout *Fanout
}

func (s *storeObserver) Name() string { return "store_observer" }

func (s *storeObserver) Update(event Event) error {
	if event.Type == TypeFriendRequest {
		return nil
	}
	_, err := s.fanout.Notify(context.Background(), event)
	return err
}
