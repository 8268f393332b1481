package relationship

import (
	"context"
	"sort"
	"time"

	"linkup/apperr"
	"linkup/store"
)

// Repo is the typed access layer over the record store for requests,
// friendships and user profiles.
type Repo struct {
	records store.Records
}

func NewRepo(records store.Records) *Repo {
	return &Repo{records: records}
}

func (r *Repo) Request(ctx context.Context, id string) (*FriendRequest, error) {
	doc, err := r.records.Get(ctx, store.FriendRequests, id)
	if err != nil {
		return nil, err
	}
	req := &FriendRequest{}
	if err := store.Decode(doc, req); err != nil {
		return nil, apperr.Internal("decode friend request", err)
	}
	return req, nil
}

func (r *Repo) CreateRequest(ctx context.Context, req *FriendRequest) error {
	return r.records.Create(ctx, store.FriendRequests, req.ID, req)
}

func (r *Repo) DeleteRequest(ctx context.Context, id string) error {
	return r.records.Delete(ctx, store.FriendRequests, id)
}

func (r *Repo) MarkRequestSeen(ctx context.Context, id string) error {
	return r.records.Update(ctx, store.FriendRequests, id, func(doc store.Document) (store.Document, error) {
		doc["seen"] = true
		return doc, nil
	})
}

func (r *Repo) RequestsTo(ctx context.Context, uid string) ([]*FriendRequest, error) {
	return r.findRequests(ctx, store.Query{Eq: map[string]interface{}{"to": uid}})
}

func (r *Repo) RequestsFrom(ctx context.Context, uid string) ([]*FriendRequest, error) {
	return r.findRequests(ctx, store.Query{Eq: map[string]interface{}{"from": uid}})
}

func (r *Repo) findRequests(ctx context.Context, q store.Query) ([]*FriendRequest, error) {
	docs, err := r.records.Find(ctx, store.FriendRequests, q)
	if err != nil {
		return nil, err
	}

	requests := []*FriendRequest{}
	for _, doc := range docs {
		req := &FriendRequest{}
		if err := store.Decode(doc, req); err != nil {
			return nil, apperr.Internal("decode friend request", err)
		}
		requests = append(requests, req)
	}
	sort.SliceStable(requests, func(i, j int) bool {
		return requests[i].CreatedAt.After(requests[j].CreatedAt)
	})
	return requests, nil
}

func (r *Repo) Friendship(ctx context.Context, pairKey string) (*Friendship, error) {
	doc, err := r.records.Get(ctx, store.Friendships, pairKey)
	if err != nil {
		return nil, err
	}
	fs := &Friendship{}
	if err := store.Decode(doc, fs); err != nil {
		return nil, apperr.Internal("decode friendship", err)
	}
	return fs, nil
}

func (r *Repo) CreateFriendship(ctx context.Context, fs *Friendship) error {
	return r.records.Create(ctx, store.Friendships, fs.ID, fs)
}

func (r *Repo) DeleteFriendship(ctx context.Context, pairKey string) error {
	return r.records.Delete(ctx, store.Friendships, pairKey)
}

func (r *Repo) FriendshipsOf(ctx context.Context, uid string) ([]*Friendship, error) {
	docs, err := r.records.Find(ctx, store.Friendships, store.Query{
		Contains: map[string]interface{}{"members": uid},
	})
	if err != nil {
		return nil, err
	}

	friendships := []*Friendship{}
	for _, doc := range docs {
		fs := &Friendship{}
		if err := store.Decode(doc, fs); err != nil {
			return nil, apperr.Internal("decode friendship", err)
		}
		friendships = append(friendships, fs)
	}
	return friendships, nil
}

func (r *Repo) Profile(ctx context.Context, uid string) (*Profile, error) {
	doc, err := r.records.Get(ctx, store.Users, uid)
	if err != nil {
		return nil, err
	}
	p := &Profile{}
	if err := store.Decode(doc, p); err != nil {
		return nil, apperr.Internal("decode profile", err)
	}
	return p, nil
}

func (r *Repo) SaveProfile(ctx context.Context, p *Profile) error {
	p.UpdatedAt = time.Now().UTC()
	fields, err := store.Encode(p)
	if err != nil {
		return apperr.Internal("encode profile", err)
	}
	return r.records.Set(ctx, store.Users, p.UID, fields, true)
}

// Records exposes the underlying store for snapshot streams.
func (r *Repo) Records() store.Records {
	return r.records
}
