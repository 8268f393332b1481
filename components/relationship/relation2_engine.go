package relationship

import (
	"context"
	"fmt"
	"sort"
	"time"

	"linkup/apperr"
	"linkup/components/notification"
	"linkup/store"
	"linkup/utils"
)

// DirectRooms is the slice of the room engine the accept transition
// needs.
type DirectRooms interface {
	EnsureDirectRoom(ctx context.Context, aUID, bUID string) (string, error)
}

// Engine owns the friend-request lifecycle and the derived connection
// graph. Every operation takes explicit actor ids; there is no ambient
// current-user context.
type Engine struct {
	repo   *Repo
	rooms  DirectRooms
	fanout *notification.Fanout
}

func NewEngine(records store.Records, rooms DirectRooms, fanout *notification.Fanout) *Engine {
	return &Engine{
		repo:   NewRepo(records),
		rooms:  rooms,
		fanout: fanout,
	}
}

// SendRequest creates the pending request record under its deterministic
// id. Re-sending while pending returns the existing request unchanged.
func (e *Engine) SendRequest(ctx context.Context, fromUID, toUID, fromName, toName string) (*FriendRequest, error) {
	if fromUID == "" || toUID == "" {
		return nil, apperr.Validation("user id can not empty")
	}
	if fromUID == toUID {
		return nil, apperr.Validation("can not send friend request to yourself")
	}

	pairKey := utils.PairKey(fromUID, toUID)
	if _, err := e.repo.Friendship(ctx, pairKey); err == nil {
		return nil, apperr.Conflict("already connected")
	} else if !apperr.IsNotFound(err) {
		return nil, err
	}

	if _, err := e.repo.Request(ctx, utils.RequestID(toUID, fromUID)); err == nil {
		return nil, apperr.Conflict("this user already sent you a friend request")
	} else if !apperr.IsNotFound(err) {
		return nil, err
	}

	req := &FriendRequest{
		ID:        utils.RequestID(fromUID, toUID),
		From:      fromUID,
		FromName:  e.resolveName(ctx, fromUID, fromName),
		To:        toUID,
		ToName:    e.resolveName(ctx, toUID, toName),
		CreatedAt: time.Now().UTC(),
	}

	err := e.repo.CreateRequest(ctx, req)
	if apperr.IsConflict(err) {
		// already pending, idempotent no-op success
		return e.repo.Request(ctx, req.ID)
	}
	if err != nil {
		return nil, err
	}

	e.fanout.Publish(notification.Event{
		UserID:  toUID,
		Type:    notification.TypeFriendRequest,
		FromID:  fromUID,
		Message: fmt.Sprintf("%s sent you a friend request", req.FromName),
	})
	return req, nil
}

// AcceptRequest turns a pending request into a friendship, provisions the
// direct chat room and notifies the original sender. The friendship
// record is written first: if a crash lands between the two writes the
// stale request is detectable and gets repaired on the next accept.
func (e *Engine) AcceptRequest(ctx context.Context, currentUID, fromUID string) (string, error) {
	if currentUID == "" || fromUID == "" {
		return "", apperr.Validation("user id can not empty")
	}

	reqID := utils.RequestID(fromUID, currentUID)
	req, err := e.repo.Request(ctx, reqID)
	if err != nil {
		return "", err
	}

	fs := &Friendship{
		ID:      utils.PairKey(currentUID, fromUID),
		Members: sortedPair(currentUID, fromUID),
		Since:   time.Now().UTC(),
	}
	err = e.repo.CreateFriendship(ctx, fs)
	if apperr.IsConflict(err) {
		Logger.Info("friendship already recorded, repairing stale request", "pair", fs.ID)
	} else if err != nil {
		return "", err
	}

	if err := e.repo.DeleteRequest(ctx, reqID); err != nil && !apperr.IsNotFound(err) {
		// friendship is recorded but the request record remains; the pair
		// is inconsistent until the next accept or send repairs it
		Logger.Error(err, "request cleanup failed after friendship write", "request", reqID)
		return "", err
	}

	roomID, err := e.rooms.EnsureDirectRoom(ctx, currentUID, fromUID)
	if err != nil {
		return "", err
	}

	e.fanout.Publish(notification.Event{
		UserID:  fromUID,
		Type:    notification.TypeRequestAccepted,
		FromID:  currentUID,
		Message: fmt.Sprintf("%s accepted your friend request", req.ToName),
	})
	return roomID, nil
}

// DeclineRequest removes the pending request. No room is created, no
// notification is sent, and the pair may request again later.
func (e *Engine) DeclineRequest(ctx context.Context, currentUID, fromUID string) error {
	if currentUID == "" || fromUID == "" {
		return apperr.Validation("user id can not empty")
	}

	reqID := utils.RequestID(fromUID, currentUID)
	if _, err := e.repo.Request(ctx, reqID); err != nil {
		return err
	}
	return e.repo.DeleteRequest(ctx, reqID)
}

// RemoveConnection drops the friendship. Existing chat rooms are left
// alone: rooms persist independently of friendship status.
func (e *Engine) RemoveConnection(ctx context.Context, aUID, bUID string) error {
	if aUID == "" || bUID == "" {
		return apperr.Validation("user id can not empty")
	}
	if aUID == bUID {
		return apperr.Validation("ids must name two different users")
	}
	return e.repo.DeleteFriendship(ctx, utils.PairKey(aUID, bUID))
}

// MarkIncomingSeen resets the pending-request badge for a user. Seen is
// distinct from notification read state.
func (e *Engine) MarkIncomingSeen(ctx context.Context, uid string) error {
	if uid == "" {
		return apperr.Validation("uid can not empty")
	}

	requests, err := e.repo.RequestsTo(ctx, uid)
	if err != nil {
		return err
	}
	for _, req := range requests {
		if req.Seen {
			continue
		}
		if err := e.repo.MarkRequestSeen(ctx, req.ID); err != nil && !apperr.IsNotFound(err) {
			return err
		}
	}
	return nil
}

// Relation reports the state of the pair from aUID's point of view.
func (e *Engine) Relation(ctx context.Context, aUID, bUID string) (Relation, error) {
	if aUID == "" || bUID == "" {
		return RelationNone, apperr.Validation("user id can not empty")
	}

	if _, err := e.repo.Friendship(ctx, utils.PairKey(aUID, bUID)); err == nil {
		return RelationFriends, nil
	} else if !apperr.IsNotFound(err) {
		return RelationNone, err
	}

	if _, err := e.repo.Request(ctx, utils.RequestID(aUID, bUID)); err == nil {
		return RelationRequested, nil
	} else if !apperr.IsNotFound(err) {
		return RelationNone, err
	}

	if _, err := e.repo.Request(ctx, utils.RequestID(bUID, aUID)); err == nil {
		return RelationIncoming, nil
	} else if !apperr.IsNotFound(err) {
		return RelationNone, err
	}

	return RelationNone, nil
}

func (e *Engine) ListIncoming(ctx context.Context, uid string) ([]*FriendRequest, error) {
	return e.repo.RequestsTo(ctx, uid)
}

func (e *Engine) ListSent(ctx context.Context, uid string) ([]*FriendRequest, error) {
	return e.repo.RequestsFrom(ctx, uid)
}

// ListFriends joins the user's friendships with the peers' profiles,
// newest connection first.
func (e *Engine) ListFriends(ctx context.Context, uid string) ([]*Friend, error) {
	if uid == "" {
		return nil, apperr.Validation("uid can not empty")
	}

	friendships, err := e.repo.FriendshipsOf(ctx, uid)
	if err != nil {
		return nil, err
	}

	friends := []*Friend{}
	for _, fs := range friendships {
		peer := fs.PeerOf(uid)
		friend := &Friend{UID: peer, Name: "Unknown User", Since: fs.Since}
		if profile, err := e.repo.Profile(ctx, peer); err == nil {
			friend.Name = profile.Name
			friend.Email = profile.Email
		}
		friends = append(friends, friend)
	}
	sort.SliceStable(friends, func(i, j int) bool {
		return friends[i].Since.After(friends[j].Since)
	})
	return friends, nil
}

func (e *Engine) WatchIncoming(uid string) (<-chan []*FriendRequest, store.CancelFunc) {
	return store.Stream(e.repo.Records(), []string{store.FriendRequests}, func() ([]*FriendRequest, error) {
		return e.ListIncoming(context.Background(), uid)
	})
}

func (e *Engine) WatchSent(uid string) (<-chan []*FriendRequest, store.CancelFunc) {
	return store.Stream(e.repo.Records(), []string{store.FriendRequests}, func() ([]*FriendRequest, error) {
		return e.ListSent(context.Background(), uid)
	})
}

func (e *Engine) WatchFriends(uid string) (<-chan []*Friend, store.CancelFunc) {
	return store.Stream(e.repo.Records(), []string{store.Friendships, store.Users}, func() ([]*Friend, error) {
		return e.ListFriends(context.Background(), uid)
	})
}

func (e *Engine) GetProfile(ctx context.Context, uid string) (*Profile, error) {
	return e.repo.Profile(ctx, uid)
}

func (e *Engine) SaveProfile(ctx context.Context, p *Profile) error {
	if p.UID == "" {
		return apperr.Validation("uid can not empty")
	}
	if ok, err := utils.IsValidName(p.Name); !ok {
		return apperr.Validation(err.Error())
	}
	if p.Email != "" && !utils.IsValidEmail(p.Email) {
		return apperr.Validation("email is not valid")
	}
	return e.repo.SaveProfile(ctx, p)
}

func (e *Engine) resolveName(ctx context.Context, uid, provided string) string {
	if provided != "" {
		return provided
	}
	if profile, err := e.repo.Profile(ctx, uid); err == nil && profile.Name != "" {
		return profile.Name
	}
	return "Unknown User"
}
