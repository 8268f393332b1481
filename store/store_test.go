package store

import (
	"context"
	"testing"
	"time"

	"linkup/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type profile struct {
	Name  string `bson:"name"`
	Email string `bson:"email"`
}

func Test_CreateIsIdempotencyGuard(t *testing.T) {
	asserts := assert.New(t)
	rec := NewMemRecords()
	ctx := context.Background()

	err := rec.Create(ctx, Users, "u1", &profile{Name: "Alice", Email: "alice@mail.com"})
	asserts.Nil(err)

	// second create under the same deterministic id must report conflict
	err = rec.Create(ctx, Users, "u1", &profile{Name: "Alice again"})
	asserts.True(apperr.IsConflict(err))

	doc, err := rec.Get(ctx, Users, "u1")
	asserts.Nil(err)
	asserts.Equal("Alice", doc["name"])
	asserts.Equal(int64(1), docRev(doc))
}

func Test_GetUnknownIsNotFound(t *testing.T) {
	asserts := assert.New(t)
	rec := NewMemRecords()

	_, err := rec.Get(context.Background(), Users, "nope")
	asserts.True(apperr.IsNotFound(err))
}

func Test_SetMergeKeepsOtherFields(t *testing.T) {
	asserts := assert.New(t)
	rec := NewMemRecords()
	ctx := context.Background()

	require.Nil(t, rec.Create(ctx, Users, "u1", &profile{Name: "Alice", Email: "alice@mail.com"}))
	require.Nil(t, rec.Set(ctx, Users, "u1", Document{"name": "Alice B"}, true))

	doc, err := rec.Get(ctx, Users, "u1")
	asserts.Nil(err)
	asserts.Equal("Alice B", doc["name"])
	asserts.Equal("alice@mail.com", doc["email"])
	asserts.Equal(int64(2), docRev(doc))
}

func Test_UpdateRetriesOnLostWriteRace(t *testing.T) {
	asserts := assert.New(t)
	rec := NewMemRecords()
	ctx := context.Background()

	require.Nil(t, rec.Create(ctx, Users, "u1", &profile{Name: "Alice"}))

	calls := 0
	err := rec.Update(ctx, Users, "u1", func(doc Document) (Document, error) {
		calls++
		if calls == 1 {
			// a concurrent writer lands between our read and our commit
			require.Nil(t, rec.Set(ctx, Users, "u1", Document{"email": "raced@mail.com"}, true))
		}
		doc["name"] = "Alice C"
		return doc, nil
	})
	asserts.Nil(err)
	asserts.Equal(2, calls)

	doc, err := rec.Get(ctx, Users, "u1")
	asserts.Nil(err)
	asserts.Equal("Alice C", doc["name"])
	asserts.Equal("raced@mail.com", doc["email"])
}

func Test_UpdateSurfacesConflictWhenRetriesExhaust(t *testing.T) {
	asserts := assert.New(t)
	rec := NewMemRecords()
	ctx := context.Background()

	require.Nil(t, rec.Create(ctx, Users, "u1", &profile{Name: "Alice"}))

	err := rec.Update(ctx, Users, "u1", func(doc Document) (Document, error) {
		// lose the race on every attempt
		require.Nil(t, rec.Set(ctx, Users, "u1", Document{"email": "raced@mail.com"}, true))
		return doc, nil
	})
	asserts.True(apperr.IsConflict(err))
}

func Test_FindEqAndContains(t *testing.T) {
	asserts := assert.New(t)
	rec := NewMemRecords()
	ctx := context.Background()

	type room struct {
		Members []string `bson:"members"`
		Pair    string   `bson:"pair"`
	}
	require.Nil(t, rec.Create(ctx, ChatRooms, "r1", &room{Members: []string{"a", "b"}, Pair: "a_b"}))
	require.Nil(t, rec.Create(ctx, ChatRooms, "r2", &room{Members: []string{"a", "c"}, Pair: "a_c"}))

	docs, err := rec.Find(ctx, ChatRooms, Query{Contains: map[string]interface{}{"members": "b"}})
	asserts.Nil(err)
	asserts.Len(docs, 1)
	asserts.Equal("a_b", docs[0]["pair"])

	docs, err = rec.Find(ctx, ChatRooms, Query{Contains: map[string]interface{}{"members": "a"}})
	asserts.Nil(err)
	asserts.Len(docs, 2)

	docs, err = rec.Find(ctx, ChatRooms, Query{Eq: map[string]interface{}{"pair": "a_c"}})
	asserts.Nil(err)
	asserts.Len(docs, 1)

	docs, err = rec.Find(ctx, ChatRooms, Query{Eq: map[string]interface{}{"pair": "nope"}})
	asserts.Nil(err)
	asserts.Len(docs, 0)
}

func Test_WatchDeliversAndCancelStops(t *testing.T) {
	asserts := assert.New(t)
	rec := NewMemRecords()
	ctx := context.Background()

	events, cancel := rec.Watch(Users)

	require.Nil(t, rec.Create(ctx, Users, "u1", &profile{Name: "Alice"}))
	select {
	case e := <-events:
		asserts.Equal(Users, e.Collection)
		asserts.Equal("u1", e.ID)
		asserts.False(e.Deleted)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}

	require.Nil(t, rec.Delete(ctx, Users, "u1"))
	select {
	case e := <-events:
		asserts.True(e.Deleted)
	case <-time.After(time.Second):
		t.Fatal("no delete event delivered")
	}

	cancel()
	_, open := <-events
	asserts.False(open)
	// publishing after cancel must not panic
	require.Nil(t, rec.Create(ctx, Users, "u2", &profile{Name: "Bob"}))
}

func Test_StreamPushesReplacementSnapshots(t *testing.T) {
	asserts := assert.New(t)
	rec := NewMemRecords()
	ctx := context.Background()

	require.Nil(t, rec.Create(ctx, Users, "u1", &profile{Name: "Alice"}))

	snapshots, cancel := Stream(rec, []string{Users}, func() ([]Document, error) {
		return rec.Find(ctx, Users, Query{})
	})
	defer cancel()

	select {
	case snap := <-snapshots:
		asserts.Len(snap, 1)
	case <-time.After(time.Second):
		t.Fatal("no initial snapshot")
	}

	require.Nil(t, rec.Create(ctx, Users, "u2", &profile{Name: "Bob"}))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-snapshots:
			if len(snap) == 2 {
				return
			}
		case <-deadline:
			t.Fatal("snapshot never converged to 2 users")
		}
	}
}
