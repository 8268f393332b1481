package store

import (
	"context"
	"fmt"

	"linkup/apperr"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRecords is the MongoDB backend. Writes are guarded on the rev the
// caller read, so a lost update surfaces as a retryable conflict instead
// of being silently overwritten.
type MongoRecords struct {
	db  *mongo.Database
	hub *Hub
}

func NewMongoRecords(db *mongo.Database) *MongoRecords {
	return &MongoRecords{db: db, hub: NewHub()}
}

// EnsureIndexes creates the secondary indexes the engines query on.
func (r *MongoRecords) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		FriendRequests: {
			{Keys: bson.M{"to": 1}},
			{Keys: bson.M{"from": 1}},
		},
		Friendships: {
			{Keys: bson.M{"members": 1}},
		},
		Notifications: {
			{Keys: bson.M{"user": 1}},
		},
		ChatRooms: {
			{Keys: bson.M{"members": 1}},
		},
		Messages: {
			{Keys: bson.M{"room": 1}},
		},
	}

	for collection, models := range indexes {
		if _, err := r.db.Collection(collection).Indexes().CreateMany(ctx, models); err != nil {
			return err
		}
	}
	return nil
}

func (r *MongoRecords) Get(ctx context.Context, collection, id string) (Document, error) {
	var doc Document
	err := r.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apperr.NotFound(fmt.Sprintf("%s/%s does not exist", collection, id))
		}
		return nil, apperr.Internal("read record", err)
	}
	return doc, nil
}

func (r *MongoRecords) Create(ctx context.Context, collection, id string, v interface{}) error {
	doc, err := Encode(v)
	if err != nil {
		return apperr.Internal("encode record", err)
	}
	doc["_id"] = id
	doc["rev"] = int64(1)

	if _, err := r.db.Collection(collection).InsertOne(ctx, doc); err != nil {
		if er, ok := err.(mongo.WriteException); ok && len(er.WriteErrors) > 0 && er.WriteErrors[0].Code == 11000 {
			return apperr.Conflict(fmt.Sprintf("%s/%s already exists", collection, id))
		}
		return apperr.Internal("insert record", err)
	}

	r.hub.Publish(Event{Collection: collection, ID: id})
	return nil
}

func (r *MongoRecords) Set(ctx context.Context, collection, id string, fields Document, merge bool) error {
	if !merge {
		err := r.Update(ctx, collection, id, func(Document) (Document, error) {
			return cloneDoc(fields), nil
		})
		if apperr.IsNotFound(err) {
			return r.Create(ctx, collection, id, fields)
		}
		return err
	}

	update := bson.M{"$set": fields, "$inc": bson.M{"rev": 1}}
	opts := options.Update().SetUpsert(true)
	if _, err := r.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": id}, update, opts); err != nil {
		return apperr.Internal("merge record", err)
	}

	r.hub.Publish(Event{Collection: collection, ID: id})
	return nil
}

func (r *MongoRecords) Update(ctx context.Context, collection, id string, mutate func(Document) (Document, error)) error {
	for attempt := 0; attempt < updateTries; attempt++ {
		cur, err := r.Get(ctx, collection, id)
		if err != nil {
			return err
		}
		rev := docRev(cur)

		next, err := mutate(cur)
		if err != nil {
			return err
		}
		next = cloneDoc(next)
		next["_id"] = id
		next["rev"] = rev + 1

		res, err := r.db.Collection(collection).ReplaceOne(ctx, bson.M{"_id": id, "rev": rev}, next)
		if err != nil {
			return apperr.Internal("replace record", err)
		}
		if res.MatchedCount == 1 {
			r.hub.Publish(Event{Collection: collection, ID: id})
			return nil
		}
	}
	return apperr.Conflict(fmt.Sprintf("update of %s/%s kept losing the write race", collection, id))
}

func (r *MongoRecords) Delete(ctx context.Context, collection, id string) error {
	res, err := r.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return apperr.Internal("delete record", err)
	}
	if res.DeletedCount == 0 {
		return apperr.NotFound(fmt.Sprintf("%s/%s does not exist", collection, id))
	}

	r.hub.Publish(Event{Collection: collection, ID: id, Deleted: true})
	return nil
}

func (r *MongoRecords) Find(ctx context.Context, collection string, q Query) ([]Document, error) {
	filter := bson.M{}
	for field, want := range q.Eq {
		filter[field] = want
	}
	// equality against an array field is mongo's array-contains
	for field, want := range q.Contains {
		filter[field] = want
	}

	cursor, err := r.db.Collection(collection).Find(ctx, filter)
	if err != nil {
		return nil, apperr.Internal("find records", err)
	}
	defer cursor.Close(ctx)

	results := []Document{}
	for cursor.Next(ctx) {
		doc := Document{}
		if err := cursor.Decode(&doc); err != nil {
			return nil, apperr.Internal("decode record", err)
		}
		results = append(results, doc)
	}
	if err := cursor.Err(); err != nil {
		return nil, apperr.Internal("iterate records", err)
	}
	return results, nil
}

func (r *MongoRecords) Watch(collection string) (<-chan Event, func()) {
	return r.hub.Watch(collection)
}
