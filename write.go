package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// WriteOperation is one root-level write of a flush. Execute runs it with a
// session-bound ctx and returns the number of affected documents.
type WriteOperation interface {
	Collection() string
	Execute(ctx context.Context, db *mongo.Database) (int64, error)
}

type writeFunc struct {
	coll string
	fn   func(ctx context.Context, coll *mongo.Collection) (int64, error)
}

func (w *writeFunc) Collection() string { return w.coll }

func (w *writeFunc) Execute(ctx context.Context, db *mongo.Database) (int64, error) {
	return w.fn(ctx, db.Collection(w.coll))
}

// Write builds a WriteOperation from an arbitrary function over a collection.
func Write(coll string, fn func(ctx context.Context, coll *mongo.Collection) (int64, error)) WriteOperation {
	return &writeFunc{coll: coll, fn: fn}
}

func InsertOne(coll string, doc any) WriteOperation {
	return Write(coll, func(ctx context.Context, c *mongo.Collection) (int64, error) {
		if _, err := c.InsertOne(ctx, doc); err != nil {
			return 0, err
		}
		return 1, nil
	})
}

// InsertModel inserts model into the collection named after its type.
func InsertModel(model any) WriteOperation {
	return InsertOne(GetModelName(model), model)
}

// ReplaceOne replaces the document with the given id, inserting it when upsert is set.
func ReplaceOne(coll string, id, doc any, upsert bool) WriteOperation {
	return Write(coll, func(ctx context.Context, c *mongo.Collection) (int64, error) {
		res, err := c.ReplaceOne(ctx, GetIdFilter(id), doc, options.Replace().SetUpsert(upsert))
		if err != nil {
			return 0, err
		}
		return res.ModifiedCount + res.UpsertedCount, nil
	})
}

func UpdateOne(coll string, filter, update any) WriteOperation {
	return Write(coll, func(ctx context.Context, c *mongo.Collection) (int64, error) {
		res, err := c.UpdateOne(ctx, filter, update)
		if err != nil {
			return 0, err
		}
		return res.ModifiedCount, nil
	})
}

// SetFields applies $set of fields to the document with the given id.
func SetFields(coll string, id any, fields any) WriteOperation {
	return UpdateOne(coll, GetIdFilter(id), bson.D{{Key: "$set", Value: fields}})
}

func DeleteOne(coll string, filter any) WriteOperation {
	return Write(coll, func(ctx context.Context, c *mongo.Collection) (int64, error) {
		res, err := c.DeleteOne(ctx, filter)
		if err != nil {
			return 0, err
		}
		return res.DeletedCount, nil
	})
}
