package mongo

import (
	"context"
	"reflect"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Model is a collection bound to a session context. Inside a transaction
// its reads see the transaction's own writes.
type Model struct {
	ctx     context.Context
	session *Session
	coll    *mongo.Collection
}

func (m *Model) Set(model any) error {
	id := GetID(model)
	if id == nil || id == "" {
		return ErrNoID
	}

	_, err := m.coll.ReplaceOne(m.ctx, GetIdFilter(id), model, options.Replace().SetUpsert(true))
	return err
}

func (m *Model) Del(id any) error {
	_, err := m.coll.DeleteOne(m.ctx, GetIdFilter(id))
	return err
}

// parameter 'update' can be a structure or a Map containing the primary key
func (m *Model) Update(update any) (M, error) {
	id := GetID(update)
	if id == nil || id == "" {
		return nil, ErrNoID
	}

	raw, err := bson.Marshal(update)
	if err != nil {
		return nil, err
	}
	updateMap := Map()
	if err := bson.Unmarshal(raw, &updateMap); err != nil {
		return nil, err
	}

	res := m.coll.FindOneAndUpdate(m.ctx, GetIdFilter(id), bson.D{{Key: "$set", Value: updateMap}})
	old := Map()
	if err := res.Decode(&old); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	for k, v := range updateMap {
		old.Set(k, v)
	}
	return old, nil
}

func (m *Model) Inc(id, fields any) error {
	_, err := m.coll.UpdateByID(m.ctx, id, bson.D{{Key: "$inc", Value: fields}})
	return err
}

func (m *Model) Get(id any, projection ...any) (M, error) {
	opt := options.FindOne()
	if len(projection) > 0 {
		opt.SetProjection(projection[0])
	}
	doc := Map()
	if err := m.coll.FindOne(m.ctx, GetIdFilter(id), opt).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return doc, nil
}

func (m *Model) First(filter, sort any, projection ...any) (M, error) {
	if filter == nil {
		filter = bson.D{}
	}

	opt := options.FindOne()
	if sort != nil {
		opt.SetSort(sort)
	}
	if len(projection) > 0 {
		opt.SetProjection(projection[0])
	}

	var v M
	if err := m.coll.FindOne(m.ctx, filter, opt).Decode(&v); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return v, nil
}

func (m *Model) Unmarshal(id, model any, projection ...any) error {
	opt := options.FindOne()
	if len(projection) > 0 {
		opt.SetProjection(projection[0])
	}

	err := m.coll.FindOne(m.ctx, GetIdFilter(id), opt).Decode(model)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrRecordNotFound
	}
	return err
}

// Count falls back to the collection metadata count for an empty filter,
// except inside a transaction where only CountDocuments is allowed.
func (m *Model) Count(filter any) (int64, error) {
	if isEmptyFilter(filter) {
		if !m.session.InTransaction() {
			return m.coll.EstimatedDocumentCount(m.ctx)
		}
		filter = bson.D{}
	}
	return m.coll.CountDocuments(m.ctx, filter)
}

func isEmptyFilter(filter any) bool {
	val := reflect.ValueOf(filter)
	switch val.Kind() {
	case reflect.Invalid:
		return true
	case reflect.Map, reflect.Slice, reflect.Array:
		return val.Len() < 1
	}
	return false
}

func (m *Model) Has(id any) (bool, error) {
	count, err := m.coll.CountDocuments(m.ctx, GetIdFilter(id), options.Count().SetLimit(1))
	return count > 0, err
}

func (m *Model) Find(filter, sort any, limit int64, projection ...any) ([]M, error) {
	if filter == nil {
		filter = bson.D{}
	}
	opt := options.Find()
	if sort != nil {
		opt.SetSort(sort)
	}
	if limit > 0 {
		opt.SetLimit(limit)
	}
	if len(projection) > 0 {
		opt.SetProjection(projection[0])
	}

	cur, err := m.coll.Find(m.ctx, filter, opt)
	if err != nil {
		return nil, err
	}
	var list []M
	if err := cur.All(m.ctx, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func NewModel(ctx context.Context, s *Session, model any) *Model {
	modelName := GetModelName(model)
	if modelName == "" {
		panic(ErrInvalidModelName)
	}

	return &Model{ctx: ctx, session: s, coll: s.db.Collection(modelName)}
}
