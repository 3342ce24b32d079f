package mongo

import (
	"reflect"
	"strings"

	"github.com/iancoleman/strcase"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type M map[string]any

func Map() M {
	return M{}
}

func (m M) Set(key string, value any) M {
	m[key] = value
	return m
}

func (m M) Get(key string) (any, bool) {
	v, ok := m[key]
	return v, ok
}

func indirect(v reflect.Value) (reflect.Value, bool) {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return v, false
		}
		v = v.Elem()
	}
	return v, v.Kind() == reflect.Struct
}

// GetModelName returns the snake case type name of a struct, or "" for anything else.
// A string is taken as the name itself.
func GetModelName(model any) string {
	if name, ok := model.(string); ok {
		return name
	}
	modelVal, ok := indirect(reflect.ValueOf(model))
	if !ok {
		return ""
	}
	return ToSnake(modelVal.Type().Name())
}

func ToSnake(text string) string {
	return strcase.ToSnakeWithIgnore(text, ".")
}

func GetIdFilter(id any) M {
	return M{"_id": id}
}

func Pointer[T any](v T) *T {
	return &v
}

// bsonName is the key a struct field is stored under.
func bsonName(f reflect.StructField) string {
	tag := f.Tag.Get("bson")
	if name, _, _ := strings.Cut(tag, ","); name != "" && name != "-" {
		return name
	}
	return strings.ToLower(f.Name)
}

func hasDBTag(f reflect.StructField, want string) bool {
	for _, v := range strings.Split(strings.Trim(f.Tag.Get("db"), ", ;"), ",") {
		if strings.TrimSpace(v) == want {
			return true
		}
	}
	return false
}

// GetID returns the document id of model: the "_id" key of a map, or the
// struct field stored as _id or tagged db:"pk". Embedded structs are searched too.
func GetID(model any) any {
	switch m := model.(type) {
	case M:
		return m["_id"]
	case map[string]any:
		return m["_id"]
	case bson.M:
		return m["_id"]
	}
	v, ok := indirect(reflect.ValueOf(model))
	if !ok {
		return nil
	}
	return structID(v)
}

func structID(v reflect.Value) any {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		if bsonName(f) == "_id" || hasDBTag(f, "pk") {
			return v.Field(i).Interface()
		}
	}
	for i := 0; i < t.NumField(); i++ {
		if !t.Field(i).Anonymous {
			continue
		}
		if ev, ok := indirect(v.Field(i)); ok {
			if id := structID(ev); id != nil {
				return id
			}
		}
	}
	return nil
}

// ParseModelIndex returns the collection name of model and the fields tagged db:"index" or db:"unique".
func ParseModelIndex(model any) (name string, indexes []string) {
	for _, idx := range modelIndexes(model) {
		indexes = append(indexes, idx.Keys...)
	}
	return GetModelName(model), indexes
}

func modelIndexes(model any) []IndexDescriptor {
	t := reflect.TypeOf(model)
	if t == nil {
		return nil
	}
	return typeIndexes(t)
}

func typeIndexes(t reflect.Type) []IndexDescriptor {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}

	var indexes []IndexDescriptor
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous {
			indexes = append(indexes, typeIndexes(f.Type)...)
			continue
		}
		switch {
		case hasDBTag(f, "unique"):
			indexes = append(indexes, IndexDescriptor{Keys: []string{bsonName(f)}, Unique: true})
		case hasDBTag(f, "index"):
			indexes = append(indexes, IndexDescriptor{Keys: []string{bsonName(f)}})
		}
	}
	return indexes
}

// ToEntity converts a decoded document into T.
func ToEntity[T any](doc any) *T {
	o := new(T)
	raw, err := bson.Marshal(doc)
	if err != nil {
		panic(err)
	}
	if err := bson.Unmarshal(raw, o); err != nil {
		panic(err)
	}
	return o
}

func ToEntities[T any, D any](docs []D) []*T {
	os := make([]*T, 0, len(docs))
	for _, v := range docs {
		os = append(os, ToEntity[T](v))
	}
	return os
}

// SequentialID returns an ObjectID hex string; ids from one process sort in creation order.
func SequentialID() string {
	return primitive.NewObjectID().Hex()
}
