package mongo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type OrderItem struct {
	ID  string `bson:"_id"`
	SKU string `bson:"sku" db:"unique"`
}

func TestGetModelName(t *testing.T) {
	require.Equal(t, "", GetModelName(map[string]string{}))
	require.Equal(t, "NameLL", GetModelName("NameLL"))
	require.Equal(t, "order_item", GetModelName(OrderItem{}))
	require.Equal(t, "order_item", GetModelName(&OrderItem{}))
	require.Equal(t, "", GetModelName(nil))
	require.Equal(t, "", GetModelName((*OrderItem)(nil)))
}

func TestGetID(t *testing.T) {
	type User struct {
		Name       string `json:"name" bson:"_id,omitempty"`
		Age        int64  `json:"age" bson:"age,omitempty"`
		OrderCount int64  `json:"order_count" bson:"order_count,omitempty"`
	}

	type Parent struct {
		*User `json:"user"`
	}

	type Tagged struct {
		Key string `bson:"key" db:"pk"`
	}

	require.Equal(t, "liran", GetID(&User{Name: "liran", Age: 132}))
	require.Equal(t, "liran", GetID(&Parent{User: &User{Name: "liran", Age: 132}}))
	require.Nil(t, GetID(&Parent{}))
	require.Equal(t, "k1", GetID(Tagged{Key: "k1"}))
	require.Equal(t, "1", GetID(Map().Set("_id", "1")))
	require.Equal(t, 2, GetID(bson.M{"_id": 2}))
	require.Nil(t, GetID(42))
}

func TestSequentialID(t *testing.T) {
	prev := ""
	for i := 0; i < 10; i++ {
		id := SequentialID()
		_, err := primitive.ObjectIDFromHex(id)
		require.NoError(t, err)
		require.NotEqual(t, prev, id)
		prev = id
	}
}

func TestParseModelIndex(t *testing.T) {
	type User struct {
		Name       string `json:"name" bson:"_id,omitempty"`
		Age        int64  `json:"age" bson:"age,omitempty" db:"index"`
		OrderCount int64  `json:"order_count" bson:"order_count,omitempty"`
	}

	type Student struct {
		*User `json:"user"`

		Class string `json:"class" db:"index"`
	}

	type Instructor struct {
		User `json:"user"`

		Class string `json:"class" db:"index"`
	}

	name, indexes := ParseModelIndex(&Student{})
	require.Equal(t, "student", name)
	require.Equal(t, []string{"age", "class"}, indexes)

	name, indexes = ParseModelIndex(&Student{User: &User{Name: "liran"}})
	require.Equal(t, "student", name)
	require.Equal(t, []string{"age", "class"}, indexes)

	name, indexes = ParseModelIndex(&Instructor{})
	require.Equal(t, "instructor", name)
	require.Equal(t, []string{"age", "class"}, indexes)

	_, indexes = ParseModelIndex(OrderItem{})
	require.Equal(t, []string{"sku"}, indexes)
}

func TestPointer(t *testing.T) {
	now := time.Now()
	require.Equal(t, now, *Pointer(now))
}

func TestToEntity(t *testing.T) {
	item := ToEntity[OrderItem](bson.M{"_id": "o1", "sku": "X-1"})
	require.Equal(t, &OrderItem{ID: "o1", SKU: "X-1"}, item)

	items := ToEntities[OrderItem]([]M{{"_id": "a"}, {"_id": "b"}})
	require.Len(t, items, 2)
	require.Equal(t, "b", items[1].ID)
}
