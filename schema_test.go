package mongo

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestParseSchema(t *testing.T) {
	s, err := ParseSchema([]byte(`
collections:
  - name: audit_log
    capped: {max_documents: 1000, max_bytes: 1048576}
  - name: user
    validation_level: moderate
    validator:
      $jsonSchema:
        required: [email]
    indexes:
      - keys: [email]
        unique: true
      - name: recent
        keys: [-created_at]
`))
	require.NoError(t, err)
	require.Equal(t, []string{"audit_log", "user"}, s.Names())
	require.Equal(t, &CappedOptions{MaxDocuments: 1000, MaxBytes: 1048576}, s.Collections[0].Capped)

	user := s.Collections[1]
	require.Equal(t, "moderate", *user.createOptions().ValidationLevel)
	require.NotNil(t, user.createOptions().Validator)

	models := user.indexModels()
	require.Len(t, models, 2)
	require.Equal(t, bson.D{{Key: "email", Value: 1}}, models[0].Keys)
	require.True(t, *models[0].Options.Unique)
	require.Equal(t, bson.D{{Key: "created_at", Value: -1}}, models[1].Keys)
	require.Equal(t, "recent", *models[1].Options.Name)
}

func TestParseSchemaErrors(t *testing.T) {
	for name, doc := range map[string]string{
		"bad yaml":       "collections: [",
		"missing name":   "collections: [{capped: {max_bytes: 10}}]",
		"duplicate":      "collections: [{name: a}, {name: a}]",
		"capped no size": "collections: [{name: a, capped: {max_documents: 5}}]",
		"index no keys":  "collections: [{name: a, indexes: [{unique: true}]}]",
	} {
		_, err := ParseSchema([]byte(doc))
		require.ErrorIs(t, err, ErrInvalidSchema, name)
	}
}

func TestCreateOptionsOnlyWhenDeclared(t *testing.T) {
	opt := CollectionDescriptor{Name: "plain"}.createOptions()
	require.Nil(t, opt.Capped)
	require.Nil(t, opt.Validator)

	opt = CollectionDescriptor{Name: "log", Capped: &CappedOptions{MaxBytes: 4096}}.createOptions()
	require.True(t, *opt.Capped)
	require.Equal(t, int64(4096), *opt.SizeInBytes)
	require.Nil(t, opt.MaxDocuments)
}

func TestDescribeModels(t *testing.T) {
	type Account struct {
		ID    string `bson:"_id"`
		Email string `bson:"email" db:"unique"`
		Team  string `bson:"team" db:"index"`
	}

	s, err := DescribeModels(&Account{}, OrderItem{})
	require.NoError(t, err)
	require.Equal(t, []string{"account", "order_item"}, s.Names())
	require.Equal(t, []IndexDescriptor{
		{Keys: []string{"email"}, Unique: true},
		{Keys: []string{"team"}},
	}, s.Collections[0].Indexes)

	_, err = DescribeModel(42)
	require.ErrorIs(t, err, ErrInvalidModelName)

	_, err = DescribeModels(OrderItem{}, &OrderItem{})
	require.ErrorIs(t, err, ErrInvalidSchema)
}
