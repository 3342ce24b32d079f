package mongo

import (
	"strings"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gopkg.in/yaml.v3"
)

// Schema is the ordered set of collections a model needs.
type Schema struct {
	Collections []CollectionDescriptor `yaml:"collections"`
}

// CollectionDescriptor describes one required collection and the options it
// is created with. The options are never applied to a collection that already exists.
type CollectionDescriptor struct {
	Name             string            `yaml:"name"`
	Capped           *CappedOptions    `yaml:"capped,omitempty"`
	Validator        map[string]any    `yaml:"validator,omitempty"`
	ValidationLevel  string            `yaml:"validation_level,omitempty"`
	ValidationAction string            `yaml:"validation_action,omitempty"`
	Indexes          []IndexDescriptor `yaml:"indexes,omitempty"`
}

type CappedOptions struct {
	MaxDocuments int64 `yaml:"max_documents,omitempty"`
	MaxBytes     int64 `yaml:"max_bytes"`
}

// IndexDescriptor keys are field names, a leading "-" makes the key descending.
type IndexDescriptor struct {
	Name   string   `yaml:"name,omitempty"`
	Keys   []string `yaml:"keys"`
	Unique bool     `yaml:"unique,omitempty"`
}

func NewSchema(collections ...CollectionDescriptor) Schema {
	return Schema{Collections: collections}
}

// ParseSchema reads a schema from YAML:
//
//	collections:
//	  - name: audit_log
//	    capped: {max_documents: 1000, max_bytes: 1048576}
//	  - name: user
//	    indexes:
//	      - keys: [email]
//	        unique: true
func ParseSchema(data []byte) (Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Schema{}, errors.Wrap(ErrInvalidSchema, err.Error())
	}
	return s, s.Validate()
}

// DescribeModels builds a schema with one collection per model, named and
// indexed the way DescribeModel does it.
func DescribeModels(models ...any) (Schema, error) {
	var s Schema
	for _, m := range models {
		d, err := DescribeModel(m)
		if err != nil {
			return Schema{}, err
		}
		s.Collections = append(s.Collections, d)
	}
	return s, s.Validate()
}

// DescribeModel derives a descriptor from a struct: the collection is named
// after the type and fields tagged db:"index" or db:"unique" are indexed.
func DescribeModel(model any) (CollectionDescriptor, error) {
	name := GetModelName(model)
	if name == "" {
		return CollectionDescriptor{}, ErrInvalidModelName
	}
	return CollectionDescriptor{Name: name, Indexes: modelIndexes(model)}, nil
}

func (s Schema) Names() []string {
	names := make([]string, 0, len(s.Collections))
	for _, c := range s.Collections {
		names = append(names, c.Name)
	}
	return names
}

func (s Schema) Validate() error {
	seen := make(map[string]struct{}, len(s.Collections))
	for i, c := range s.Collections {
		if strings.TrimSpace(c.Name) == "" {
			return errors.Wrapf(ErrInvalidSchema, "collection %d has no name", i)
		}
		if _, ok := seen[c.Name]; ok {
			return errors.Wrapf(ErrInvalidSchema, "collection %s declared twice", c.Name)
		}
		seen[c.Name] = struct{}{}

		if c.Capped != nil && c.Capped.MaxBytes <= 0 {
			return errors.Wrapf(ErrInvalidSchema, "capped collection %s needs max_bytes", c.Name)
		}
		for _, idx := range c.Indexes {
			if len(idx.Keys) == 0 {
				return errors.Wrapf(ErrInvalidSchema, "index on %s has no keys", c.Name)
			}
		}
	}
	return nil
}

func (c CollectionDescriptor) createOptions() *options.CreateCollectionOptions {
	opt := options.CreateCollection()
	if c.Capped != nil {
		opt.SetCapped(true).SetSizeInBytes(c.Capped.MaxBytes)
		if c.Capped.MaxDocuments > 0 {
			opt.SetMaxDocuments(c.Capped.MaxDocuments)
		}
	}
	if len(c.Validator) > 0 {
		opt.SetValidator(c.Validator)
	}
	if c.ValidationLevel != "" {
		opt.SetValidationLevel(c.ValidationLevel)
	}
	if c.ValidationAction != "" {
		opt.SetValidationAction(c.ValidationAction)
	}
	return opt
}

func (c CollectionDescriptor) indexModels() []mongo.IndexModel {
	models := make([]mongo.IndexModel, 0, len(c.Indexes))
	for _, idx := range c.Indexes {
		keys := bson.D{}
		for _, k := range idx.Keys {
			if strings.HasPrefix(k, "-") {
				keys = append(keys, bson.E{Key: k[1:], Value: -1})
			} else {
				keys = append(keys, bson.E{Key: k, Value: 1})
			}
		}
		opt := options.Index()
		if idx.Unique {
			opt.SetUnique(true)
		}
		if idx.Name != "" {
			opt.SetName(idx.Name)
		}
		models = append(models, mongo.IndexModel{Keys: keys, Options: opt})
	}
	return models
}
