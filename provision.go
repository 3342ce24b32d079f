package mongo

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"
)

// codeNamespaceExists is returned by create when another client won the race.
const codeNamespaceExists = 48

// maxIndexBuilds bounds the index builds running at once for one provisioning call.
const maxIndexBuilds = 4

type catalog interface {
	ListCollectionNames(ctx context.Context, filter interface{}, opts ...*options.ListCollectionsOptions) ([]string, error)
	CreateCollection(ctx context.Context, name string, opts ...*options.CreateCollectionOptions) error
}

type provisioner struct {
	catalog        catalog
	createIndexes  func(ctx context.Context, coll string, models []mongo.IndexModel) error
	dropCollection func(ctx context.Context, coll string) error
	log            Logger
	group          singleflight.Group
}

func newProvisioner(db *mongo.Database, log Logger) *provisioner {
	return &provisioner{
		catalog: db,
		createIndexes: func(ctx context.Context, coll string, models []mongo.IndexModel) error {
			_, err := db.Collection(coll).Indexes().CreateMany(ctx, models)
			return err
		},
		dropCollection: func(ctx context.Context, coll string) error {
			return db.Collection(coll).Drop(ctx)
		},
		log: log,
	}
}

// provision creates the collections of s that do not exist yet and reports
// whether it created any. Concurrent calls for an identical schema share one
// run, which outlives the cancellation of any single caller.
func (p *provisioner) provision(ctx context.Context, s Schema) (bool, error) {
	if err := s.Validate(); err != nil {
		return false, err
	}
	key, err := yaml.Marshal(s)
	if err != nil {
		return false, errors.Wrap(ErrInvalidSchema, err.Error())
	}

	ch := p.group.DoChan(string(key), func() (any, error) {
		return p.run(context.WithoutCancel(ctx), s)
	})
	select {
	case r := <-ch:
		created, _ := r.Val.(bool)
		return created, r.Err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (p *provisioner) run(ctx context.Context, s Schema) (bool, error) {
	names, err := p.catalog.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return false, errors.Wrap(err, "list collections")
	}
	existing := make(map[string]struct{}, len(names))
	for _, n := range names {
		existing[n] = struct{}{}
	}

	var created []CollectionDescriptor
	for _, c := range s.Collections {
		if _, ok := existing[c.Name]; ok {
			continue
		}
		if err := p.catalog.CreateCollection(ctx, c.Name, c.createOptions()); err != nil {
			if isNamespaceExists(err) {
				continue
			}
			return p.undo(ctx, created, errors.Wrapf(err, "create collection %s", c.Name))
		}
		created = append(created, c)
		p.log.Info("collection created", "collection", c.Name, "capped", c.Capped != nil)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxIndexBuilds)
	for _, c := range created {
		if len(c.Indexes) == 0 {
			continue
		}
		c := c
		g.Go(func() error {
			if err := p.createIndexes(gctx, c.Name, c.indexModels()); err != nil {
				return errors.Wrapf(err, "create indexes on %s", c.Name)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return p.undo(ctx, created, err)
	}

	p.log.Debug("schema provisioned", "collections", len(s.Collections), "created", len(created))
	return len(created) > 0, nil
}

// undo drops the collections a failed run created, so the next run creates
// them again together with their indexes. It reports whether any of them is
// left behind.
func (p *provisioner) undo(ctx context.Context, created []CollectionDescriptor, cause error) (bool, error) {
	left := false
	for _, c := range created {
		if err := p.dropCollection(ctx, c.Name); err != nil {
			p.log.Error("dropping collection after failed provisioning", "collection", c.Name, "error", err)
			cause = errors.Wrapf(cause, "drop %s also failed: %v", c.Name, err)
			left = true
		}
	}
	return left, cause
}

func isNamespaceExists(err error) bool {
	var ce mongo.CommandError
	return errors.As(err, &ce) && ce.Code == codeNamespaceExists
}
