package mongo

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type Database struct {
	client *Client
	*mongo.Database

	log         Logger
	observers   []Observer
	sessionOpts []SessionOption
	prov        *provisioner
}

func NewDatabase(ctx context.Context, url string, name string, opts ...Option) (*Database, error) {
	o := databaseOptions{log: NopLogger()}
	for _, opt := range opts {
		opt(&o)
	}

	client, err := NewClient(ctx, url, o.client...)
	if err != nil {
		return nil, err
	}
	db := client.Database(name)
	return &Database{
		client:      client,
		Database:    db,
		log:         o.log,
		observers:   o.observers,
		sessionOpts: o.session,
		prov:        newProvisioner(db, o.log),
	}, nil
}

func (t *Database) Close() error {
	if t.client == nil {
		return nil
	}
	err := t.client.Close()
	t.client = nil
	return err
}

// NewSession opens a session on the database. No transaction is started.
func (t *Database) NewSession(ctx context.Context, opts ...SessionOption) (*Session, error) {
	sess, err := t.client.StartSession()
	if err != nil {
		return nil, errors.Wrap(err, "start session")
	}
	all := append(append([]SessionOption{}, t.sessionOpts...), opts...)
	return newSession(ctx, driverSession{sess}, t.Database, t.log, t.observers, all...), nil
}

// ProvisionSchema creates the collections of s that are missing and reports
// whether it created any. Existing collections are left as they are.
func (t *Database) ProvisionSchema(ctx context.Context, s Schema) (bool, error) {
	return t.prov.provision(ctx, s)
}

func (t *Database) DatabaseExists(ctx context.Context) (bool, error) {
	names, err := t.client.ListDatabaseNames(ctx, bson.D{{Key: "name", Value: t.Name()}})
	if err != nil {
		return false, errors.Wrap(err, "list databases")
	}
	return len(names) > 0, nil
}

// DeleteDatabase drops the database with everything in it.
func (t *Database) DeleteDatabase(ctx context.Context) error {
	if err := t.Drop(ctx); err != nil {
		return errors.Wrapf(err, "drop database %s", t.Name())
	}
	t.log.Warn("database dropped", "database", t.Name())
	return nil
}

// Txn runs fn on a fresh session. With multiDoc set, fn runs inside an
// explicit transaction that is committed when fn returns nil and rolled back otherwise.
func (t *Database) Txn(ctx context.Context, fn func(txn *Txn) error, multiDoc ...bool) (err error) {
	s, err := t.NewSession(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if dErr := s.Dispose(ctx); err == nil {
			err = dErr
		}
	}()

	if len(multiDoc) == 0 || !multiDoc[0] {
		return fn(&Txn{ctx: s.Context(ctx), session: s, id: s.ID()})
	}

	txn, err := s.BeginTransaction(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			if rbErr := txn.Rollback(ctx); rbErr != nil {
				t.log.Warn("transaction rollback failed after panic", "txn_id", txn.ID(), "error", rbErr)
			}
			panic(p)
		}
	}()

	if err := fn(txn); err != nil {
		if rbErr := txn.Rollback(ctx); rbErr != nil {
			t.log.Warn("transaction rollback failed", "txn_id", txn.ID(), "error", rbErr)
		}
		return err
	}
	return txn.Commit(ctx)
}
