package mongo

import "go.mongodb.org/mongo-driver/mongo/options"

// ClientOptions is an alias for the official MongoDB client options.
// It provides configuration options for MongoDB client connections.
//
// Example:
//
//	db, err := mongo.NewDatabase(ctx, uri, "myapp", mongo.WithClientOptions(func(c *mongo.ClientOptions) {
//	    c.SetMaxPoolSize(100)
//	    c.SetMinPoolSize(10)
//	    c.SetMaxConnIdleTime(30 * time.Second)
//	}))
type ClientOptions = options.ClientOptions

type databaseOptions struct {
	client    []func(c *ClientOptions)
	log       Logger
	observers []Observer
	session   []SessionOption
}

type Option func(o *databaseOptions)

func WithClientOptions(fn func(c *ClientOptions)) Option {
	return func(o *databaseOptions) { o.client = append(o.client, fn) }
}

// WithLogger injects the logger that receives transaction and provisioning diagnostics.
func WithLogger(l Logger) Option {
	return func(o *databaseOptions) { o.log = l }
}

func WithObserver(obs Observer) Option {
	return func(o *databaseOptions) { o.observers = append(o.observers, obs) }
}

// WithSessionDefaults applies opts to every session opened on the database,
// before the options given to NewSession.
func WithSessionDefaults(opts ...SessionOption) Option {
	return func(o *databaseOptions) { o.session = append(o.session, opts...) }
}
