package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
)

// AmbientDetector reports whether ctx already takes part in a transaction
// owned by code outside this package.
type AmbientDetector func(ctx context.Context) bool

type ambientKey struct{}

// WithAmbientTransaction marks ctx as running inside an externally managed transaction scope.
// Sessions refuse explicit and implicit transactions under such a context.
func WithAmbientTransaction(ctx context.Context) context.Context {
	return context.WithValue(ctx, ambientKey{}, true)
}

// DefaultAmbientDetector reports a context marked by WithAmbientTransaction,
// or one carrying a driver session that is already running a transaction,
// as happens inside another session's WithTransaction callback.
func DefaultAmbientDetector(ctx context.Context) bool {
	if marked, _ := ctx.Value(ambientKey{}).(bool); marked {
		return true
	}
	return driverTxnRunning(ctx)
}

func driverTxnRunning(ctx context.Context) bool {
	sess := mongo.SessionFromContext(ctx)
	if sess == nil {
		return false
	}
	xs, ok := sess.(mongo.XSession)
	if !ok || xs.ClientSession() == nil {
		return false
	}
	return xs.ClientSession().TransactionRunning()
}
