package mongo

import (
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	ErrInvalidModelName = errors.New("invalid model name")
	ErrNoID             = errors.New(`no id, defined by tag bson:"_id" or db:"pk"`)
	ErrRecordNotFound   = errors.New("record not found")

	ErrAlreadyInTransaction    = errors.New("session already has an active transaction")
	ErrAmbientTransaction      = errors.New("an ambient transaction is present, explicit transactions cannot be used")
	ErrUnterminatedTransaction = errors.New("transaction disposed without commit or rollback")
	ErrNoActiveTransaction     = errors.New("no active transaction")
	ErrCommitOutcomeUnknown    = errors.New("commit may have been applied, outcome unknown")
	ErrSessionDisposed         = errors.New("session disposed")
	ErrNotSupported            = errors.New("not supported")

	ErrInvalidSchema = errors.New("invalid schema")
	ErrInvalidConfig = errors.New("invalid config")
)

// IsDuplicateKey reports whether err, or anything it wraps, is a duplicate key write error.
func IsDuplicateKey(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}
