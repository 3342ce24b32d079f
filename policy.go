package mongo

import (
	"strings"

	"github.com/pkg/errors"
)

// AutoTransactionPolicy decides when Flush wraps a batch of writes in an implicit transaction.
type AutoTransactionPolicy int32

const (
	// AutoTransactionsWhenNeeded wraps a batch only when it holds more than one write.
	AutoTransactionsWhenNeeded AutoTransactionPolicy = iota
	// AutoTransactionsAlways wraps every batch, single writes included.
	AutoTransactionsAlways
	// AutoTransactionsNever lets every write commit on its own. A failure in the
	// middle of a batch leaves the writes before it committed.
	AutoTransactionsNever
)

func (p AutoTransactionPolicy) String() string {
	switch p {
	case AutoTransactionsWhenNeeded:
		return "when_needed"
	case AutoTransactionsAlways:
		return "always"
	case AutoTransactionsNever:
		return "never"
	}
	return "unknown"
}

// ParseAutoTransactionPolicy accepts when_needed, always and never. Case and dashes are ignored.
func ParseAutoTransactionPolicy(s string) (AutoTransactionPolicy, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_") {
	case "", "when_needed", "whenneeded":
		return AutoTransactionsWhenNeeded, nil
	case "always":
		return AutoTransactionsAlways, nil
	case "never":
		return AutoTransactionsNever, nil
	}
	return AutoTransactionsWhenNeeded, errors.Wrapf(ErrInvalidConfig, "unknown auto transaction policy %q", s)
}

// wraps reports whether a flush of n root writes gets an implicit transaction.
// Writes inside an explicit transaction are never wrapped again.
func (p AutoTransactionPolicy) wraps(n int, explicit bool) bool {
	if explicit || n == 0 {
		return false
	}
	switch p {
	case AutoTransactionsAlways:
		return true
	case AutoTransactionsWhenNeeded:
		return n > 1
	}
	return false
}
