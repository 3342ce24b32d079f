package mongo

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(LoggerConfig{Level: "debug", Output: &buf})
	log.Debug("transaction starting", "txn_id", "s:1")
	require.Contains(t, buf.String(), "transaction starting")
	require.Contains(t, buf.String(), "mongotxn")

	buf.Reset()
	log = NewLogger(LoggerConfig{Level: "nonsense", Output: &buf})
	log.Debug("dropped")
	log.Info("kept")
	require.NotContains(t, buf.String(), "dropped")
	require.Contains(t, buf.String(), "kept")
}

func TestSessionEventsAreLogged(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()
	b := newFakeBackend(newFakeStore())
	s := newSession(ctx, b, nil, NewLogger(LoggerConfig{Level: "debug", Output: &buf, JSON: true}), nil)

	txn, err := s.BeginTransaction(ctx, TxnOptions{WriteConcern: "majority"})
	require.NoError(t, err)
	b.commitErr = errors.New("not primary")
	require.Error(t, txn.Commit(ctx))

	out := buf.String()
	require.Contains(t, out, `"msg":"transaction starting"`)
	require.Contains(t, out, `"msg":"transaction started"`)
	require.Contains(t, out, `"level":"warn"`)
	require.Contains(t, out, "not primary")
	require.Contains(t, out, `"write_concern":"majority"`)
	require.Contains(t, out, `"state":"active"`)
	require.Contains(t, out, txn.ID())
}
