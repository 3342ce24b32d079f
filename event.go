package mongo

// EventKind identifies a point in the life of a transaction.
type EventKind int

const (
	EventTxnStarting EventKind = iota
	EventTxnStarted
	EventTxnCommitting
	EventTxnCommitted
	EventTxnRollingBack
	EventTxnRolledBack
)

var eventMessages = [...]string{
	EventTxnStarting:    "transaction starting",
	EventTxnStarted:     "transaction started",
	EventTxnCommitting:  "transaction committing",
	EventTxnCommitted:   "transaction committed",
	EventTxnRollingBack: "transaction rolling back",
	EventTxnRolledBack:  "transaction rolled back",
}

func (k EventKind) String() string {
	if k < 0 || int(k) >= len(eventMessages) {
		return "unknown"
	}
	return eventMessages[k]
}

// Event is delivered to every Observer of a session.
// Err is set when the step the event describes failed. State is the state of
// the transaction once the step is over.
type Event struct {
	Kind     EventKind
	TxnID    string
	Implicit bool
	Options  TxnOptions
	State    TxnState
	Err      error
}

// Observer receives transaction events in the order they happen.
type Observer interface {
	ObserveEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) ObserveEvent(e Event) { f(e) }

func (e Event) keyvals() []any {
	kv := []any{
		"txn_id", e.TxnID,
		"implicit", e.Implicit,
		"state", e.State.String(),
		"read_concern", e.Options.ReadConcern,
		"write_concern", e.Options.WriteConcern,
	}
	if e.Options.MaxCommitTime > 0 {
		kv = append(kv, "max_commit_time", e.Options.MaxCommitTime)
	}
	if e.Err != nil {
		kv = append(kv, "error", e.Err)
	}
	return kv
}

func (s *Session) emit(kind EventKind, t *Txn, err error) {
	e := Event{Kind: kind, TxnID: t.id, Implicit: t.implicit, Options: t.opts, State: t.state, Err: err}

	switch {
	case err != nil:
		s.log.Warn(kind.String(), e.keyvals()...)
	case kind == EventTxnStarting || kind == EventTxnCommitting || kind == EventTxnRollingBack:
		s.log.Debug(kind.String(), e.keyvals()...)
	default:
		s.log.Info(kind.String(), e.keyvals()...)
	}

	for _, o := range s.observers {
		o.ObserveEvent(e)
	}
}
