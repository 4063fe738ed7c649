package domain

// ─── Events ─────────────────────────────────────────────────────────────────
// Events are a closed set discriminated by Kind. Consumers switch on Kind;
// the payload pointer matching the kind is always set.

// EventKind tags an Event.
type EventKind int

const (
	EventTransaction EventKind = iota + 1 // Transaction is set
	EventName                             // Name is set
)

func (k EventKind) String() string {
	switch k {
	case EventTransaction:
		return "transaction"
	case EventName:
		return "name"
	default:
		return "unknown"
	}
}

// Event is a ledger or name change to fan out to sessions.
type Event struct {
	Kind        EventKind
	Transaction *LedgerEntry
	Name        *Name
}

// TransactionCreated builds the event published after a ledger commit.
func TransactionCreated(e *LedgerEntry) Event {
	return Event{Kind: EventTransaction, Transaction: e}
}

// NameChanged builds the event published after a name mutation.
func NameChanged(n *Name) Event {
	return Event{Kind: EventName, Name: n}
}
