package domain

// Ledger is the undo stack: full value-copy snapshots taken before every
// mutating action. Unbounded within a session; cleared on new game and on
// finalize.
type Ledger struct {
	Stack []Session `json:"stack"`
}

func (l *Ledger) Push(s Session) {
	l.Stack = append(l.Stack, s.Clone())
}

// Pop removes and returns the most recent snapshot. ok is false on an empty
// ledger (undo is then a no-op for the caller).
func (l *Ledger) Pop() (Session, bool) {
	if len(l.Stack) == 0 {
		return Session{}, false
	}
	top := l.Stack[len(l.Stack)-1]
	l.Stack = l.Stack[:len(l.Stack)-1]
	return top, true
}

func (l *Ledger) Len() int { return len(l.Stack) }

func (l *Ledger) Clear() { l.Stack = nil }
