package domain

import "time"

// RuleError marks an illegal action for the current player state. Rule
// violations never mutate the session and never reach the history.
type RuleError struct {
	Reason string
}

func (e RuleError) Error() string { return e.Reason }

var (
	ErrUnknownPlayer    = RuleError{Reason: "player not in session"}
	ErrNoAgents         = RuleError{Reason: "no agents remaining"}
	ErrAlreadyRevealed  = RuleError{Reason: "player has already revealed this round"}
	ErrSwordmasterTaken = RuleError{Reason: "swordmaster already claimed by another player"}
)

// Capacity returns the per-round agent count for p under this session's caps.
func (s *Session) Capacity(p PlayerState) int {
	base, sword := s.AgentCap, s.SwordmasterCap
	if base <= 0 {
		base = DefaultAgentCap
	}
	if sword <= 0 {
		sword = DefaultSwordmasterCap
	}
	if p.Swordmaster {
		return sword
	}
	return base
}

// FirstPlayerIndex returns the index of the player holding the first-player
// token, or -1.
func (s *Session) FirstPlayerIndex() int {
	for i, p := range s.Players {
		if p.FirstPlayer {
			return i
		}
	}
	return -1
}

func (s *Session) AllRevealed() bool {
	if len(s.Players) == 0 {
		return false
	}
	for _, p := range s.Players {
		if !p.Revealed {
			return false
		}
	}
	return true
}

// Current returns the player the turn pointer rests on.
func (s *Session) Current() (PlayerState, bool) {
	if len(s.Players) == 0 || s.Turn < 0 || s.Turn >= len(s.Players) {
		return PlayerState{}, false
	}
	return s.Players[s.Turn], true
}

func (s *Session) indexOf(playerID int) int {
	for i, p := range s.Players {
		if p.ID == playerID {
			return i
		}
	}
	return -1
}

func (s *Session) swordmasterHolder() int {
	for i, p := range s.Players {
		if p.Swordmaster {
			return i
		}
	}
	return -1
}

// Apply records one action for a player. Ordinary actions spend an agent,
// "Reveal Turn" ends the player's round and forfeits unused agents, and
// "Swordmaster" is a first-claim-wins flag that raises the capacity from the
// next round reset onward. With tracking disabled the rules still apply but
// nothing reaches the history. The history entry carries the round number as
// it was before any advance. After a successful action the turn pointer
// rotates, and re-syncs to the first player whenever the round advances.
func (s *Session) Apply(playerID int, action string, now time.Time) error {
	idx := s.indexOf(playerID)
	if idx < 0 {
		return ErrUnknownPlayer
	}
	p := &s.Players[idx]
	if p.Revealed {
		return ErrAlreadyRevealed
	}
	switch action {
	case ActionReveal:
		p.Revealed = true
		p.Agents = 0
	case ActionSwordmaster:
		if p.Agents == 0 {
			return ErrNoAgents
		}
		if holder := s.swordmasterHolder(); holder >= 0 && holder != idx {
			return ErrSwordmasterTaken
		}
		// Idempotent re-claim: the turn is consumed but nothing changes.
		p.Swordmaster = true
	default:
		if p.Agents == 0 {
			return ErrNoAgents
		}
		p.Agents--
	}
	if s.Tracking {
		s.History = append(s.History, ActionEntry{
			Round:      s.Round,
			PlayerName: p.Name,
			Action:     action,
			Timestamp:  now.UTC().Format(time.RFC3339),
		})
	}
	prev := s.Round
	s.advanceRound()
	if s.Round == prev {
		s.Turn = (s.Turn + 1) % len(s.Players)
	}
	return nil
}

// Pass rotates the turn pointer without spending an agent or logging history.
func (s *Session) Pass() {
	if len(s.Players) > 0 {
		s.Turn = (s.Turn + 1) % len(s.Players)
	}
}

// advanceRound is the only place agents are replenished. It fires once every
// player has revealed: the round increments, the first-player token rotates
// one seat, and agents/reveal flags reset.
func (s *Session) advanceRound() {
	if !s.AllRevealed() {
		return
	}
	s.Round++
	next := 0
	if cur := s.FirstPlayerIndex(); cur >= 0 {
		next = (cur + 1) % len(s.Players)
	}
	for i := range s.Players {
		p := &s.Players[i]
		p.Revealed = false
		p.FirstPlayer = i == next
		p.Agents = s.Capacity(*p)
	}
	s.Turn = next
}

// Clone returns a deep copy sharing no slices with the receiver, so snapshot
// stack entries stay frozen while the live session keeps mutating.
func (s *Session) Clone() Session {
	out := *s
	out.Players = append([]PlayerState(nil), s.Players...)
	out.History = append([]ActionEntry(nil), s.History...)
	return out
}
