package domain

import (
	"reflect"
	"testing"
	"time"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func twoPlayerSession() Session {
	return Session{
		ID:       "s-1",
		Round:    1,
		Phase:    PhaseAgent,
		Tracking: true,
		Players: []PlayerState{
			{ID: 1, Name: "Paul", Leader: "feyd", Agents: 2, FirstPlayer: true},
			{ID: 2, Name: "Jessica", Leader: "gurney", Agents: 2},
		},
	}
}

func TestOrdinaryActionSpendsAgent(t *testing.T) {
	s := twoPlayerSession()
	if err := s.Apply(1, "Arrakeen", testNow); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if s.Players[0].Agents != 1 {
		t.Fatalf("expected 1 agent, got %d", s.Players[0].Agents)
	}
	if s.Players[0].Revealed {
		t.Fatalf("ordinary action must not reveal")
	}
	if len(s.History) != 1 || s.History[0].Action != "Arrakeen" || s.History[0].Round != 1 {
		t.Fatalf("unexpected history: %+v", s.History)
	}
	if s.Turn != 1 {
		t.Fatalf("turn pointer should rotate, got %d", s.Turn)
	}
}

func TestRevealForfeitsAgents(t *testing.T) {
	s := twoPlayerSession()
	if err := s.Apply(1, ActionReveal, testNow); err != nil {
		t.Fatalf("reveal: %v", err)
	}
	p := s.Players[0]
	if !p.Revealed || p.Agents != 0 {
		t.Fatalf("reveal with unused agents must zero them: %+v", p)
	}
	if s.Round != 1 {
		t.Fatalf("round must not advance while others are unrevealed")
	}
}

func TestNoAgentsRejected(t *testing.T) {
	s := twoPlayerSession()
	s.Players[0].Agents = 0
	before := s.Clone()
	err := s.Apply(1, "Sardaukar", testNow)
	if err != ErrNoAgents {
		t.Fatalf("expected ErrNoAgents, got %v", err)
	}
	if !reflect.DeepEqual(before, s) {
		t.Fatalf("rejected action mutated session")
	}
	if len(s.History) != 0 {
		t.Fatalf("rejected action reached history")
	}
	// Reveal is still allowed with zero agents.
	if err := s.Apply(1, ActionReveal, testNow); err != nil {
		t.Fatalf("reveal at zero agents: %v", err)
	}
}

func TestRevealedPlayerRejected(t *testing.T) {
	s := twoPlayerSession()
	if err := s.Apply(1, ActionReveal, testNow); err != nil {
		t.Fatal(err)
	}
	if err := s.Apply(1, "Secrets", testNow); err != ErrAlreadyRevealed {
		t.Fatalf("expected ErrAlreadyRevealed, got %v", err)
	}
}

func TestRoundAdvance(t *testing.T) {
	s := twoPlayerSession()
	if err := s.Apply(1, "Arrakeen", testNow); err != nil {
		t.Fatal(err)
	}
	if err := s.Apply(2, ActionReveal, testNow); err != nil {
		t.Fatal(err)
	}
	if s.Round != 1 {
		t.Fatalf("round advanced with P1 unrevealed")
	}
	if err := s.Apply(1, ActionReveal, testNow); err != nil {
		t.Fatal(err)
	}
	if s.Round != 2 {
		t.Fatalf("expected round 2, got %d", s.Round)
	}
	firsts := 0
	for _, p := range s.Players {
		if p.Revealed {
			t.Fatalf("reveal flag survived reset: %+v", p)
		}
		if p.Agents != s.Capacity(p) {
			t.Fatalf("agents not reset to capacity: %+v", p)
		}
		if p.FirstPlayer {
			firsts++
		}
	}
	if firsts != 1 {
		t.Fatalf("expected exactly one first player, got %d", firsts)
	}
	// Token moved from index 0 to index 1, and the turn pointer followed.
	if !s.Players[1].FirstPlayer {
		t.Fatalf("first player token did not rotate")
	}
	if s.Turn != 1 {
		t.Fatalf("turn pointer not resynced to first player, got %d", s.Turn)
	}
}

func TestFirstPlayerRotationWraps(t *testing.T) {
	s := twoPlayerSession()
	for round := 1; round <= 4; round++ {
		prevFirst := s.FirstPlayerIndex()
		for _, p := range append([]PlayerState(nil), s.Players...) {
			if err := s.Apply(p.ID, ActionReveal, testNow); err != nil {
				t.Fatalf("round %d reveal %s: %v", round, p.Name, err)
			}
		}
		if s.Round != round+1 {
			t.Fatalf("round %d: advanced to %d", round, s.Round)
		}
		want := (prevFirst + 1) % len(s.Players)
		if got := s.FirstPlayerIndex(); got != want {
			t.Fatalf("round %d: first player %d, want %d", round, got, want)
		}
	}
}

func TestSwordmasterClaim(t *testing.T) {
	s := twoPlayerSession()
	if err := s.Apply(1, ActionSwordmaster, testNow); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !s.Players[0].Swordmaster {
		t.Fatalf("swordmaster not set")
	}
	// Claim does not spend an agent; capacity changes on next reset only.
	if s.Players[0].Agents != 2 {
		t.Fatalf("claim spent an agent: %d", s.Players[0].Agents)
	}
	// Second claim by another player is first-claim-wins.
	if err := s.Apply(2, ActionSwordmaster, testNow); err != ErrSwordmasterTaken {
		t.Fatalf("expected ErrSwordmasterTaken, got %v", err)
	}
	// Re-claim by the holder is a logged no-op.
	if err := s.Apply(1, ActionSwordmaster, testNow); err != nil {
		t.Fatalf("re-claim: %v", err)
	}
	if len(s.History) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(s.History))
	}
	// After the next reset the holder has 3 agents.
	if err := s.Apply(1, ActionReveal, testNow); err != nil {
		t.Fatal(err)
	}
	if err := s.Apply(2, ActionReveal, testNow); err != nil {
		t.Fatal(err)
	}
	if got := s.Players[0].Agents; got != 3 {
		t.Fatalf("swordmaster capacity after reset: %d", got)
	}
	if got := s.Players[1].Agents; got != 2 {
		t.Fatalf("plain capacity after reset: %d", got)
	}
}

func TestLedgerUndoRestoresExactState(t *testing.T) {
	s := twoPlayerSession()
	var ledger Ledger
	ledger.Push(s)
	before := s.Clone()
	if err := s.Apply(1, "Heighliner", testNow); err != nil {
		t.Fatal(err)
	}
	restored, ok := ledger.Pop()
	if !ok {
		t.Fatalf("expected snapshot")
	}
	if !reflect.DeepEqual(restored, before) {
		t.Fatalf("undo did not restore prior session\n got %+v\nwant %+v", restored, before)
	}
	if ledger.Len() != 0 {
		t.Fatalf("ledger not shrunk")
	}
	if _, ok := ledger.Pop(); ok {
		t.Fatalf("pop on empty ledger must report empty")
	}
}

func TestSnapshotIsolation(t *testing.T) {
	s := twoPlayerSession()
	var ledger Ledger
	ledger.Push(s)
	s.Players[0].Agents = 0
	s.History = append(s.History, ActionEntry{Round: 1, PlayerName: "Paul", Action: "x"})
	snap := ledger.Stack[0]
	if snap.Players[0].Agents != 2 || len(snap.History) != 0 {
		t.Fatalf("snapshot aliased live session: %+v", snap)
	}
}

func TestTrackingDisabledSkipsHistory(t *testing.T) {
	s := twoPlayerSession()
	s.Tracking = false
	if err := s.Apply(1, "Arrakeen", testNow); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(s.History) != 0 {
		t.Fatalf("tracking disabled but %d history entries logged", len(s.History))
	}
	// The rules still bind: the agent is spent and the turn rotates.
	if s.Players[0].Agents != 1 || s.Turn != 1 {
		t.Fatalf("rules must apply without tracking: %+v", s)
	}
	if err := s.Apply(1, "Carthag", testNow); err != nil {
		t.Fatal(err)
	}
	if s.Players[0].Agents != 0 || len(s.History) != 0 {
		t.Fatalf("second untracked action: %+v", s)
	}
}

func TestPassRotatesOnly(t *testing.T) {
	s := twoPlayerSession()
	s.Pass()
	if s.Turn != 1 || len(s.History) != 0 || s.Players[0].Agents != 2 {
		t.Fatalf("pass must only rotate the pointer: %+v", s)
	}
}
