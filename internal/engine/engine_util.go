package engine

import (
	"fmt"
	"slices"
)

const (
	MinSeats = 2
	MaxSeats = 7
)

func DefaultRules() Rules {
	return Rules{MinSeats: MinSeats, MaxSeats: MaxSeats, OpeningCardRule: true}
}

func NewState(rules Rules) State {
	return State{Phase: PhaseLobby, Current: -1, Rules: rules}
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

// Clone deep-copies s so Apply can mutate freely.
func (s State) Clone() State {
	out := s
	out.Seats = make([]Seat, len(s.Seats))
	for i, seat := range s.Seats {
		seat.Hand = slices.Clone(seat.Hand)
		out.Seats[i] = seat
	}
	out.Results = slices.Clone(s.Results)
	if s.Round != nil {
		r := *s.Round
		r.Pile = make([]Play, len(s.Round.Pile))
		for i, p := range s.Round.Pile {
			r.Pile[i] = Play{PlayerID: p.PlayerID, Cards: slices.Clone(p.Cards)}
		}
		r.Passed = slices.Clone(s.Round.Passed)
		r.Finished = slices.Clone(s.Round.Finished)
		r.Cleared = slices.Clone(s.Round.Cleared)
		r.Discarded = slices.Clone(s.Round.Discarded)
		out.Round = &r
	}
	if s.Trade != nil {
		t := *s.Trade
		if s.Trade.HighCard != nil {
			c := *s.Trade.HighCard
			t.HighCard = &c
		}
		if s.Trade.LowCard != nil {
			c := *s.Trade.LowCard
			t.LowCard = &c
		}
		out.Trade = &t
	}
	return out
}

func (s State) SeatIndex(id string) int {
	for i, seat := range s.Seats {
		if seat.ID == id {
			return i
		}
	}
	return -1
}

// CurrentID is the seat to act, or "" outside of play.
func (s State) CurrentID() string {
	if s.Phase != PhasePlaying || s.Current < 0 || s.Current >= len(s.Seats) {
		return ""
	}
	return s.Seats[s.Current].ID
}

// Active reports whether a deal is in progress.
func (s State) Active() bool { return s.Phase != PhaseLobby }

func (s State) HasPassed(id string) bool {
	return s.Round != nil && s.Round.hasPassed(id)
}

// LegalFor lists the groups id may play right now; nil when it is not their turn.
func (s State) LegalFor(id string) [][]Card {
	idx := s.SeatIndex(id)
	if s.Phase != PhasePlaying || idx < 0 || idx != s.Current {
		return nil
	}
	return LegalPlays(s.Seats[idx].Hand, s.Round.Top(), s.mustInclude(idx))
}

// CheckCards verifies that the 52 cards of the current deal are all accounted for,
// each exactly once, across hands, piles, trade and discards.
func (s State) CheckCards() error {
	if s.Round == nil {
		return nil
	}
	seen := make(map[Card]int, DeckSize)
	total := 0
	count := func(cards []Card) {
		for _, c := range cards {
			seen[c]++
			total++
		}
	}
	for _, seat := range s.Seats {
		count(seat.Hand)
	}
	for _, p := range s.Round.Pile {
		count(p.Cards)
	}
	count(s.Round.Cleared)
	count(s.Round.Discarded)
	if s.Trade != nil {
		count(s.Trade.pending())
	}
	if total != DeckSize || len(seen) != DeckSize {
		return fmt.Errorf("card count %d (%d distinct), want %d", total, len(seen), DeckSize)
	}
	return nil
}
