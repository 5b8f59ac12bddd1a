package engine

import (
	"errors"
	"slices"
)

var ErrNotTrading = errors.New("Not in trading phase")
var ErrInvalidRole = errors.New("Invalid role")
var ErrNotPresidente = errors.New("Only El Presidente can claim the high card")
var ErrNotShithead = errors.New("Only Shithead can claim the low card")
var ErrAlreadyClaimed = errors.New("Card already claimed")

type Role string

const (
	RolePresidente Role = "presidente"
	RoleShithead   Role = "shithead"
)

// Trade is the card exchange between the previous round's ElPresidente and Shithead.
// Both cards have left their owner's hand and wait in the centre to be claimed.
type Trade struct {
	PresidenteID string `json:"presidente_id"`
	ShitheadID   string `json:"shithead_id"`
	// HighCard came from the Shithead and goes to the ElPresidente.
	HighCard *Card `json:"high_card,omitempty"`
	// LowCard came from the ElPresidente and goes to the Shithead.
	LowCard           *Card `json:"low_card,omitempty"`
	PresidenteClaimed bool  `json:"presidente_claimed"`
	ShitheadClaimed   bool  `json:"shithead_claimed"`
}

func (t *Trade) Done() bool { return t.PresidenteClaimed && t.ShitheadClaimed }

// Party reports whether id is one of the two trading players.
func (t *Trade) Party(id string) bool { return id == t.PresidenteID || id == t.ShitheadID }

// Count is the number of cards still waiting in the centre.
func (t *Trade) Count() int { return len(t.pending()) }

func (t *Trade) pending() []Card {
	var out []Card
	if t.HighCard != nil {
		out = append(out, *t.HighCard)
	}
	if t.LowCard != nil {
		out = append(out, *t.LowCard)
	}
	return out
}

// tradeParties resolves last round's ElPresidente and Shithead to seats, if both remain.
func (s *State) tradeParties() (ep, sh int, ok bool) {
	if len(s.Results) < 2 {
		return -1, -1, false
	}
	ep = s.SeatIndex(s.Results[0])
	sh = s.SeatIndex(s.Results[len(s.Results)-1])
	if ep < 0 || sh < 0 || ep == sh {
		return -1, -1, false
	}
	return ep, sh, true
}

func highestCard(hand []Card) (Card, bool) {
	if len(hand) == 0 {
		return Card{}, false
	}
	best := hand[0]
	for _, c := range hand[1:] {
		if best.Less(c) {
			best = c
		}
	}
	return best, true
}

// lowestTradable never gives away the opening card.
func lowestTradable(hand []Card) (Card, bool) {
	var best Card
	found := false
	for _, c := range hand {
		if c == OpeningCard {
			continue
		}
		if !found || c.Less(best) {
			best, found = c, true
		}
	}
	return best, found
}

func (s *State) beginTrade(ep, sh int) {
	t := &Trade{PresidenteID: s.Seats[ep].ID, ShitheadID: s.Seats[sh].ID}
	if c, ok := highestCard(s.Seats[sh].Hand); ok {
		t.HighCard = &c
		s.Seats[sh].Hand = RemoveCards(s.Seats[sh].Hand, []Card{c})
	} else {
		t.PresidenteClaimed = true
	}
	if c, ok := lowestTradable(s.Seats[ep].Hand); ok {
		t.LowCard = &c
		s.Seats[ep].Hand = RemoveCards(s.Seats[ep].Hand, []Card{c})
	} else {
		t.ShitheadClaimed = true
	}
	s.Trade = t
	s.Current = -1
}

func (s *State) claimTrade(id string, role Role) ([]Event, error) {
	if s.Phase != PhaseTrading || s.Trade == nil {
		return nil, ErrNotTrading
	}
	if s.SeatIndex(id) < 0 {
		return nil, ErrNotSeated
	}
	t := s.Trade
	var got []Card
	switch role {
	case RolePresidente:
		if id != t.PresidenteID {
			return nil, ErrNotPresidente
		}
		if t.PresidenteClaimed {
			return nil, ErrAlreadyClaimed
		}
		got = s.deliver(id, &t.HighCard)
		t.PresidenteClaimed = true
	case RoleShithead:
		if id != t.ShitheadID {
			return nil, ErrNotShithead
		}
		if t.ShitheadClaimed {
			return nil, ErrAlreadyClaimed
		}
		got = s.deliver(id, &t.LowCard)
		t.ShitheadClaimed = true
	default:
		return nil, ErrInvalidRole
	}

	events := []Event{{Type: EvtTradeClaimed, PlayerID: id, Cards: got}}
	if t.Done() {
		events = append(events, s.completeTrade()...)
	}
	return events, nil
}

// autoClaim settles whatever is still waiting in the centre.
func (s *State) autoClaim() ([]Event, error) {
	if s.Phase != PhaseTrading || s.Trade == nil {
		return nil, ErrNotTrading
	}
	t := s.Trade
	var events []Event
	if !t.PresidenteClaimed {
		got := s.deliver(t.PresidenteID, &t.HighCard)
		t.PresidenteClaimed = true
		events = append(events, Event{Type: EvtTradeClaimed, PlayerID: t.PresidenteID, Cards: got})
	}
	if !t.ShitheadClaimed {
		got := s.deliver(t.ShitheadID, &t.LowCard)
		t.ShitheadClaimed = true
		events = append(events, Event{Type: EvtTradeClaimed, PlayerID: t.ShitheadID, Cards: got})
	}
	return append(events, s.completeTrade()...), nil
}

// settleTradeWithout resolves the exchange when a trading party leaves: the card owed to
// the remaining party is delivered and the card owed to the leaver is discarded.
func (s *State) settleTradeWithout(id string) {
	t := s.Trade
	if t == nil || !t.Party(id) {
		return
	}
	if id == t.PresidenteID {
		if t.HighCard != nil {
			s.Round.Discarded = append(s.Round.Discarded, *t.HighCard)
			t.HighCard = nil
		}
		if !t.ShitheadClaimed {
			s.deliver(t.ShitheadID, &t.LowCard)
		}
	} else {
		if t.LowCard != nil {
			s.Round.Discarded = append(s.Round.Discarded, *t.LowCard)
			t.LowCard = nil
		}
		if !t.PresidenteClaimed {
			s.deliver(t.PresidenteID, &t.HighCard)
		}
	}
	t.PresidenteClaimed, t.ShitheadClaimed = true, true
}

// deliver moves the card in slot into id's hand and returns it, if any.
func (s *State) deliver(id string, slot **Card) []Card {
	c := *slot
	if c == nil {
		return nil
	}
	*slot = nil
	if idx := s.SeatIndex(id); idx >= 0 {
		hand := append(slices.Clone(s.Seats[idx].Hand), *c)
		SortCards(hand)
		s.Seats[idx].Hand = hand
	}
	return []Card{*c}
}

func (s *State) completeTrade() []Event {
	s.Trade = nil
	s.Phase = PhasePlaying
	s.leadOpening()
	return []Event{
		{Type: EvtTradeCompleted},
		{Type: EvtTurnAdvanced, PlayerID: s.Seats[s.Current].ID},
	}
}
