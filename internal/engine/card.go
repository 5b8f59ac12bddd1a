package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Rank order, low to high: 3 4 5 6 7 8 9 10 J Q K A 2
type Rank int8

const (
	RankThree Rank = iota
	RankFour
	RankFive
	RankSix
	RankSeven
	RankEight
	RankNine
	RankTen
	RankJack
	RankQueen
	RankKing
	RankAce
	RankTwo
)

const rankTokens = "3456789TJQKA2"

type Suit int8

const (
	SuitClub Suit = iota
	SuitDiamond
	SuitHeart
	SuitSpade
)

const suitTokens = "CDHS"

var ErrBadCard = errors.New("invalid card")

type Card struct {
	Rank Rank
	Suit Suit
}

// OpeningCard gives its holder the lead of every round and must open the first one.
var OpeningCard = Card{Rank: RankThree, Suit: SuitClub}

func (r Rank) Valid() bool { return r >= RankThree && r <= RankTwo }
func (s Suit) Valid() bool { return s >= SuitClub && s <= SuitSpade }

// Token is the wire form of a rank; ten is the single reserved token "T".
func (r Rank) Token() string {
	if !r.Valid() {
		return "?"
	}
	return rankTokens[r : r+1]
}

func (r Rank) String() string {
	if r == RankTen {
		return "10"
	}
	return r.Token()
}

func (s Suit) Token() string {
	if !s.Valid() {
		return "?"
	}
	return suitTokens[s : s+1]
}

func ParseRank(tok string) (Rank, error) {
	tok = strings.ToUpper(strings.TrimSpace(tok))
	if tok == "10" {
		return RankTen, nil
	}
	if len(tok) != 1 {
		return 0, fmt.Errorf("%w: rank %q", ErrBadCard, tok)
	}
	i := strings.IndexByte(rankTokens, tok[0])
	if i < 0 {
		return 0, fmt.Errorf("%w: rank %q", ErrBadCard, tok)
	}
	return Rank(i), nil
}

func ParseSuit(tok string) (Suit, error) {
	tok = strings.ToUpper(strings.TrimSpace(tok))
	if len(tok) != 1 {
		return 0, fmt.Errorf("%w: suit %q", ErrBadCard, tok)
	}
	i := strings.IndexByte(suitTokens, tok[0])
	if i < 0 {
		return 0, fmt.Errorf("%w: suit %q", ErrBadCard, tok)
	}
	return Suit(i), nil
}

// ParseCard accepts the display form, e.g. "4H" or "10S".
func ParseCard(s string) (Card, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return Card{}, fmt.Errorf("%w: %q", ErrBadCard, s)
	}
	r, err := ParseRank(s[:len(s)-1])
	if err != nil {
		return Card{}, err
	}
	su, err := ParseSuit(s[len(s)-1:])
	if err != nil {
		return Card{}, err
	}
	return Card{Rank: r, Suit: su}, nil
}

// MustParseCards is a test and fixture helper; it panics on bad input.
func MustParseCards(ss ...string) []Card {
	out := make([]Card, 0, len(ss))
	for _, s := range ss {
		c, err := ParseCard(s)
		if err != nil {
			panic(err)
		}
		out = append(out, c)
	}
	return out
}

func (c Card) Valid() bool { return c.Rank.Valid() && c.Suit.Valid() }

// Value orders cards by rank then suit.
func (c Card) Value() int { return int(c.Rank)*4 + int(c.Suit) }

func (c Card) Less(o Card) bool { return c.Value() < o.Value() }

func (c Card) String() string { return c.Rank.String() + c.Suit.Token() }

type cardJSON struct {
	Rank string `json:"rank"`
	Suit string `json:"suit"`
}

func (c Card) MarshalJSON() ([]byte, error) {
	return json.Marshal(cardJSON{Rank: c.Rank.Token(), Suit: c.Suit.Token()})
}

func (c *Card) UnmarshalJSON(data []byte) error {
	var raw cardJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r, err := ParseRank(raw.Rank)
	if err != nil {
		return err
	}
	s, err := ParseSuit(raw.Suit)
	if err != nil {
		return err
	}
	*c = Card{Rank: r, Suit: s}
	return nil
}

// SortCards orders cards ascending in place.
func SortCards(cards []Card) {
	sort.Slice(cards, func(i, j int) bool { return cards[i].Less(cards[j]) })
}

func containsCard(cards []Card, c Card) bool {
	for _, x := range cards {
		if x == c {
			return true
		}
	}
	return false
}

// RemoveCards returns hand minus toRemove, honouring multiplicity.
func RemoveCards(hand []Card, toRemove []Card) []Card {
	if len(toRemove) == 0 || len(hand) == 0 {
		return hand
	}
	removeCounts := make(map[Card]int, len(toRemove))
	for _, card := range toRemove {
		removeCounts[card]++
	}
	updated := make([]Card, 0, len(hand))
	for _, card := range hand {
		if count := removeCounts[card]; count > 0 {
			removeCounts[card] = count - 1
			continue
		}
		updated = append(updated, card)
	}
	return updated
}

// HasAll reports whether every card is present in hand.
func HasAll(hand []Card, cards []Card) bool {
	counts := make(map[Card]int, len(hand))
	for _, c := range hand {
		counts[c]++
	}
	for _, c := range cards {
		if counts[c] == 0 {
			return false
		}
		counts[c]--
	}
	return true
}
