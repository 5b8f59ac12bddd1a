package engine

import "math/rand/v2"

const DeckSize = 52

// NewDeck returns an ordered 52-card deck.
func NewDeck() []Card {
	deck := make([]Card, 0, DeckSize)
	for r := RankThree; r <= RankTwo; r++ {
		for s := SuitClub; s <= SuitSpade; s++ {
			deck = append(deck, Card{Rank: r, Suit: s})
		}
	}
	return deck
}

// ShuffledDeck returns a new deck shuffled with rng, or the global source when rng is nil.
func ShuffledDeck(rng *rand.Rand) []Card {
	deck := NewDeck()
	shuffle := rand.Shuffle
	if rng != nil {
		shuffle = rng.Shuffle
	}
	shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })
	return deck
}

// deal hands out deck round-robin starting at seat 0, so the remainder of an uneven
// split lands on the earliest seats.
func deal(deck []Card, seats int) [][]Card {
	hands := make([][]Card, seats)
	for i, c := range deck {
		hands[i%seats] = append(hands[i%seats], c)
	}
	for _, h := range hands {
		SortCards(h)
	}
	return hands
}
