package engine

// Play is one player's uniform-rank card group on the pile.
type Play struct {
	PlayerID string `json:"player"`
	Cards    []Card `json:"cards"`
}

func (p Play) Rank() Rank {
	if len(p.Cards) == 0 {
		return -1
	}
	return p.Cards[0].Rank
}

const maxGroup = 4

// LegalPlays lists every card group from hand that may go on a pile whose top play is
// top (nil when the pile is empty). When mustInclude is set only groups containing that
// card are returned.
func LegalPlays(hand []Card, top *Play, mustInclude *Card) [][]Card {
	if len(hand) == 0 {
		return nil
	}
	byRank := make(map[Rank][]Card)
	for _, c := range hand {
		byRank[c.Rank] = append(byRank[c.Rank], c)
	}

	minSize, maxSize := 1, maxGroup
	var floor Rank = -1
	if top != nil && len(top.Cards) > 0 {
		minSize, maxSize = len(top.Cards), len(top.Cards)
		floor = top.Rank()
	}

	var out [][]Card
	for r := RankThree; r <= RankTwo; r++ {
		cards := byRank[r]
		if len(cards) == 0 || r <= floor {
			continue
		}
		SortCards(cards)
		for k := minSize; k <= maxSize && k <= len(cards); k++ {
			for _, combo := range combinations(cards, k) {
				if mustInclude != nil && !containsCard(combo, *mustInclude) {
					continue
				}
				out = append(out, combo)
			}
		}
	}
	return out
}

// IsUniform reports whether cards is a non-empty group of at most four cards of one rank.
func IsUniform(cards []Card) bool {
	if len(cards) == 0 || len(cards) > maxGroup {
		return false
	}
	for _, c := range cards {
		if c.Rank != cards[0].Rank {
			return false
		}
	}
	return true
}

// MatchLegal returns the legal group equal (as a set) to submitted.
func MatchLegal(legal [][]Card, submitted []Card) ([]Card, bool) {
	for _, combo := range legal {
		if sameCards(combo, submitted) {
			return combo, true
		}
	}
	return nil, false
}

func sameCards(a, b []Card) bool {
	if len(a) != len(b) {
		return false
	}
	return HasAll(a, b)
}

func combinations(arr []Card, k int) [][]Card {
	if k == 0 {
		return [][]Card{{}}
	}
	if k > len(arr) {
		return nil
	}
	var out [][]Card
	for i := range arr {
		for _, rest := range combinations(arr[i+1:], k-1) {
			combo := make([]Card, 0, k)
			combo = append(combo, arr[i])
			combo = append(combo, rest...)
			out = append(out, combo)
		}
	}
	return out
}
