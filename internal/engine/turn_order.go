package engine

// nextEligible is the first seat after from still holding cards that has not passed on
// the current pile, or -1.
func (s *State) nextEligible(from int) int {
	n := len(s.Seats)
	for step := 1; step < n; step++ {
		i := (from + step) % n
		if len(s.Seats[i].Hand) > 0 && !s.Round.hasPassed(s.Seats[i].ID) {
			return i
		}
	}
	return -1
}

// nextActive is the first seat after from still holding cards, ignoring passes, or -1.
func (s *State) nextActive(from int) int {
	n := len(s.Seats)
	for step := 1; step < n; step++ {
		i := (from + step) % n
		if len(s.Seats[i].Hand) > 0 {
			return i
		}
	}
	return -1
}

func (s *State) activeCount() int {
	n := 0
	for _, seat := range s.Seats {
		if len(seat.Hand) > 0 {
			n++
		}
	}
	return n
}

// advance moves the turn on from seat from. When nobody but the last player is left to
// answer the top play, the pile clears and the last player leads; if they have gone out
// the lead passes to the next seat with cards.
func (s *State) advance(from int) []Event {
	r := s.Round
	if next := s.nextEligible(from); next >= 0 && next != r.LastPlayIdx {
		s.Current = next
		return []Event{{Type: EvtTurnAdvanced, PlayerID: s.Seats[next].ID}}
	}

	leader := r.LastPlayIdx
	if leader < 0 || len(s.Seats[leader].Hand) == 0 {
		base := leader
		if base < 0 {
			base = from
		}
		leader = s.nextActive(base)
		if leader < 0 && len(s.Seats[base].Hand) > 0 {
			leader = base
		}
	}
	r.clearPile()
	s.Current = leader
	events := []Event{{Type: EvtPileCleared}}
	if leader >= 0 {
		events = append(events, Event{Type: EvtTurnAdvanced, PlayerID: s.Seats[leader].ID})
	}
	return events
}

// leadOpening hands the lead to the holder of the opening card, or seat 0 when it was
// not dealt.
func (s *State) leadOpening() {
	s.Current = 0
	for i, seat := range s.Seats {
		if containsCard(seat.Hand, OpeningCard) {
			s.Current = i
			return
		}
	}
}
