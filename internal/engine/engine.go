package engine

import (
	"errors"
	"slices"
)

// User-facing rule violations. ErrNotYourTurn is the one message clients treat as non-fatal.
var ErrNotYourTurn = errors.New("Not your turn")
var ErrNotPlaying = errors.New("Not in playing phase")
var ErrGameInProgress = errors.New("Game already in progress")
var ErrNoGame = errors.New("No game in progress")
var ErrNotEnoughPlayers = errors.New("Need at least 2 players")
var ErrTooManyPlayers = errors.New("Too many players")
var ErrNotSeated = errors.New("You are not in this game")
var ErrNoCards = errors.New("No cards specified")
var ErrCardNotInHand = errors.New("Card not in hand")
var ErrIllegalPlay = errors.New("Invalid play")
var ErrMustPlayOpening = errors.New("Must play 3C in first play")
var ErrRoundNotOver = errors.New("Round is not over")
var ErrBadDeck = errors.New("deck must hold 52 distinct cards")
var ErrUnsupportedCommand = errors.New("unsupported command")

type Phase string

const (
	PhaseLobby     Phase = "Lobby"
	PhasePlaying   Phase = "Playing"
	PhaseRoundOver Phase = "RoundOver"
	PhaseTrading   Phase = "Trading"
)

type Accolade string

const (
	AccoladeNone         Accolade = ""
	AccoladeElPresidente Accolade = "ElPresidente"
	AccoladeVP           Accolade = "VP"
	AccoladePleb         Accolade = "Pleb"
	AccoladeShithead     Accolade = "Shithead"
)

type Seat struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Hand         []Card   `json:"hand"`
	Accolade     Accolade `json:"accolade,omitempty"`
	PastAccolade Accolade `json:"past_accolade,omitempty"`
}

// Round is one deal: it lives from the deal until the next deal or the return to Lobby.
type Round struct {
	Pile        []Play   `json:"pile"`
	LastPlayIdx int      `json:"last_play_player_idx"`
	Passed      []string `json:"passed"`
	Finished    []string `json:"finished"`
	Plays       int      `json:"plays"`
	// Cards from piles already cleared this round.
	Cleared []Card `json:"cleared,omitempty"`
	// Hands of players who left mid-round.
	Discarded []Card `json:"discarded,omitempty"`
}

// clearPile moves the pile aside and opens a fresh cycle.
func (r *Round) clearPile() {
	for _, p := range r.Pile {
		r.Cleared = append(r.Cleared, p.Cards...)
	}
	r.Pile = nil
	r.Passed = nil
	r.LastPlayIdx = -1
}

func (r *Round) Top() *Play {
	if r == nil || len(r.Pile) == 0 {
		return nil
	}
	return &r.Pile[len(r.Pile)-1]
}

func (r *Round) hasPassed(id string) bool { return slices.Contains(r.Passed, id) }
func (r *Round) hasFinished(id string) bool { return slices.Contains(r.Finished, id) }

type Rules struct {
	MinSeats int `json:"min_seats"`
	MaxSeats int `json:"max_seats"`
	// The first play of a game must include the opening card when the leader holds it.
	OpeningCardRule bool `json:"opening_card_rule"`
}

type State struct {
	Phase           Phase    `json:"phase"`
	Seats           []Seat   `json:"seats"`
	Current         int      `json:"current_player_idx"`
	Round           *Round   `json:"round,omitempty"`
	Trade           *Trade   `json:"trade,omitempty"`
	RoundsCompleted int      `json:"rounds_completed"`
	Results         []string `json:"results,omitempty"`
	Rules           Rules    `json:"rules"`
}

type SeatInfo struct {
	ID   string
	Name string
}

type CommandType string

const (
	CmdStartGame    CommandType = "StartGame"
	CmdPlay         CommandType = "Play"
	CmdPass         CommandType = "Pass"
	CmdNextRound    CommandType = "NextRound"
	CmdClaimTrade   CommandType = "ClaimTrade"
	CmdAutoClaim    CommandType = "AutoClaim"
	CmdRemovePlayer CommandType = "RemovePlayer"
	CmdResetToLobby CommandType = "ResetToLobby"
)

/*
	CmdStartGame    -> EvtGameStarted -> EvtTurnAdvanced
	CmdPlay         -> EvtCardsPlayed [-> EvtPlayerFinished] -> EvtTurnAdvanced | EvtPileCleared+EvtTurnAdvanced | EvtRoundOver
	CmdPass         -> EvtPassed -> EvtTurnAdvanced | EvtPileCleared+EvtTurnAdvanced
	CmdNextRound    -> EvtRoundStarted -> EvtTradeStarted | EvtTurnAdvanced
	CmdClaimTrade   -> EvtTradeClaimed [-> EvtTradeCompleted -> EvtTurnAdvanced]
	CmdRemovePlayer -> EvtPlayerRemoved [-> turn events | EvtRoundOver | EvtGameEnded]
	CmdResetToLobby -> EvtReset
*/

type Command struct {
	Type     CommandType
	PlayerID string
	Cards    []Card
	Role     Role
	// StartGame: the seats in order. NextRound: spectators joining the next deal.
	Seats []SeatInfo
	// Optional fixed deck order; a shuffled deck is used when empty.
	Deck []Card
}

type EventType string

const (
	EvtGameStarted    EventType = "GameStarted"
	EvtRoundStarted   EventType = "RoundStarted"
	EvtCardsPlayed    EventType = "CardsPlayed"
	EvtPassed         EventType = "Passed"
	EvtPileCleared    EventType = "PileCleared"
	EvtTurnAdvanced   EventType = "TurnAdvanced"
	EvtPlayerFinished EventType = "PlayerFinished"
	EvtRoundOver      EventType = "RoundOver"
	EvtTradeStarted   EventType = "TradeStarted"
	EvtTradeClaimed   EventType = "TradeClaimed"
	EvtTradeCompleted EventType = "TradeCompleted"
	EvtPlayerRemoved  EventType = "PlayerRemoved"
	EvtGameEnded      EventType = "GameEnded"
	EvtReset          EventType = "Reset"
)

type Event struct {
	Type     EventType
	PlayerID string
	Cards    []Card
	Results  []string
}

// Apply validates cmd against s and returns the resulting state. On error the returned
// state is s, untouched: commands never partially apply.
func Apply(s State, cmd Command) ([]Event, State, error) {
	ns := s.Clone()

	var events []Event
	var err error
	switch cmd.Type {
	case CmdStartGame:
		events, err = ns.startGame(cmd)
	case CmdPlay:
		events, err = ns.play(cmd.PlayerID, cmd.Cards)
	case CmdPass:
		events, err = ns.pass(cmd.PlayerID)
	case CmdNextRound:
		events, err = ns.nextRound(cmd)
	case CmdClaimTrade:
		events, err = ns.claimTrade(cmd.PlayerID, cmd.Role)
	case CmdAutoClaim:
		events, err = ns.autoClaim()
	case CmdRemovePlayer:
		events, err = ns.removePlayer(cmd.PlayerID)
	case CmdResetToLobby:
		events, err = ns.resetToLobby()
	default:
		return nil, s, ErrUnsupportedCommand
	}
	if err != nil {
		return nil, s, err
	}
	return events, ns, nil
}

func (s *State) startGame(cmd Command) ([]Event, error) {
	if s.Phase != PhaseLobby {
		return nil, ErrGameInProgress
	}
	if len(cmd.Seats) < s.Rules.MinSeats {
		return nil, ErrNotEnoughPlayers
	}
	if len(cmd.Seats) > s.Rules.MaxSeats {
		return nil, ErrTooManyPlayers
	}
	seats := make([]Seat, 0, len(cmd.Seats))
	for _, si := range cmd.Seats {
		seats = append(seats, Seat{ID: si.ID, Name: si.Name})
	}
	s.Seats = seats
	s.Results = nil
	if err := s.dealRound(cmd.Deck); err != nil {
		return nil, err
	}
	s.Phase = PhasePlaying
	s.leadOpening()
	return []Event{
		{Type: EvtGameStarted},
		{Type: EvtTurnAdvanced, PlayerID: s.Seats[s.Current].ID},
	}, nil
}

func (s *State) dealRound(deck []Card) error {
	if len(deck) == 0 {
		deck = ShuffledDeck(nil)
	} else if !validDeck(deck) {
		return ErrBadDeck
	}
	hands := deal(deck, len(s.Seats))
	for i := range s.Seats {
		s.Seats[i].Hand = hands[i]
	}
	s.Round = &Round{LastPlayIdx: -1}
	s.Trade = nil
	s.Current = -1
	return nil
}

func validDeck(deck []Card) bool {
	if len(deck) != DeckSize {
		return false
	}
	seen := make(map[Card]bool, DeckSize)
	for _, c := range deck {
		if !c.Valid() || seen[c] {
			return false
		}
		seen[c] = true
	}
	return true
}

// turnSeat checks that id may act now and returns their seat index.
func (s *State) turnSeat(id string) (int, error) {
	if s.Phase != PhasePlaying || s.Round == nil {
		return -1, ErrNotPlaying
	}
	idx := s.SeatIndex(id)
	if idx < 0 {
		return -1, ErrNotSeated
	}
	if idx != s.Current {
		return -1, ErrNotYourTurn
	}
	return idx, nil
}

func (s *State) play(id string, cards []Card) ([]Event, error) {
	idx, err := s.turnSeat(id)
	if err != nil {
		return nil, err
	}
	if len(cards) == 0 {
		return nil, ErrNoCards
	}
	if !IsUniform(cards) {
		return nil, ErrIllegalPlay
	}
	seat := &s.Seats[idx]
	if !HasAll(seat.Hand, cards) {
		return nil, ErrCardNotInHand
	}
	top := s.Round.Top()
	must := s.mustInclude(idx)
	picked, ok := MatchLegal(LegalPlays(seat.Hand, top, must), cards)
	if !ok {
		if must != nil {
			if _, loose := MatchLegal(LegalPlays(seat.Hand, top, nil), cards); loose {
				return nil, ErrMustPlayOpening
			}
		}
		return nil, ErrIllegalPlay
	}

	seat.Hand = RemoveCards(seat.Hand, picked)
	r := s.Round
	r.Pile = append(r.Pile, Play{PlayerID: id, Cards: picked})
	r.LastPlayIdx = idx
	r.Plays++

	events := []Event{{Type: EvtCardsPlayed, PlayerID: id, Cards: picked}}
	if len(seat.Hand) == 0 {
		r.Finished = append(r.Finished, id)
		events = append(events, Event{Type: EvtPlayerFinished, PlayerID: id})
	}
	if s.activeCount() <= 1 {
		return append(events, s.endRound()...), nil
	}
	return append(events, s.advance(idx)...), nil
}

func (s *State) pass(id string) ([]Event, error) {
	idx, err := s.turnSeat(id)
	if err != nil {
		return nil, err
	}
	s.Round.Passed = append(s.Round.Passed, id)
	events := []Event{{Type: EvtPassed, PlayerID: id}}
	return append(events, s.advance(idx)...), nil
}

// mustInclude returns the opening card when seat idx leads the first play of the first
// round of a game holding it. Later rounds still open with its holder but free the lead.
func (s *State) mustInclude(idx int) *Card {
	if !s.Rules.OpeningCardRule || s.RoundsCompleted > 0 || s.Round.Plays > 0 {
		return nil
	}
	if !containsCard(s.Seats[idx].Hand, OpeningCard) {
		return nil
	}
	c := OpeningCard
	return &c
}

// endRound appends the last seat still holding cards, assigns accolades and holds the
// results until the next deal.
func (s *State) endRound() []Event {
	r := s.Round
	for _, seat := range s.Seats {
		if !r.hasFinished(seat.ID) {
			r.Finished = append(r.Finished, seat.ID)
		}
	}
	s.assignAccolades(r.Finished)
	s.Results = slices.Clone(r.Finished)
	s.RoundsCompleted++
	r.clearPile()
	s.Phase = PhaseRoundOver
	s.Current = -1
	return []Event{{Type: EvtRoundOver, Results: slices.Clone(s.Results)}}
}

// AccoladeFor maps a 0-based finish position among n players to its accolade.
func AccoladeFor(pos, n int) Accolade {
	switch {
	case pos == 0:
		return AccoladeElPresidente
	case pos == n-1:
		return AccoladeShithead
	case pos == 1:
		return AccoladeVP
	default:
		return AccoladePleb
	}
}

func (s *State) assignAccolades(order []string) {
	for i := range s.Seats {
		pos := slices.Index(order, s.Seats[i].ID)
		if pos < 0 {
			s.Seats[i].Accolade = AccoladeShithead
			continue
		}
		s.Seats[i].Accolade = AccoladeFor(pos, len(order))
	}
}

func (s *State) nextRound(cmd Command) ([]Event, error) {
	if s.Phase != PhaseRoundOver {
		return nil, ErrRoundNotOver
	}
	for _, j := range cmd.Seats {
		if len(s.Seats) >= s.Rules.MaxSeats {
			break
		}
		if s.SeatIndex(j.ID) >= 0 {
			continue
		}
		s.Seats = append(s.Seats, Seat{ID: j.ID, Name: j.Name})
	}
	if len(s.Seats) < s.Rules.MinSeats {
		return nil, ErrNotEnoughPlayers
	}
	for i := range s.Seats {
		s.Seats[i].PastAccolade = s.Seats[i].Accolade
		s.Seats[i].Accolade = AccoladeNone
	}
	if err := s.dealRound(cmd.Deck); err != nil {
		return nil, err
	}

	events := []Event{{Type: EvtRoundStarted}}
	if ep, sh, ok := s.tradeParties(); ok {
		s.Phase = PhaseTrading
		s.beginTrade(ep, sh)
		return append(events, Event{Type: EvtTradeStarted}), nil
	}
	s.Phase = PhasePlaying
	s.leadOpening()
	return append(events, Event{Type: EvtTurnAdvanced, PlayerID: s.Seats[s.Current].ID}), nil
}

func (s *State) resetToLobby() ([]Event, error) {
	if s.Phase == PhaseLobby {
		return nil, ErrNoGame
	}
	s.toLobby()
	s.RoundsCompleted = 0
	s.Results = nil
	return []Event{{Type: EvtReset}}, nil
}

// toLobby keeps the seating order and drops everything dealt.
func (s *State) toLobby() {
	for i := range s.Seats {
		s.Seats[i].Hand = nil
		s.Seats[i].Accolade = AccoladeNone
		s.Seats[i].PastAccolade = AccoladeNone
	}
	s.Phase = PhaseLobby
	s.Round = nil
	s.Trade = nil
	s.Current = -1
}

func (s *State) removePlayer(id string) ([]Event, error) {
	idx := s.SeatIndex(id)
	if idx < 0 {
		return nil, ErrNotSeated
	}
	events := []Event{{Type: EvtPlayerRemoved, PlayerID: id}}
	if s.Phase == PhaseLobby {
		s.Seats = slices.Delete(s.Seats, idx, idx+1)
		return events, nil
	}

	if s.Phase == PhaseTrading {
		s.settleTradeWithout(id)
	}
	r := s.Round
	if r != nil {
		r.Discarded = append(r.Discarded, s.Seats[idx].Hand...)
		r.Finished = slices.DeleteFunc(r.Finished, func(x string) bool { return x == id })
		r.Passed = slices.DeleteFunc(r.Passed, func(x string) bool { return x == id })
	}
	wasCurrent := s.Current == idx
	s.Seats = slices.Delete(s.Seats, idx, idx+1)
	s.Current = shiftIndex(s.Current, idx)
	if r != nil {
		r.LastPlayIdx = shiftIndex(r.LastPlayIdx, idx)
	}

	if len(s.Seats) < s.Rules.MinSeats {
		results := s.Results
		if s.Phase == PhasePlaying || s.Phase == PhaseTrading {
			results = nil
			if r != nil {
				results = slices.Clone(r.Finished)
			}
			for _, seat := range s.Seats {
				if !slices.Contains(results, seat.ID) {
					results = append(results, seat.ID)
				}
			}
		}
		s.toLobby()
		return append(events, Event{Type: EvtGameEnded, Results: results}), nil
	}

	switch s.Phase {
	case PhasePlaying:
		if s.activeCount() <= 1 {
			return append(events, s.endRound()...), nil
		}
		if wasCurrent {
			prev := (idx - 1 + len(s.Seats)) % len(s.Seats)
			events = append(events, s.advance(prev)...)
		}
	case PhaseTrading:
		if s.Trade == nil || s.Trade.Done() {
			events = append(events, s.completeTrade()...)
		}
	}
	return events, nil
}

func shiftIndex(i, removed int) int {
	switch {
	case i == removed:
		return -1
	case i > removed:
		return i - 1
	default:
		return i
	}
}
