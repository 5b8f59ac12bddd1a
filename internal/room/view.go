package room

import (
	"math"
	"slices"

	"github.com/DoyleJ11/elpres-backend/internal/engine"
	"github.com/DoyleJ11/elpres-backend/pkg/types"
)

const phaseNoGame = "no_game"

// viewFor builds the snapshot id is allowed to see: their own hand only, valid plays only
// on their turn, and the trade cards face up only for the two trading parties.
func (r *Room) viewFor(id string) types.StateView {
	s := r.state
	v := types.StateView{
		Version:         r.version,
		Room:            r.name,
		CurrentPlayer:   -1,
		RoundsCompleted: s.RoundsCompleted,
		Results:         []string{},
		PassedThisRound: []string{},
		ValidPlays:      [][]types.Card{},
		TurnWarning:     r.warned,
	}
	if r.tag.Holder != "" {
		holder := r.tag.Holder
		v.DickTagged = &holder
	}

	if !s.Active() {
		v.Phase = phaseNoGame
		v.Players = []types.PlayerView{}
		for _, m := range r.members {
			if !m.Connected() && m.ID != id {
				continue
			}
			v.Players = append(v.Players, types.PlayerView{
				ID:           m.ID,
				Name:         m.Name,
				PastAccolade: string(r.pastAccolade(m.ID)),
			})
		}
		return v
	}

	v.Phase = string(s.Phase)
	if s.Phase == engine.PhasePlaying {
		v.CurrentPlayer = s.Current
	}
	var finished []string
	if s.Round != nil {
		finished = s.Round.Finished
		v.Results = slices.Clone(finished)
		v.PassedThisRound = append(v.PassedThisRound, s.Round.Passed...)
		rv := &types.RoundView{LastPlayPlayer: s.Round.LastPlayIdx, Pile: types.PileView{Plays: []types.PlayView{}}}
		for _, p := range s.Round.Pile {
			rv.Pile.Plays = append(rv.Pile.Plays, types.PlayView{PlayerID: p.PlayerID, Cards: toWireCards(p.Cards)})
		}
		v.Round = rv
	}

	seated := false
	v.Players = make([]types.PlayerView, 0, len(s.Seats))
	for _, seat := range s.Seats {
		pv := types.PlayerView{
			ID:           seat.ID,
			Name:         seat.Name,
			PastAccolade: string(seat.PastAccolade),
			Accolade:     string(seat.Accolade),
			CardCount:    len(seat.Hand),
		}
		if pos := slices.Index(finished, seat.ID); pos >= 0 {
			n := pos + 1
			pv.InResults = true
			pv.ResultPosition = &n
		}
		if m := r.member(seat.ID); m != nil {
			pv.Disconnected = !m.Connected()
			pv.Idle = m.Idle
		} else {
			pv.Disconnected = true
		}
		if seat.ID == id {
			seated = true
			hand := slices.Clone(seat.Hand)
			engine.SortCards(hand)
			pv.Hand = toWireCards(hand)
		}
		v.Players = append(v.Players, pv)
	}

	for _, legal := range s.LegalFor(id) {
		v.ValidPlays = append(v.ValidPlays, toWireCards(legal))
	}

	if s.Phase == engine.PhaseTrading && s.Trade != nil {
		v.Trading = tradingView(s.Trade, id)
	}
	v.Waiting = r.waitingView()

	v.Spectator = !seated
	if !seated {
		if m := r.member(id); m != nil {
			want := m.WantsToPlay
			v.WantsToPlay = &want
		}
	}
	for _, m := range r.members {
		if m.Connected() && s.SeatIndex(m.ID) < 0 {
			v.SpectatorCount++
		}
	}

	if r.vote != nil {
		yes, no := r.vote.Tally()
		v.RestartVote = &types.RestartView{
			InitiatorName: r.vote.InitiatorName,
			Yes:           yes,
			No:            no,
			Voted:         r.vote.HasVoted(id),
		}
	}
	return v
}

func (r *Room) pastAccolade(id string) engine.Accolade {
	if i := r.state.SeatIndex(id); i >= 0 {
		return r.state.Seats[i].PastAccolade
	}
	return engine.AccoladeNone
}

func tradingView(t *engine.Trade, id string) *types.TradingView {
	tv := &types.TradingView{
		EPClaimed:  t.PresidenteClaimed,
		SHClaimed:  t.ShitheadClaimed,
		FaceDown:   !t.Party(id),
		TradeCount: t.Count(),
	}
	if !tv.FaceDown {
		if t.HighCard != nil {
			c := toWireCard(*t.HighCard)
			tv.HighCard = &c
		}
		if t.LowCard != nil {
			c := toWireCard(*t.LowCard)
			tv.LowCard = &c
		}
	}
	return tv
}

// waitingView is the countdown shown while the current player is disconnected.
func (r *Room) waitingView() *types.WaitingView {
	m := r.member(r.state.CurrentID())
	if m == nil || m.Connected() || r.cfg.DisconnectGrace <= 0 {
		return nil
	}
	since := m.DisconnectedAt
	if since.IsZero() {
		since = r.now()
	}
	left := since.Add(r.cfg.DisconnectGrace).Sub(r.now()).Seconds()
	return &types.WaitingView{PlayerName: m.Name, SecondsRemaining: max(0, int(math.Ceil(left)))}
}

func toWireCard(c engine.Card) types.Card {
	return types.Card{Rank: c.Rank.Token(), Suit: c.Suit.Token()}
}

func toWireCards(cards []engine.Card) []types.Card {
	out := make([]types.Card, len(cards))
	for i, c := range cards {
		out[i] = toWireCard(c)
	}
	return out
}

func fromWireCards(cards []types.Card) ([]engine.Card, error) {
	out := make([]engine.Card, 0, len(cards))
	for _, c := range cards {
		rank, err := engine.ParseRank(c.Rank)
		if err != nil {
			return nil, err
		}
		suit, err := engine.ParseSuit(c.Suit)
		if err != nil {
			return nil, err
		}
		out = append(out, engine.Card{Rank: rank, Suit: suit})
	}
	return out, nil
}
