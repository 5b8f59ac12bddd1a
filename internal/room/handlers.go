package room

import (
	"errors"

	"go.uber.org/zap"

	"github.com/DoyleJ11/elpres-backend/internal/engine"
	"github.com/DoyleJ11/elpres-backend/internal/vote"
	"github.com/DoyleJ11/elpres-backend/pkg/types"
)

var errInvalidVote = errors.New("Invalid vote")

func (r *Room) handleClient(msg FromClient) {
	m := r.member(msg.PlayerID)
	if m == nil || m.outbox == nil || m.conn != msg.Conn {
		r.log.Debug("message from detached connection", zap.String("player", msg.PlayerID))
		return
	}
	r.touch(m)

	cm := msg.Msg
	switch cm.Type {
	case types.MsgHeartbeat:

	case types.MsgStateRequest:
		r.sendState(m)

	case types.MsgLeave:
		r.trySend(m, types.ServerMessage{Type: types.MsgYouLeft})
		r.removeMember(m)
		r.commit(true)

	case types.MsgPlay:
		cards, err := fromWireCards(cm.Cards)
		if err != nil {
			r.log.Debug("dropping play with unreadable cards", zap.String("player", m.ID), zap.Error(err))
			return
		}
		r.act(m, engine.Command{Type: engine.CmdPlay, PlayerID: m.ID, Cards: cards})

	case types.MsgPass:
		r.act(m, engine.Command{Type: engine.CmdPass, PlayerID: m.ID})

	case types.MsgClaimTrade:
		r.act(m, engine.Command{Type: engine.CmdClaimTrade, PlayerID: m.ID, Role: engine.Role(cm.Role)})

	case types.MsgStartGame:
		r.startGame(m)

	case types.MsgRequestRestartVote:
		r.requestRestart(m)

	case types.MsgRestartVote:
		r.castVote(m, cm.Vote)

	case types.MsgTagDick:
		r.tagDick(m, cm.TargetPlayerID)

	case types.MsgSpectatorPreference:
		if cm.WantToPlay == nil {
			return
		}
		m.WantsToPlay = *cm.WantToPlay
		r.commit(true)

	default:
		r.log.Warn("unknown message type", zap.String("player", m.ID), zap.String("type", cm.Type))
	}
}

// act applies a player's own command, answering a rule violation to them alone. The
// action is stamped before apply so the turn timers armed for a player who leads again
// see it; a rejected command puts the old stamp back.
func (r *Room) act(m *Member, cmd engine.Command) {
	last, idle := m.LastAction, m.Idle
	m.LastAction = r.now()
	m.Idle = false
	if _, err := r.apply(cmd); err != nil {
		m.LastAction, m.Idle = last, idle
		r.sendError(m, err)
		return
	}
	r.commit(true)
}

// apply runs cmd through the engine, swaps in the result and reacts to its events. It
// does not commit.
func (r *Room) apply(cmd engine.Command) ([]engine.Event, error) {
	events, next, err := engine.Apply(r.state, cmd)
	if err != nil {
		return nil, err
	}
	r.state = next
	if err := r.state.CheckCards(); err != nil {
		r.log.Error("card invariant broken", zap.String("cmd", string(cmd.Type)), zap.Error(err))
	}
	r.react(events)
	r.startTurn()
	return events, nil
}

func (r *Room) react(events []engine.Event) {
	for _, ev := range events {
		switch ev.Type {
		case engine.EvtGameStarted, engine.EvtRoundStarted:
			now := r.now()
			for _, seat := range r.state.Seats {
				if m := r.member(seat.ID); m != nil {
					m.LastAction = now
					m.Idle = false
				}
			}
			r.log.Info("cards dealt", zap.Int("players", len(r.state.Seats)), zap.Int("round", r.state.RoundsCompleted+1))

		case engine.EvtPlayerFinished:
			r.log.Info("player finished", zap.String("player", ev.PlayerID))

		case engine.EvtRoundOver:
			r.log.Info("round over", zap.Strings("results", ev.Results))
			r.broadcast(types.ServerMessage{Type: types.MsgGameOver, Results: ev.Results}, "")
			r.schedule(timerKey{purpose: timerNextRound}, r.cfg.NextRound)

		case engine.EvtGameEnded:
			r.log.Info("game ended", zap.Strings("results", ev.Results))
			r.broadcast(types.ServerMessage{Type: types.MsgGameOver, Results: ev.Results}, "")
			r.endOfGame()

		case engine.EvtReset:
			r.endOfGame()

		case engine.EvtTradeStarted:
			if r.cfg.TradeClaim > 0 {
				r.schedule(timerKey{purpose: timerTradeClaim}, r.cfg.TradeClaim)
			}

		case engine.EvtTradeCompleted:
			r.cancelTimer(timerKey{purpose: timerTradeClaim})
		}
	}
}

// endOfGame drops round-scoped timers and any vote once the room is back in the lobby.
func (r *Room) endOfGame() {
	r.cancelTimer(timerKey{purpose: timerNextRound})
	r.cancelTimer(timerKey{purpose: timerTradeClaim})
	if r.vote != nil {
		r.endVote()
		r.broadcast(types.ServerMessage{Type: types.MsgRestartVoteRejected}, "")
	}
}

// seatable lists connected members who want a seat, in join order, up to limit.
func (r *Room) seatable(limit int, skip func(id string) bool) []engine.SeatInfo {
	var out []engine.SeatInfo
	for _, m := range r.members {
		if len(out) >= limit {
			break
		}
		if !m.Connected() || !m.WantsToPlay || (skip != nil && skip(m.ID)) {
			continue
		}
		out = append(out, engine.SeatInfo{ID: m.ID, Name: m.Name})
	}
	return out
}

func (r *Room) startGame(m *Member) {
	seats := r.seatable(r.cfg.Rules.MaxSeats, nil)
	r.act(m, engine.Command{Type: engine.CmdStartGame, Seats: seats})
}

// dealNextRound seats waiting spectators and deals. Too few players left returns the
// room to the lobby.
func (r *Room) dealNextRound() {
	free := r.cfg.Rules.MaxSeats - len(r.state.Seats)
	joiners := r.seatable(max(free, 0), func(id string) bool { return r.state.SeatIndex(id) >= 0 })
	_, err := r.apply(engine.Command{Type: engine.CmdNextRound, Seats: joiners})
	if errors.Is(err, engine.ErrNotEnoughPlayers) {
		r.log.Info("not enough players for next round")
		_, err = r.apply(engine.Command{Type: engine.CmdResetToLobby})
	}
	if err != nil {
		r.log.Warn("next round", zap.Error(err))
		return
	}
	r.commit(true)
}

func (r *Room) requestRestart(m *Member) {
	if !r.state.Active() {
		r.sendError(m, engine.ErrNoGame)
		return
	}
	if r.vote != nil {
		r.sendError(m, vote.ErrInProgress)
		return
	}
	voters := make([]string, 0, len(r.state.Seats))
	for _, seat := range r.state.Seats {
		voters = append(voters, seat.ID)
	}
	v, err := vote.Start(r.cfg.VotePolicy, m.ID, m.Name, voters)
	if err != nil {
		r.sendError(m, engine.ErrNotSeated)
		return
	}
	r.vote = v
	r.log.Info("restart vote requested", zap.String("player", m.ID))
	r.broadcast(types.ServerMessage{Type: types.MsgRestartVoteRequested, InitiatorName: m.Name}, m.ID)
	if r.cfg.RestartVote > 0 {
		r.schedule(timerKey{purpose: timerRestartVote}, r.cfg.RestartVote)
	}
	r.settleVote(v.Outcome())
	r.commit(false)
}

func (r *Room) castVote(m *Member, ballot string) {
	if r.vote == nil {
		r.sendError(m, vote.ErrNoVote)
		return
	}
	var yes bool
	switch ballot {
	case types.VoteYes:
		yes = true
	case types.VoteNo:
	default:
		r.sendError(m, errInvalidVote)
		return
	}
	if err := r.vote.Cast(m.ID, yes); err != nil {
		if errors.Is(err, vote.ErrNotVoter) {
			// Spectators have no say.
			return
		}
		r.sendError(m, err)
		return
	}
	r.settleVote(r.vote.Outcome())
	r.commit(false)
}

func (r *Room) settleVote(o vote.Outcome) {
	switch o {
	case vote.Passed:
		r.endVote()
		r.log.Info("restart vote settled", zap.Stringer("outcome", o))
		r.broadcast(types.ServerMessage{Type: types.MsgRestartVotePassed}, "")
		if _, err := r.apply(engine.Command{Type: engine.CmdResetToLobby}); err != nil {
			r.log.Warn("reset to lobby", zap.Error(err))
		}
		r.persist()
	case vote.Rejected:
		r.endVote()
		r.log.Info("restart vote settled", zap.Stringer("outcome", o))
		r.broadcast(types.ServerMessage{Type: types.MsgRestartVoteRejected}, "")
	}
}

func (r *Room) endVote() {
	r.vote = nil
	r.cancelTimer(timerKey{purpose: timerRestartVote})
}
