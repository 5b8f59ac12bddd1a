package room

import (
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/elpres-backend/internal/engine"
)

type timerPurpose string

const (
	timerOpeningPlay timerPurpose = "opening-play"
	timerTurnWarn    timerPurpose = "turn-warn"
	timerAutoPass    timerPurpose = "auto-pass"
	timerIdle        timerPurpose = "idle"
	timerGrace       timerPurpose = "disconnect-grace"
	timerGraceTick   timerPurpose = "grace-tick"
	timerEject       timerPurpose = "disconnect-eject"
	timerLiveness    timerPurpose = "liveness"
	timerRestartVote timerPurpose = "restart-vote"
	timerNextRound   timerPurpose = "next-round"
	timerTradeClaim  timerPurpose = "trade-claim"
)

// turnTimers all belong to whoever is current and are replaced on every turn change.
var turnTimers = []timerPurpose{timerOpeningPlay, timerTurnWarn, timerAutoPass, timerIdle, timerGrace, timerGraceTick}

type timerKey struct {
	purpose timerPurpose
	player  string
}

type timerFired struct {
	key timerKey
	gen uint64
}

func (timerFired) isRoomMsg() {}

type timerEntry struct {
	gen uint64
	t   *time.Timer
}

// schedule (re)arms the timer for key. Each arm gets a fresh generation, so a firing
// already queued for an older arm is recognised and dropped.
func (r *Room) schedule(key timerKey, d time.Duration) {
	r.cancelTimer(key)
	if d < 0 {
		d = 0
	}
	r.gen++
	gen := r.gen
	t := time.AfterFunc(d, func() {
		select {
		case r.inbox <- timerFired{key: key, gen: gen}:
		case <-r.ctx.Done():
		}
	})
	r.timers[key] = &timerEntry{gen: gen, t: t}
}

func (r *Room) cancelTimer(key timerKey) {
	if e := r.timers[key]; e != nil {
		e.t.Stop()
		delete(r.timers, key)
	}
}

func (r *Room) cancelPlayerTimers(id string) {
	for key := range r.timers {
		if key.player == id {
			r.cancelTimer(key)
		}
	}
}

func (r *Room) cancelTurnTimers() {
	for key := range r.timers {
		for _, p := range turnTimers {
			if key.purpose == p {
				r.cancelTimer(key)
			}
		}
	}
}

func (r *Room) onTimer(m timerFired) {
	e := r.timers[m.key]
	if e == nil || e.gen != m.gen {
		r.log.Debug("stale timer", zap.String("timer", string(m.key.purpose)), zap.String("player", m.key.player))
		return
	}
	delete(r.timers, m.key)

	id := m.key.player
	switch m.key.purpose {
	case timerOpeningPlay, timerAutoPass:
		if r.state.CurrentID() == id {
			r.log.Info("turn timed out, passing", zap.String("player", id), zap.String("timer", string(m.key.purpose)))
			r.forcePass(id)
		}

	case timerTurnWarn:
		if r.state.CurrentID() == id {
			r.warned = true
			r.commit(false)
		}

	case timerIdle:
		if mem := r.member(id); mem != nil && r.state.CurrentID() == id {
			mem.Idle = true
			r.commit(false)
		}

	case timerGrace:
		if mem := r.member(id); mem != nil && mem.Disconnected && r.state.CurrentID() == id {
			r.log.Info("disconnect grace expired, passing", zap.String("player", id))
			r.forcePass(id)
		}

	case timerGraceTick:
		if mem := r.member(id); mem != nil && mem.Disconnected && r.state.CurrentID() == id {
			r.commit(false)
			r.schedule(m.key, r.cfg.GraceTick)
		}

	case timerEject:
		if mem := r.member(id); mem != nil && mem.Disconnected {
			r.log.Info("ejecting disconnected player", zap.String("player", id))
			r.removeMember(mem)
			r.commit(true)
		}

	case timerLiveness:
		if len(r.members) == 0 {
			r.populated = true
		}
		r.sweepLiveness()
		r.scheduleLiveness()

	case timerRestartVote:
		if r.vote != nil {
			r.settleVote(r.vote.Close())
			r.commit(false)
		}

	case timerNextRound:
		if r.state.Phase == engine.PhaseRoundOver {
			r.dealNextRound()
		}

	case timerTradeClaim:
		if r.state.Phase == engine.PhaseTrading {
			r.log.Info("trade stalled, claiming for both parties")
			if _, err := r.apply(engine.Command{Type: engine.CmdAutoClaim}); err != nil {
				r.log.Warn("auto claim", zap.Error(err))
				return
			}
			r.commit(true)
		}
	}
}

func (r *Room) forcePass(id string) {
	if _, err := r.apply(engine.Command{Type: engine.CmdPass, PlayerID: id}); err != nil {
		r.log.Warn("forced pass", zap.String("player", id), zap.Error(err))
		return
	}
	r.commit(true)
}

// startTurn replaces the turn timers for whoever is current now. A connected player gets
// the opening-play timer on an empty pile, otherwise warn then auto-pass, plus the idle
// marker. A disconnected player gets the grace countdown instead.
//
// The idle countdown runs from the later of the turn's start and the player's last
// accepted action, so re-arming mid-turn (a revive, a dropped client) keeps it going.
// The marker stays up until the player acts, which carries it only across forced passes.
func (r *Room) startTurn() {
	r.cancelTurnTimers()
	r.warned = false
	id := r.state.CurrentID()
	now := r.now()
	if id != r.turnOf {
		r.turnOf = id
		r.turnAt = now
	}
	mem := r.member(id)
	if mem == nil {
		return
	}

	if !mem.Connected() {
		if r.cfg.DisconnectGrace <= 0 {
			return
		}
		since := mem.DisconnectedAt
		if since.IsZero() {
			since = now
		}
		r.schedule(timerKey{timerGrace, id}, since.Add(r.cfg.DisconnectGrace).Sub(now))
		if r.cfg.GraceTick > 0 {
			r.schedule(timerKey{timerGraceTick, id}, r.cfg.GraceTick)
		}
		return
	}

	if top := r.state.Round.Top(); top == nil {
		if r.cfg.OpeningPlay > 0 {
			r.schedule(timerKey{timerOpeningPlay, id}, r.cfg.OpeningPlay)
		}
	} else {
		if r.cfg.TurnWarn > 0 {
			r.schedule(timerKey{timerTurnWarn, id}, r.cfg.TurnWarn)
		}
		if r.cfg.AutoPass > 0 {
			r.schedule(timerKey{timerAutoPass, id}, r.cfg.AutoPass)
		}
	}
	if r.cfg.Idle > 0 && !mem.Idle {
		from := r.turnAt
		if mem.LastAction.After(from) {
			from = mem.LastAction
		}
		r.schedule(timerKey{timerIdle, id}, from.Add(r.cfg.Idle).Sub(now))
	}
}

func (r *Room) scheduleLiveness() {
	if r.cfg.LivenessInterval > 0 {
		r.schedule(timerKey{purpose: timerLiveness}, r.cfg.LivenessInterval)
	}
}

func (r *Room) scheduleEject(m *Member) {
	if r.cfg.EjectAfter <= 0 {
		return
	}
	since := m.DisconnectedAt
	if since.IsZero() {
		since = r.now()
	}
	r.schedule(timerKey{timerEject, m.ID}, since.Add(r.cfg.EjectAfter).Sub(r.now()))
}
