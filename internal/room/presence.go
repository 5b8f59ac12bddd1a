package room

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/elpres-backend/internal/engine"
	"github.com/DoyleJ11/elpres-backend/pkg/types"
)

// register returns the id of the member called name, creating one if needed. A fresh
// member counts as disconnected until its socket arrives.
func (r *Room) register(name string) string {
	for _, m := range r.members {
		if m.Name == name {
			return m.ID
		}
	}
	now := r.now()
	m := &Member{
		ID:             uuid.NewString(),
		Name:           name,
		WantsToPlay:    true,
		Disconnected:   true,
		DisconnectedAt: now,
		LastSeen:       now,
	}
	r.members = append(r.members, m)
	r.populated = true
	r.scheduleEject(m)
	r.log.Info("player registered", zap.String("player", m.ID), zap.String("name", name))
	r.persist()
	return m.ID
}

func (r *Room) connect(id string, outbox chan types.ServerMessage) ConnectResult {
	m := r.member(id)
	if m == nil {
		return ConnectResult{Err: ErrUnknownPlayer}
	}
	if m.Connected() {
		return ConnectResult{Err: ErrIDInUse}
	}
	// A socket that stopped heartbeating is replaced.
	r.detach(m)

	r.connSeq++
	m.conn = r.connSeq
	m.outbox = outbox
	now := r.now()
	m.LastSeen = now
	m.LastAction = now
	r.revive(m)
	r.log.Info("player connected", zap.String("player", id), zap.String("name", m.Name))

	r.broadcast(types.ServerMessage{Type: types.MsgPlayerJoined, Player: &types.PlayerRef{ID: m.ID, Name: m.Name}}, m.ID)
	r.commit(false)
	return ConnectResult{Conn: m.conn}
}

// revive clears a member's disconnected mark and everything it set running.
func (r *Room) revive(m *Member) {
	m.Disconnected = false
	m.DisconnectedAt = time.Time{}
	r.cancelTimer(timerKey{timerEject, m.ID})
	if r.state.CurrentID() == m.ID {
		r.startTurn()
	}
}

func (r *Room) disconnect(id string, conn uint64) {
	m := r.member(id)
	if m == nil || m.conn != conn || m.outbox == nil {
		return
	}
	r.detach(m)
	r.log.Info("player socket closed", zap.String("player", id))
	if !r.state.Active() {
		// No grace in the lobby.
		r.removeMember(m)
		r.commit(true)
		return
	}
	if !m.Disconnected {
		r.markDisconnected(m)
	}
	r.commit(false)
}

func (r *Room) markDisconnected(m *Member) {
	m.Disconnected = true
	m.DisconnectedAt = r.now()
	r.scheduleEject(m)
	r.broadcast(types.ServerMessage{Type: types.MsgPlayerDisconnected, PlayerID: m.ID}, m.ID)
	if r.state.CurrentID() == m.ID {
		r.startTurn()
	}
}

// touch records inbound traffic. Any message proves the socket alive again.
func (r *Room) touch(m *Member) {
	m.LastSeen = r.now()
	if m.Disconnected {
		r.log.Info("player heartbeat resumed", zap.String("player", m.ID))
		r.revive(m)
		r.commit(false)
	}
}

// sweepLiveness marks sockets that missed the heartbeat window. Lobby members are left
// alone; their socket close removes them.
func (r *Room) sweepLiveness() {
	if !r.state.Active() || r.cfg.HeartbeatTimeout <= 0 {
		return
	}
	now := r.now()
	changed := false
	for _, m := range r.members {
		if m.Connected() && now.Sub(m.LastSeen) > r.cfg.HeartbeatTimeout {
			r.log.Info("heartbeat timeout", zap.String("player", m.ID))
			r.markDisconnected(m)
			changed = true
		}
	}
	if changed {
		r.commit(false)
	}
}

// removeMember takes m out of the game and the room. The caller commits.
func (r *Room) removeMember(m *Member) {
	if r.state.SeatIndex(m.ID) >= 0 {
		if _, err := r.apply(engine.Command{Type: engine.CmdRemovePlayer, PlayerID: m.ID}); err != nil {
			r.log.Warn("remove from game", zap.String("player", m.ID), zap.Error(err))
		}
	}
	if r.vote != nil {
		r.vote.Drop(m.ID)
		r.settleVote(r.vote.Outcome())
	}
	if r.tag.Holder == m.ID {
		r.tag = tagState{}
	}
	r.cancelPlayerTimers(m.ID)
	r.detach(m)
	for i, x := range r.members {
		if x == m {
			r.members = append(r.members[:i], r.members[i+1:]...)
			break
		}
	}
	r.log.Info("player removed", zap.String("player", m.ID), zap.Int("remaining", len(r.members)))
}
