package room

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/elpres-backend/internal/engine"
	"github.com/DoyleJ11/elpres-backend/internal/store"
)

const persistTimeout = 2 * time.Second

type memberDoc struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	WantsToPlay bool   `json:"wants_to_play"`
}

// roomDoc is what survives a restart. Connections, timers and an open vote do not.
type roomDoc struct {
	Version   uint64       `json:"version"`
	State     engine.State `json:"state"`
	Members   []memberDoc  `json:"members"`
	TagHolder string       `json:"dick_tagged_player_id,omitempty"`
	TagAt     time.Time    `json:"tagged_at,omitempty"`
}

func (r *Room) document() roomDoc {
	doc := roomDoc{
		Version:   r.version,
		State:     r.state,
		Members:   make([]memberDoc, 0, len(r.members)),
		TagHolder: r.tag.Holder,
		TagAt:     r.tag.At,
	}
	for _, m := range r.members {
		doc.Members = append(doc.Members, memberDoc{ID: m.ID, Name: m.Name, WantsToPlay: m.WantsToPlay})
	}
	return doc
}

// persist writes the room document. Failures are logged; the game carries on in memory.
func (r *Room) persist() {
	if r.store == nil {
		return
	}
	data, err := json.Marshal(r.document())
	if err != nil {
		r.log.Error("encode room", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(r.ctx, persistTimeout)
	defer cancel()
	rec := store.Record{Room: r.name, Version: r.version, State: data, UpdatedAt: r.now()}
	if err := r.store.Save(ctx, rec); err != nil {
		r.log.Warn("persist room", zap.Uint64("version", r.version), zap.Error(err))
	}
}

// restore loads a persisted document. Every member comes back disconnected and must
// reconnect before their eject window runs out.
func (r *Room) restore(data []byte) error {
	var doc roomDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode room: %w", err)
	}
	if err := doc.State.CheckCards(); err != nil {
		return fmt.Errorf("restored room: %w", err)
	}
	r.version = doc.Version
	r.state = doc.State
	r.state.Rules = r.cfg.Rules
	r.tag = tagState{Holder: doc.TagHolder, At: doc.TagAt}

	now := r.now()
	add := func(id, name string, wants bool) {
		if id == "" || r.member(id) != nil {
			return
		}
		r.members = append(r.members, &Member{
			ID:             id,
			Name:           name,
			WantsToPlay:    wants,
			Disconnected:   true,
			DisconnectedAt: now,
			LastSeen:       now,
		})
	}
	for _, md := range doc.Members {
		add(md.ID, md.Name, md.WantsToPlay)
	}
	for _, seat := range r.state.Seats {
		add(seat.ID, seat.Name, true)
	}
	if r.member(r.tag.Holder) == nil {
		r.tag = tagState{}
	}
	for _, m := range r.members {
		r.scheduleEject(m)
	}
	r.populated = len(r.members) > 0

	switch r.state.Phase {
	case engine.PhaseRoundOver:
		r.schedule(timerKey{purpose: timerNextRound}, r.cfg.NextRound)
	case engine.PhaseTrading:
		if r.cfg.TradeClaim > 0 {
			r.schedule(timerKey{purpose: timerTradeClaim}, r.cfg.TradeClaim)
		}
	case engine.PhasePlaying:
		r.startTurn()
	}
	r.log.Info("room restored",
		zap.Uint64("version", r.version),
		zap.String("phase", string(r.state.Phase)),
		zap.Int("members", len(r.members)))
	return nil
}
