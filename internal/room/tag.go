package room

import (
	"errors"

	"go.uber.org/zap"
)

var errNoTarget = errors.New("no tag target")
var errSelfTag = errors.New("cannot tag yourself")
var errTagCooldown = errors.New("tag changed too recently")

// tagDick moves the room's single tag onto target, or removes it when target already holds
// it. Refusals are dropped without telling the sender.
func (r *Room) tagDick(m *Member, target string) {
	if err := r.tryTag(m.ID, target); err != nil {
		r.log.Debug("tag refused", zap.String("player", m.ID), zap.String("target", target), zap.Error(err))
		return
	}
	r.commit(true)
}

func (r *Room) tryTag(from, target string) error {
	switch {
	case target == "":
		return errNoTarget
	case target == from:
		return errSelfTag
	case r.member(target) == nil:
		return ErrUnknownPlayer
	}
	now := r.now()
	if r.cfg.TagCooldown > 0 && !r.tag.At.IsZero() && now.Sub(r.tag.At) < r.cfg.TagCooldown {
		return errTagCooldown
	}
	if r.tag.Holder == target {
		r.tag = tagState{At: now}
		return nil
	}
	r.tag = tagState{Holder: target, At: now}
	return nil
}
