// Package hub owns the registry of live rooms. Like each room it is a single goroutine
// reading typed messages, so rooms are created and retired without locks.
package hub

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/elpres-backend/internal/room"
	"github.com/DoyleJ11/elpres-backend/internal/store"
)

var ErrStopped = errors.New("hub stopped")

const loadTimeout = 2 * time.Second

type HubMsg interface{ isHubMsg() }

// EnsureRoom returns the live room called Name, resuming it from the store or creating it
// when there is none.
type EnsureRoom struct {
	Name  string
	Reply chan *room.Room
}

type GetRoom struct {
	Name  string
	Reply chan *room.Room // nil when unknown
}

// RemoveRoom retires Room; a newer room under the same name is left alone.
type RemoveRoom struct {
	Name string
	Room *room.Room
}

type ListRooms struct {
	Reply chan []string
}

type ShutdownHub struct{}

func (EnsureRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (RemoveRoom) isHubMsg()  {}
func (ListRooms) isHubMsg()   {}
func (ShutdownHub) isHubMsg() {}

type Options struct {
	Logger *zap.Logger
	Store  store.Store
	Config room.Config
}

type Hub struct {
	inbox chan HubMsg
	rooms map[string]*room.Room
	cfg   room.Config
	store store.Store
	log   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewHub(parent context.Context, opts Options) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[string]*room.Room),
		cfg:    opts.Config,
		store:  opts.Store,
		log:    opts.Logger,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Hub) Done() <-chan struct{} { return h.done }

func (h *Hub) Send(m HubMsg) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case h.inbox <- m:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case EnsureRoom:
				if rm := h.live(msg.Name); rm != nil {
					msg.Reply <- rm
					break
				}
				msg.Reply <- h.open(msg.Name)

			case GetRoom:
				msg.Reply <- h.live(msg.Name) // May be nil

			case RemoveRoom:
				if h.rooms[msg.Name] == msg.Room {
					delete(h.rooms, msg.Name)
					h.log.Debug("room retired", zap.String("room", msg.Name))
				}

			case ListRooms:
				names := make([]string, 0, len(h.rooms))
				for name := range h.rooms {
					names = append(names, name)
				}
				msg.Reply <- names

			case ShutdownHub:
				h.shutdown()
				h.cancel()
				return
			}
		}
	}
}

// live returns the registered room unless it has already stopped.
func (h *Hub) live(name string) *room.Room {
	rm := h.rooms[name]
	if rm == nil {
		return nil
	}
	select {
	case <-rm.Done():
		delete(h.rooms, name)
		return nil
	default:
		return rm
	}
}

func (h *Hub) open(name string) *room.Room {
	opts := room.Options{
		Logger:  h.log,
		Store:   h.store,
		OnEmpty: h.retire,
	}
	if h.store != nil {
		ctx, cancel := context.WithTimeout(h.ctx, loadTimeout)
		rec, err := h.store.Load(ctx, name)
		cancel()
		switch {
		case err == nil:
			opts.Restore = rec.State
		case !errors.Is(err, store.ErrNotFound):
			h.log.Warn("load room", zap.String("room", name), zap.Error(err))
		}
	}
	rm := room.New(h.ctx, name, h.cfg, opts)
	h.rooms[name] = rm
	h.log.Info("room opened", zap.String("room", name), zap.Bool("restored", opts.Restore != nil))
	return rm
}

// retire runs on the emptied room's goroutine, so it must not wait on the hub.
func (h *Hub) retire(rm *room.Room) {
	select {
	case h.inbox <- RemoveRoom{Name: rm.Name(), Room: rm}:
	case <-h.done:
	default:
		go h.Send(RemoveRoom{Name: rm.Name(), Room: rm})
	}
}

func (h *Hub) shutdown() {
	for _, rm := range h.rooms {
		rm.Send(room.Shutdown{})
	}
	for _, rm := range h.rooms {
		<-rm.Done()
	}
	clear(h.rooms)
}

func (h *Hub) Ensure(ctx context.Context, name string) (*room.Room, error) {
	reply := make(chan *room.Room, 1)
	if !h.Send(EnsureRoom{Name: name, Reply: reply}) {
		return nil, ErrStopped
	}
	select {
	case rm := <-reply:
		return rm, nil
	case <-h.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Get returns the live room called name, or nil.
func (h *Hub) Get(ctx context.Context, name string) (*room.Room, error) {
	reply := make(chan *room.Room, 1)
	if !h.Send(GetRoom{Name: name, Reply: reply}) {
		return nil, ErrStopped
	}
	select {
	case rm := <-reply:
		return rm, nil
	case <-h.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) List(ctx context.Context) ([]string, error) {
	reply := make(chan []string, 1)
	if !h.Send(ListRooms{Reply: reply}) {
		return nil, ErrStopped
	}
	select {
	case names := <-reply:
		return names, nil
	case <-h.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RestoreAll reopens every room the store knows about so their players can reconnect.
func (h *Hub) RestoreAll(ctx context.Context) (int, error) {
	if h.store == nil {
		return 0, nil
	}
	names, err := h.store.List(ctx)
	if err != nil {
		return 0, err
	}
	for _, name := range names {
		if _, err := h.Ensure(ctx, name); err != nil {
			return 0, err
		}
	}
	return len(names), nil
}

// Shutdown stops every room and then the hub, waiting until both are done.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.Send(ShutdownHub{})
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
