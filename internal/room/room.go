// Package room runs one game room as a single goroutine that owns the engine state,
// its members and their connections, and every timer. All input arrives on the inbox.
package room

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/elpres-backend/internal/engine"
	"github.com/DoyleJ11/elpres-backend/internal/store"
	"github.com/DoyleJ11/elpres-backend/internal/vote"
	"github.com/DoyleJ11/elpres-backend/pkg/types"
)

var ErrClosed = errors.New("room closed")
var ErrUnknownPlayer = errors.New("Unknown player; join from lobby first")
var ErrIDInUse = errors.New("Id already in use")
var ErrMissingRoom = errors.New("Missing room")
var ErrRoomChars = errors.New("Room name may only contain letters, numbers, hyphens, and underscores")
var ErrRoomLength = errors.New("Room name must be 20 characters or less")

const MaxNameLen = 20

var roomNameRE = regexp.MustCompile(`^[a-z0-9_-]+$`)

// NormalizeName lower-cases a room name and checks it.
func NormalizeName(raw string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case name == "":
		return "", ErrMissingRoom
	case !roomNameRE.MatchString(name):
		return "", ErrRoomChars
	case len(name) > MaxNameLen:
		return "", ErrRoomLength
	}
	return name, nil
}

// Config holds the rules and timer durations of a room. A zero or negative duration
// turns the corresponding timer off, except NextRound where zero deals immediately.
type Config struct {
	Rules      engine.Rules
	VotePolicy vote.Policy

	HeartbeatTimeout time.Duration
	LivenessInterval time.Duration
	DisconnectGrace  time.Duration
	GraceTick        time.Duration
	EjectAfter       time.Duration

	OpeningPlay time.Duration
	TurnWarn    time.Duration
	AutoPass    time.Duration
	Idle        time.Duration

	RestartVote time.Duration
	NextRound   time.Duration
	TradeClaim  time.Duration
	TagCooldown time.Duration

	OutboxSize int
}

func DefaultConfig() Config {
	return Config{
		Rules:            engine.DefaultRules(),
		VotePolicy:       vote.Majority,
		HeartbeatTimeout: 7 * time.Second,
		LivenessInterval: 2 * time.Second,
		DisconnectGrace:  60 * time.Second,
		GraceTick:        time.Second,
		EjectAfter:       2 * time.Minute,
		OpeningPlay:      45 * time.Second,
		TurnWarn:         20 * time.Second,
		AutoPass:         30 * time.Second,
		Idle:             25 * time.Second,
		RestartVote:      30 * time.Second,
		NextRound:        13 * time.Second,
		TradeClaim:       30 * time.Second,
		OutboxSize:       16,
	}
}

type Member struct {
	ID          string
	Name        string
	WantsToPlay bool
	Idle        bool

	// Disconnected is set on socket loss and on a missed heartbeat; the socket may still
	// be open in the second case.
	Disconnected   bool
	DisconnectedAt time.Time
	LastSeen       time.Time
	LastAction     time.Time

	outbox chan types.ServerMessage
	conn   uint64
}

// Connected reports whether the member has a live, heartbeating socket.
func (m *Member) Connected() bool { return m.outbox != nil && !m.Disconnected }

type Msg interface{ isRoomMsg() }

// Register resolves a display name to a member id, adding the member if new.
type Register struct {
	Name  string
	Reply chan string
}

func (Register) isRoomMsg() {}

type ConnectResult struct {
	Conn uint64
	Err  error
}

// Connect attaches a socket outbox to a registered member. The room closes Outbox when it
// is done with the connection.
type Connect struct {
	PlayerID string
	Outbox   chan types.ServerMessage
	Reply    chan ConnectResult
}

func (Connect) isRoomMsg() {}

type Disconnect struct {
	PlayerID string
	Conn     uint64
}

func (Disconnect) isRoomMsg() {}

type FromClient struct {
	PlayerID string
	Conn     uint64
	Msg      types.ClientMessage
}

func (FromClient) isRoomMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

type MemberInfo struct {
	ID          string
	Name        string
	Connected   bool
	Seated      bool
	Idle        bool
	WantsToPlay bool
}

// View is a race-free copy of the room for tests and diagnostics.
type View struct {
	Version   uint64
	State     engine.State
	Members   []MemberInfo
	VoteOpen  bool
	TagHolder string
}

type Options struct {
	Logger *zap.Logger
	Store  store.Store
	// OnEmpty runs on the room goroutine after the last member has left.
	OnEmpty func(*Room)
	// Restore is a persisted room document to resume from.
	Restore []byte
	Now     func() time.Time
}

type tagState struct {
	Holder string
	At     time.Time
}

type Room struct {
	name    string
	cfg     Config
	log     *zap.Logger
	store   store.Store
	onEmpty func(*Room)
	now     func() time.Time

	inbox   chan Msg
	state   engine.State
	version uint64
	members []*Member
	vote    *vote.Vote
	tag     tagState
	warned  bool
	turnOf  string
	turnAt  time.Time
	timers  map[timerKey]*timerEntry
	gen     uint64
	connSeq uint64

	// populated is set once the room has had a member; an empty populated room closes.
	populated bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func New(parent context.Context, name string, cfg Config, opts Options) *Room {
	ctx, cancel := context.WithCancel(parent)
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if cfg.OutboxSize <= 0 {
		cfg.OutboxSize = 16
	}

	r := &Room{
		name:    name,
		cfg:     cfg,
		log:     opts.Logger.With(zap.String("room", name)),
		store:   opts.Store,
		onEmpty: opts.OnEmpty,
		now:     opts.Now,
		inbox:   make(chan Msg, 64),
		state:   engine.NewState(cfg.Rules),
		timers:  make(map[timerKey]*timerEntry),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	if len(opts.Restore) > 0 {
		if err := r.restore(opts.Restore); err != nil {
			r.log.Warn("discarding unreadable room document", zap.Error(err))
			r.state = engine.NewState(cfg.Rules)
			r.members = nil
		}
	}
	r.scheduleLiveness()

	go r.loop()
	return r
}

func (r *Room) Name() string { return r.name }

func (r *Room) Done() <-chan struct{} { return r.done }

func (r *Room) Send(m Msg) bool {
	select {
	case <-r.done:
		return false
	default:
	}
	select {
	case r.inbox <- m:
		return true
	case <-r.done:
		return false
	}
}

func (r *Room) Register(ctx context.Context, name string) (string, error) {
	reply := make(chan string, 1)
	if !r.Send(Register{Name: name, Reply: reply}) {
		return "", ErrClosed
	}
	select {
	case id := <-reply:
		return id, nil
	case <-r.done:
		return "", ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (r *Room) Connect(ctx context.Context, playerID string, outbox chan types.ServerMessage) (uint64, error) {
	reply := make(chan ConnectResult, 1)
	if !r.Send(Connect{PlayerID: playerID, Outbox: outbox, Reply: reply}) {
		return 0, ErrClosed
	}
	select {
	case res := <-reply:
		return res.Conn, res.Err
	case <-r.done:
		return 0, ErrClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (r *Room) State(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if !r.Send(GetState{Reply: reply}) {
		return View{}, ErrClosed
	}
	select {
	case v := <-reply:
		return v, nil
	case <-r.done:
		return View{}, ErrClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

func (r *Room) loop() {
	defer r.stop()
	for {
		select {
		case <-r.ctx.Done():
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Register:
				msg.Reply <- r.register(msg.Name)

			case Connect:
				msg.Reply <- r.connect(msg.PlayerID, msg.Outbox)

			case Disconnect:
				r.disconnect(msg.PlayerID, msg.Conn)

			case FromClient:
				r.handleClient(msg)

			case timerFired:
				r.onTimer(msg)

			case GetState:
				msg.Reply <- r.view()

			case Shutdown:
				return
			}
			if r.populated && len(r.members) == 0 {
				r.closeEmpty()
				return
			}
		}
	}
}

func (r *Room) stop() {
	for key := range r.timers {
		r.cancelTimer(key)
	}
	for _, m := range r.members {
		r.detach(m)
	}
	r.cancel()
	close(r.done)
}

func (r *Room) closeEmpty() {
	if r.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := r.store.Delete(ctx, r.name); err != nil {
			r.log.Warn("delete empty room", zap.Error(err))
		}
		cancel()
	}
	r.log.Info("room empty, closing")
	if r.onEmpty != nil {
		r.onEmpty(r)
	}
}

func (r *Room) view() View {
	v := View{
		Version:   r.version,
		State:     r.state.Clone(),
		VoteOpen:  r.vote != nil,
		TagHolder: r.tag.Holder,
	}
	for _, m := range r.members {
		v.Members = append(v.Members, MemberInfo{
			ID:          m.ID,
			Name:        m.Name,
			Connected:   m.Connected(),
			Seated:      r.state.SeatIndex(m.ID) >= 0,
			Idle:        m.Idle,
			WantsToPlay: m.WantsToPlay,
		})
	}
	return v
}

func (r *Room) member(id string) *Member {
	for _, m := range r.members {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// commit publishes a mutation: bump the version, optionally persist, then push a fresh
// snapshot to every open socket.
func (r *Room) commit(persist bool) {
	r.version++
	if persist {
		r.persist()
	}
	r.broadcastState()
}

func (r *Room) broadcastState() {
	lost := false
	for _, m := range r.members {
		if m.outbox == nil {
			continue
		}
		view := r.viewFor(m.ID)
		if !r.trySend(m, types.ServerMessage{Type: types.MsgState, State: &view, PlayerID: m.ID}) {
			lost = true
		}
	}
	if lost {
		r.startTurn()
	}
}

// broadcast sends msg to every open socket except the member with id except.
func (r *Room) broadcast(msg types.ServerMessage, except string) {
	lost := false
	for _, m := range r.members {
		if m.outbox == nil || m.ID == except {
			continue
		}
		if !r.trySend(m, msg) {
			lost = true
		}
	}
	if lost {
		r.startTurn()
	}
}

func (r *Room) sendState(m *Member) {
	view := r.viewFor(m.ID)
	r.trySend(m, types.ServerMessage{Type: types.MsgState, State: &view, PlayerID: m.ID})
}

func (r *Room) sendError(m *Member, err error) {
	r.log.Debug("rejected", zap.String("player", m.ID), zap.Error(err))
	r.trySend(m, types.ServerMessage{Type: types.MsgError, Message: err.Error()})
}

// trySend never blocks: a client whose outbox is full is dropped and marked disconnected.
func (r *Room) trySend(m *Member, msg types.ServerMessage) bool {
	if m.outbox == nil {
		return false
	}
	select {
	case m.outbox <- msg:
		return true
	default:
		r.log.Info("dropping slow client", zap.String("player", m.ID))
		r.detach(m)
		if !m.Disconnected {
			m.Disconnected = true
			m.DisconnectedAt = r.now()
			r.scheduleEject(m)
		}
		return false
	}
}

// detach closes the member's socket outbox, if any. The writer side sees the close and
// shuts the socket.
func (r *Room) detach(m *Member) {
	if m.outbox != nil {
		close(m.outbox)
		m.outbox = nil
	}
}
