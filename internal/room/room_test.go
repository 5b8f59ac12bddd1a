package room

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/elpres-backend/internal/engine"
	"github.com/DoyleJ11/elpres-backend/internal/store"
	"github.com/DoyleJ11/elpres-backend/pkg/types"
)

const wait = time.Second

// quietConfig turns every timer off so tests drive the room by hand.
func quietConfig() Config {
	cfg := DefaultConfig()
	cfg.HeartbeatTimeout = 0
	cfg.LivenessInterval = 0
	cfg.DisconnectGrace = 0
	cfg.GraceTick = 0
	cfg.EjectAfter = 0
	cfg.OpeningPlay = 0
	cfg.TurnWarn = 0
	cfg.AutoPass = 0
	cfg.Idle = 0
	cfg.RestartVote = 0
	cfg.NextRound = time.Hour
	cfg.TradeClaim = 0
	cfg.OutboxSize = 64
	return cfg
}

func newTestRoom(t *testing.T, cfg Config, opts Options) *Room {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	r := New(ctx, "test", cfg, opts)
	t.Cleanup(func() {
		r.Send(Shutdown{})
		cancel()
	})
	return r
}

type client struct {
	id   string
	conn uint64
	out  chan types.ServerMessage
}

func join(t *testing.T, r *Room, name string, buf int) *client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	id, err := r.Register(ctx, name)
	if err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	out := make(chan types.ServerMessage, buf)
	conn, err := r.Connect(ctx, id, out)
	if err != nil {
		t.Fatalf("connect %s: %v", name, err)
	}
	return &client{id: id, conn: conn, out: out}
}

func (c *client) send(r *Room, msg types.ClientMessage) {
	r.Send(FromClient{PlayerID: c.id, Conn: c.conn, Msg: msg})
}

// recvType skips messages until one of type typ arrives.
func recvType(t *testing.T, ch <-chan types.ServerMessage, typ string) types.ServerMessage {
	t.Helper()
	deadline := time.After(wait)
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				t.Fatalf("outbox closed waiting for %q", typ)
			}
			if msg.Type == typ {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", typ)
			return types.ServerMessage{}
		}
	}
}

// recvStateWhere returns the first snapshot satisfying ok.
func recvStateWhere(t *testing.T, ch <-chan types.ServerMessage, ok func(*types.StateView) bool) *types.StateView {
	t.Helper()
	deadline := time.After(wait)
	for {
		select {
		case msg, open := <-ch:
			if !open {
				t.Fatalf("outbox closed waiting for state")
			}
			if msg.Type == types.MsgState && ok(msg.State) {
				return msg.State
			}
		case <-deadline:
			t.Fatalf("timed out waiting for matching state")
			return nil
		}
	}
}

func drain(ch <-chan types.ServerMessage) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func viewOf(t *testing.T, r *Room) View {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	v, err := r.State(ctx)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	return v
}

func startWith(t *testing.T, r *Room, names ...string) []*client {
	t.Helper()
	cs := make([]*client, len(names))
	for i, n := range names {
		cs[i] = join(t, r, n, 64)
	}
	cs[0].send(r, types.ClientMessage{Type: types.MsgStartGame})
	for _, c := range cs {
		recvStateWhere(t, c.out, func(s *types.StateView) bool { return s.Phase == string(engine.PhasePlaying) })
	}
	return cs
}

func currentClient(t *testing.T, r *Room, cs []*client) *client {
	t.Helper()
	id := viewOf(t, r).State.CurrentID()
	for _, c := range cs {
		if c.id == id {
			return c
		}
	}
	t.Fatalf("no client is current (%q)", id)
	return nil
}

func memberOf(t *testing.T, v View, id string) MemberInfo {
	t.Helper()
	for _, m := range v.Members {
		if m.ID == id {
			return m
		}
	}
	t.Fatalf("no member %q", id)
	return MemberInfo{}
}

// playLowest sends c's first valid play and waits for the room to take it.
func playLowest(t *testing.T, r *Room, c *client) {
	t.Helper()
	legal := viewOf(t, r).State.LegalFor(c.id)
	if len(legal) == 0 {
		t.Fatalf("%s has nothing to play", c.id)
	}
	c.send(r, types.ClientMessage{Type: types.MsgPlay, Cards: toWireCards(legal[0])})
	if viewOf(t, r).State.CurrentID() == c.id {
		t.Fatalf("%s still current after playing %v", c.id, legal[0])
	}
}

func TestConnectSendsLobbySnapshot(t *testing.T) {
	r := newTestRoom(t, quietConfig(), Options{})
	alice := join(t, r, "Alice", 8)

	st := recvType(t, alice.out, types.MsgState).State
	if st.Phase != phaseNoGame {
		t.Fatalf("phase: want %q, got %q", phaseNoGame, st.Phase)
	}
	if len(st.Players) != 1 || st.Players[0].Name != "Alice" {
		t.Fatalf("lobby players: %+v", st.Players)
	}

	bob := join(t, r, "Bob", 8)
	joined := recvType(t, alice.out, types.MsgPlayerJoined)
	if joined.Player == nil || joined.Player.ID != bob.id {
		t.Fatalf("player_joined: %+v", joined)
	}
	st = recvType(t, alice.out, types.MsgState).State
	if len(st.Players) != 2 {
		t.Fatalf("want 2 lobby players, got %+v", st.Players)
	}
}

func TestRegisterIsIdempotentByName(t *testing.T) {
	r := newTestRoom(t, quietConfig(), Options{})
	ctx := context.Background()
	a, err := r.Register(ctx, "Alice")
	require.NoError(t, err)
	b, err := r.Register(ctx, "Alice")
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestConnectRejectsUnknownAndDuplicate(t *testing.T) {
	r := newTestRoom(t, quietConfig(), Options{})
	ctx := context.Background()

	if _, err := r.Connect(ctx, "nobody", make(chan types.ServerMessage, 1)); !errors.Is(err, ErrUnknownPlayer) {
		t.Fatalf("unknown id: want ErrUnknownPlayer, got %v", err)
	}

	alice := join(t, r, "Alice", 8)
	if _, err := r.Connect(ctx, alice.id, make(chan types.ServerMessage, 1)); !errors.Is(err, ErrIDInUse) {
		t.Fatalf("second socket: want ErrIDInUse, got %v", err)
	}
}

func TestStartGameRedactsHands(t *testing.T) {
	r := newTestRoom(t, quietConfig(), Options{})
	cs := make([]*client, 4)
	for i, n := range []string{"A", "B", "C", "D"} {
		cs[i] = join(t, r, n, 64)
	}
	cs[0].send(r, types.ClientMessage{Type: types.MsgStartGame})

	current := ""
	for _, c := range cs {
		st := recvStateWhere(t, c.out, func(s *types.StateView) bool { return s.Phase == string(engine.PhasePlaying) })
		if st.Spectator {
			t.Fatalf("%s: seated player marked spectator", c.id)
		}
		for _, p := range st.Players {
			if p.CardCount != 13 {
				t.Fatalf("card_count: want 13, got %d", p.CardCount)
			}
			if p.ID == c.id && len(p.Hand) != 13 {
				t.Fatalf("%s: own hand has %d cards", c.id, len(p.Hand))
			}
			if p.ID != c.id && p.Hand != nil {
				t.Fatalf("%s: sees %s's hand", c.id, p.ID)
			}
		}
		if st.Players[st.CurrentPlayer].ID == c.id {
			current = c.id
			if len(st.ValidPlays) == 0 {
				t.Fatalf("current player has no valid plays")
			}
			for _, play := range st.ValidPlays {
				if !slices.Contains(play, types.Card{Rank: "3", Suit: "C"}) {
					t.Fatalf("opening play without 3C: %+v", play)
				}
			}
		} else if len(st.ValidPlays) != 0 {
			t.Fatalf("%s: valid plays off turn", c.id)
		}
	}
	if current == "" {
		t.Fatalf("nobody is current")
	}
}

func TestRuleViolationGoesOnlyToSender(t *testing.T) {
	r := newTestRoom(t, quietConfig(), Options{})
	cs := startWith(t, r, "A", "B", "C")
	cur := currentClient(t, r, cs)
	var other *client
	for _, c := range cs {
		if c != cur {
			other = c
			break
		}
	}
	drain(cur.out)
	other.send(r, types.ClientMessage{Type: types.MsgPass})
	msg := recvType(t, other.out, types.MsgError)
	if msg.Message != engine.ErrNotYourTurn.Error() {
		t.Fatalf("error message: %q", msg.Message)
	}
	viewOf(t, r)
	select {
	case m := <-cur.out:
		t.Fatalf("bystander got %+v", m)
	default:
	}
}

func TestLateJoinerIsSpectator(t *testing.T) {
	r := newTestRoom(t, quietConfig(), Options{})
	startWith(t, r, "A", "B", "C")
	late := join(t, r, "Late", 16)

	st := recvType(t, late.out, types.MsgState).State
	if !st.Spectator {
		t.Fatalf("late joiner should spectate")
	}
	if st.WantsToPlay == nil || !*st.WantsToPlay {
		t.Fatalf("wants_to_play: %v", st.WantsToPlay)
	}
	if st.SpectatorCount != 1 {
		t.Fatalf("spectator_count: want 1, got %d", st.SpectatorCount)
	}
	for _, p := range st.Players {
		if p.Hand != nil {
			t.Fatalf("spectator sees a hand")
		}
	}

	no := false
	late.send(r, types.ClientMessage{Type: types.MsgSpectatorPreference, WantToPlay: &no})
	st = recvStateWhere(t, late.out, func(s *types.StateView) bool { return s.WantsToPlay != nil && !*s.WantsToPlay })
	if !st.Spectator {
		t.Fatalf("preference must not seat anyone mid-round")
	}
}

func TestDisconnectGraceForcesPass(t *testing.T) {
	cfg := quietConfig()
	cfg.DisconnectGrace = 80 * time.Millisecond
	r := newTestRoom(t, cfg, Options{})
	cs := startWith(t, r, "A", "B", "C")
	cur := currentClient(t, r, cs)
	var watcher *client
	for _, c := range cs {
		if c != cur {
			watcher = c
			break
		}
	}

	r.Send(Disconnect{PlayerID: cur.id, Conn: cur.conn})
	st := recvStateWhere(t, watcher.out, func(s *types.StateView) bool { return s.Waiting != nil })
	if st.Waiting.PlayerName == "" {
		t.Fatalf("waiting view without a name: %+v", st.Waiting)
	}

	require.Eventually(t, func() bool {
		return viewOf(t, r).State.HasPassed(cur.id)
	}, wait, 10*time.Millisecond, "grace expiry should pass for the disconnected player")

	v := viewOf(t, r)
	if v.State.CurrentID() == cur.id {
		t.Fatalf("turn did not move on")
	}
	if v.State.SeatIndex(cur.id) < 0 {
		t.Fatalf("disconnected player lost their seat")
	}
}

func TestReconnectResumesSeat(t *testing.T) {
	r := newTestRoom(t, quietConfig(), Options{})
	cs := startWith(t, r, "A", "B")
	a := cs[0]
	r.Send(Disconnect{PlayerID: a.id, Conn: a.conn})
	require.Eventually(t, func() bool {
		for _, m := range viewOf(t, r).Members {
			if m.ID == a.id {
				return !m.Connected
			}
		}
		return false
	}, wait, 10*time.Millisecond)

	out := make(chan types.ServerMessage, 16)
	if _, err := r.Connect(context.Background(), a.id, out); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	st := recvType(t, out, types.MsgState).State
	if st.Spectator {
		t.Fatalf("reconnected player should keep their seat")
	}
	for _, p := range st.Players {
		if p.ID == a.id && len(p.Hand) == 0 {
			t.Fatalf("hand lost on reconnect")
		}
	}
}

func TestRestartVoteMajorityResetsToLobby(t *testing.T) {
	r := newTestRoom(t, quietConfig(), Options{})
	cs := startWith(t, r, "A", "B", "C", "D")
	a, b, c, d := cs[0], cs[1], cs[2], cs[3]

	a.send(r, types.ClientMessage{Type: types.MsgRequestRestartVote})
	req := recvType(t, b.out, types.MsgRestartVoteRequested)
	if req.InitiatorName != "A" {
		t.Fatalf("initiator: %q", req.InitiatorName)
	}

	b.send(r, types.ClientMessage{Type: types.MsgRestartVote, Vote: types.VoteYes})
	d.send(r, types.ClientMessage{Type: types.MsgRestartVote, Vote: types.VoteNo})
	if !viewOf(t, r).VoteOpen {
		t.Fatalf("vote closed early")
	}
	c.send(r, types.ClientMessage{Type: types.MsgRestartVote, Vote: types.VoteYes})

	for _, cl := range cs {
		recvType(t, cl.out, types.MsgRestartVotePassed)
	}
	v := viewOf(t, r)
	if v.State.Phase != engine.PhaseLobby {
		t.Fatalf("phase: want Lobby, got %s", v.State.Phase)
	}
	if len(v.State.Seats) != 4 {
		t.Fatalf("seating not preserved: %+v", v.State.Seats)
	}
	if v.VoteOpen {
		t.Fatalf("vote still open")
	}
}

func TestRestartVoteRejectedOnDeadline(t *testing.T) {
	cfg := quietConfig()
	cfg.RestartVote = 50 * time.Millisecond
	r := newTestRoom(t, cfg, Options{})
	cs := startWith(t, r, "A", "B", "C")

	cs[0].send(r, types.ClientMessage{Type: types.MsgRequestRestartVote})
	recvType(t, cs[1].out, types.MsgRestartVoteRejected)
	if viewOf(t, r).State.Phase != engine.PhasePlaying {
		t.Fatalf("rejected vote must not reset the game")
	}
}

func TestSecondVoteRequestFails(t *testing.T) {
	r := newTestRoom(t, quietConfig(), Options{})
	cs := startWith(t, r, "A", "B", "C")
	cs[0].send(r, types.ClientMessage{Type: types.MsgRequestRestartVote})
	cs[1].send(r, types.ClientMessage{Type: types.MsgRequestRestartVote})
	if msg := recvType(t, cs[1].out, types.MsgError); msg.Message == "" {
		t.Fatalf("empty error message")
	}
}

func TestStaleTimerIsDropped(t *testing.T) {
	cfg := quietConfig()
	cfg.AutoPass = time.Hour
	cfg.OpeningPlay = time.Hour
	r := newTestRoom(t, cfg, Options{})
	cs := startWith(t, r, "A", "B")
	cur := currentClient(t, r, cs)

	before := viewOf(t, r)
	r.Send(timerFired{key: timerKey{timerOpeningPlay, cur.id}, gen: 0})
	r.Send(timerFired{key: timerKey{timerAutoPass, cur.id}, gen: 0})
	after := viewOf(t, r)
	if after.Version != before.Version || after.State.CurrentID() != cur.id {
		t.Fatalf("stale firing changed the room: v%d -> v%d", before.Version, after.Version)
	}
}

func TestOpeningPlayTimerPasses(t *testing.T) {
	cfg := quietConfig()
	cfg.OpeningPlay = 40 * time.Millisecond
	r := newTestRoom(t, cfg, Options{})
	cs := startWith(t, r, "A", "B", "C")
	cur := currentClient(t, r, cs)
	require.Eventually(t, func() bool {
		return viewOf(t, r).State.HasPassed(cur.id)
	}, wait, 10*time.Millisecond)
}

func TestDropSlowClient(t *testing.T) {
	r := newTestRoom(t, quietConfig(), Options{})
	slow := join(t, r, "Slow", 1)
	join(t, r, "Fast", 8)

	v := viewOf(t, r)
	for _, m := range v.Members {
		if m.ID == slow.id && m.Connected {
			t.Fatalf("slow client still connected")
		}
	}
	recvType(t, slow.out, types.MsgState)
	if _, ok := <-slow.out; ok {
		t.Fatalf("slow client's outbox should be closed")
	}
}

func TestLeaveAndEmptyRoomCloses(t *testing.T) {
	mem := store.NewMemory()
	emptied := make(chan struct{})
	r := newTestRoom(t, quietConfig(), Options{
		Store:   mem,
		OnEmpty: func(*Room) { close(emptied) },
	})
	a := join(t, r, "A", 16)
	b := join(t, r, "B", 16)

	b.send(r, types.ClientMessage{Type: types.MsgLeave})
	recvType(t, b.out, types.MsgYouLeft)
	require.Eventually(t, func() bool { return len(viewOf(t, r).Members) == 1 }, wait, 10*time.Millisecond)

	r.Send(Disconnect{PlayerID: a.id, Conn: a.conn})
	select {
	case <-emptied:
	case <-time.After(wait):
		t.Fatalf("empty room did not close")
	}
	<-r.Done()
	if _, err := mem.Load(context.Background(), "test"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("record should be deleted, got %v", err)
	}
	if _, err := r.State(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("closed room: want ErrClosed, got %v", err)
	}
}

func TestDickTagToggles(t *testing.T) {
	r := newTestRoom(t, quietConfig(), Options{})
	a := join(t, r, "A", 32)
	b := join(t, r, "B", 32)

	a.send(r, types.ClientMessage{Type: types.MsgTagDick, TargetPlayerID: b.id})
	st := recvStateWhere(t, a.out, func(s *types.StateView) bool { return s.DickTagged != nil })
	if *st.DickTagged != b.id {
		t.Fatalf("tagged %q, want %q", *st.DickTagged, b.id)
	}

	a.send(r, types.ClientMessage{Type: types.MsgTagDick, TargetPlayerID: a.id})
	if got := viewOf(t, r).TagHolder; got != b.id {
		t.Fatalf("self tag must be refused; holder %q", got)
	}

	a.send(r, types.ClientMessage{Type: types.MsgTagDick, TargetPlayerID: b.id})
	recvStateWhere(t, a.out, func(s *types.StateView) bool { return s.DickTagged == nil })
}

func TestRestoreResumesGame(t *testing.T) {
	mem := store.NewMemory()
	r := newTestRoom(t, quietConfig(), Options{Store: mem})
	startWith(t, r, "A", "B")
	before := viewOf(t, r)

	rec, err := mem.Load(context.Background(), "test")
	require.NoError(t, err)

	r2 := newTestRoom(t, quietConfig(), Options{Restore: rec.State})
	after := viewOf(t, r2)
	require.Equal(t, engine.PhasePlaying, after.State.Phase)
	require.Equal(t, before.State.CurrentID(), after.State.CurrentID())
	require.Len(t, after.Members, 2)
	for _, m := range after.Members {
		require.False(t, m.Connected, "restored members start disconnected")
		require.True(t, m.Seated)
	}
	require.NoError(t, after.State.CheckCards())
}

func TestNormalizeName(t *testing.T) {
	cases := []struct {
		in   string
		want string
		err  error
	}{
		{"Lobby-1", "lobby-1", nil},
		{"  game_room ", "game_room", nil},
		{"", "", ErrMissingRoom},
		{"bad room", "", ErrRoomChars},
		{"abcdefghijklmnopqrstu", "", ErrRoomLength},
	}
	for _, tc := range cases {
		got, err := NormalizeName(tc.in)
		if !errors.Is(err, tc.err) || got != tc.want {
			t.Fatalf("NormalizeName(%q) = %q, %v; want %q, %v", tc.in, got, err, tc.want, tc.err)
		}
	}
}

func TestTurnWarnThenAutoPass(t *testing.T) {
	cfg := quietConfig()
	cfg.TurnWarn = 40 * time.Millisecond
	cfg.AutoPass = 150 * time.Millisecond
	r := newTestRoom(t, cfg, Options{})
	cs := startWith(t, r, "A", "B", "C")
	lead := currentClient(t, r, cs)
	playLowest(t, r, lead)
	next := viewOf(t, r).State.CurrentID()

	st := recvStateWhere(t, lead.out, func(s *types.StateView) bool { return s.TurnWarning })
	if got := st.Players[st.CurrentPlayer].ID; got != next {
		t.Fatalf("warning raised for %s, want %s", got, next)
	}
	if plays := st.Round.Pile.Plays; len(plays) != 1 || plays[0].PlayerID != lead.id {
		t.Fatalf("pile = %+v, want one play by %s", plays, lead.id)
	}
	if viewOf(t, r).State.HasPassed(next) {
		t.Fatalf("passed at the warning, before the auto-pass deadline")
	}

	require.Eventually(t, func() bool {
		return viewOf(t, r).State.HasPassed(next)
	}, wait, 10*time.Millisecond, "auto-pass should fire on a non-empty pile")
}

func TestIdleCountsFromTurnStart(t *testing.T) {
	cfg := quietConfig()
	cfg.Idle = 200 * time.Millisecond
	r := newTestRoom(t, cfg, Options{})
	cs := startWith(t, r, "A", "B", "C")
	lead := currentClient(t, r, cs)
	playLowest(t, r, lead)

	// The other two sit on their turn for most of the window, then pass the lead back.
	for i := 0; i < 2; i++ {
		time.Sleep(120 * time.Millisecond)
		c := currentClient(t, r, cs)
		c.send(r, types.ClientMessage{Type: types.MsgPass})
	}
	if cur := currentClient(t, r, cs); cur != lead {
		t.Fatalf("lead went to %s, want %s", cur.id, lead.id)
	}
	time.Sleep(40 * time.Millisecond)
	v := viewOf(t, r)
	if memberOf(t, v, lead.id).Idle {
		t.Fatalf("%s marked idle 40ms into a fresh turn", lead.id)
	}
	for _, c := range cs {
		if c != lead && memberOf(t, v, c.id).Idle {
			t.Fatalf("%s marked idle inside the window", c.id)
		}
	}

	require.Eventually(t, func() bool {
		return memberOf(t, viewOf(t, r), lead.id).Idle
	}, wait, 10*time.Millisecond, "idle marker should follow a full window in the turn")

	lead.send(r, types.ClientMessage{Type: types.MsgPass})
	if memberOf(t, viewOf(t, r), lead.id).Idle {
		t.Fatalf("idle marker survived the player's own pass")
	}
}

func TestHeartbeatSweepMarksAndRevives(t *testing.T) {
	cfg := quietConfig()
	cfg.HeartbeatTimeout = 60 * time.Millisecond
	cfg.LivenessInterval = 20 * time.Millisecond
	r := newTestRoom(t, cfg, Options{})
	cs := startWith(t, r, "A", "B")
	a := cs[0]

	require.Eventually(t, func() bool {
		return !memberOf(t, viewOf(t, r), a.id).Connected
	}, wait, 10*time.Millisecond, "silent socket should be marked disconnected")
	recvType(t, cs[1].out, types.MsgPlayerDisconnected)

	a.send(r, types.ClientMessage{Type: types.MsgHeartbeat})
	if !memberOf(t, viewOf(t, r), a.id).Connected {
		t.Fatalf("heartbeat did not revive %s", a.id)
	}
	// The socket was never closed, so snapshots keep flowing to it.
	recvType(t, a.out, types.MsgState)
}

func TestDisconnectedPlayerIsEjected(t *testing.T) {
	cfg := quietConfig()
	cfg.EjectAfter = 60 * time.Millisecond
	r := newTestRoom(t, cfg, Options{})
	cs := startWith(t, r, "A", "B", "C")
	gone := cs[2]

	r.Send(Disconnect{PlayerID: gone.id, Conn: gone.conn})
	if v := viewOf(t, r); v.State.SeatIndex(gone.id) < 0 {
		t.Fatalf("seat dropped before the eject window")
	}
	require.Eventually(t, func() bool {
		return len(viewOf(t, r).Members) == 2
	}, wait, 10*time.Millisecond, "disconnected player should be ejected")

	v := viewOf(t, r)
	require.Less(t, v.State.SeatIndex(gone.id), 0)
	require.Equal(t, engine.PhasePlaying, v.State.Phase)
	require.Len(t, v.State.Seats, 2)
	require.NoError(t, v.State.CheckCards())
}

// roundOverDoc plays a two-seat game out through the engine and returns its document.
func roundOverDoc(t *testing.T) []byte {
	t.Helper()
	seats := []engine.SeatInfo{{ID: "a", Name: "A"}, {ID: "b", Name: "B"}}
	_, s, err := engine.Apply(engine.NewState(engine.DefaultRules()), engine.Command{Type: engine.CmdStartGame, Seats: seats, Deck: engine.NewDeck()})
	require.NoError(t, err)
	for steps := 0; s.Phase == engine.PhasePlaying; steps++ {
		if steps > 500 {
			t.Fatalf("round did not finish")
		}
		id := s.CurrentID()
		cmd := engine.Command{Type: engine.CmdPass, PlayerID: id}
		if legal := s.LegalFor(id); len(legal) > 0 {
			cmd = engine.Command{Type: engine.CmdPlay, PlayerID: id, Cards: legal[0]}
		}
		_, s, err = engine.Apply(s, cmd)
		require.NoError(t, err)
	}
	require.Equal(t, engine.PhaseRoundOver, s.Phase)

	data, err := json.Marshal(roomDoc{
		Version: 1,
		State:   s,
		Members: []memberDoc{{ID: "a", Name: "A", WantsToPlay: true}, {ID: "b", Name: "B", WantsToPlay: true}},
	})
	require.NoError(t, err)
	return data
}

func TestStalledTradeIsClaimed(t *testing.T) {
	cfg := quietConfig()
	cfg.NextRound = 0
	cfg.TradeClaim = 100 * time.Millisecond
	r := newTestRoom(t, cfg, Options{Restore: roundOverDoc(t)})

	out := make(chan types.ServerMessage, 64)
	if _, err := r.Connect(context.Background(), "a", out); err != nil {
		t.Fatalf("connect: %v", err)
	}
	st := recvStateWhere(t, out, func(s *types.StateView) bool { return s.Phase == string(engine.PhaseTrading) })
	if st.Trading == nil {
		t.Fatalf("trading phase without a trade view")
	}
	st = recvStateWhere(t, out, func(s *types.StateView) bool { return s.Phase == string(engine.PhasePlaying) })
	if st.Trading != nil {
		t.Fatalf("trade view left over after the claim: %+v", st.Trading)
	}

	v := viewOf(t, r)
	require.Equal(t, 1, v.State.RoundsCompleted)
	require.Nil(t, v.State.Trade)
	for _, seat := range v.State.Seats {
		require.Len(t, seat.Hand, 26, "seat %s", seat.ID)
		require.NotEqual(t, engine.AccoladeNone, seat.PastAccolade, "seat %s", seat.ID)
	}
	require.NoError(t, v.State.CheckCards())
}

func TestUnreadablePlayIsDropped(t *testing.T) {
	r := newTestRoom(t, quietConfig(), Options{})
	cs := startWith(t, r, "A", "B")
	cur := currentClient(t, r, cs)
	before := viewOf(t, r)
	drain(cur.out)

	cur.send(r, types.ClientMessage{Type: types.MsgPlay, Cards: []types.Card{{Rank: "Z", Suit: "Q"}}})
	cur.send(r, types.ClientMessage{Type: types.MsgStateRequest})
	select {
	case msg := <-cur.out:
		if msg.Type != types.MsgState {
			t.Fatalf("want only the requested state, got %q %q", msg.Type, msg.Message)
		}
	case <-time.After(wait):
		t.Fatalf("no reply to state_request")
	}

	after := viewOf(t, r)
	if after.Version != before.Version || after.State.CurrentID() != cur.id {
		t.Fatalf("unreadable play changed the room: v%d -> v%d", before.Version, after.Version)
	}
}
