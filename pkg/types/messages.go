package types

// Client -> server
const (
	MsgHeartbeat           = "heartbeat"
	MsgPlay                = "play"
	MsgPass                = "pass"
	MsgLeave               = "leave"
	MsgStartGame           = "start_game"
	MsgRequestRestartVote  = "request_restart_vote"
	MsgRestartVote         = "restart_vote"
	MsgTagDick             = "tag_dick"
	MsgSpectatorPreference = "spectator_preference"
	MsgClaimTrade          = "claim_trade"
	MsgStateRequest        = "state_request"
)

// Server -> client
const (
	MsgState                = "state"
	MsgPlayerJoined         = "player_joined"
	MsgPlayerDisconnected   = "player_disconnected"
	MsgGameOver             = "game_over"
	MsgError                = "error"
	MsgYouLeft              = "you_left"
	MsgRestartVoteRequested = "restart_vote_requested"
	MsgRestartVoteRejected  = "restart_vote_rejected"
	MsgRestartVotePassed    = "restart_vote_passed"
)

const (
	VoteYes = "yes"
	VoteNo  = "no"
)

// Card is the wire form of a card: rank is one of 3-9, T, J, Q, K, A, 2 and suit one of C, D, H, S.
type Card struct {
	Rank string `json:"rank"`
	Suit string `json:"suit"`
}

type ClientMessage struct {
	Type           string `json:"type"`
	Cards          []Card `json:"cards,omitempty"`
	Vote           string `json:"vote,omitempty"`
	TargetPlayerID string `json:"target_player_id,omitempty"`
	WantToPlay     *bool  `json:"want_to_play,omitempty"`
	Role           string `json:"role,omitempty"`
}

type PlayerRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ServerMessage struct {
	Type          string     `json:"type"`
	State         *StateView `json:"state,omitempty"`
	PlayerID      string     `json:"player_id,omitempty"`
	Player        *PlayerRef `json:"player,omitempty"`
	Results       []string   `json:"results,omitempty"`
	Message       string     `json:"message,omitempty"`
	InitiatorName string     `json:"initiator_name,omitempty"`
}
