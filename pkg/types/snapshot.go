package types

// StateView is one recipient's redacted picture of a room. Phase "no_game" carries only
// the lobby list; Round is set in every other phase and Trading only while trading.
type StateView struct {
	Version         uint64       `json:"version"`
	Phase           string       `json:"phase"`
	Room            string       `json:"room"`
	CurrentPlayer   int          `json:"current_player_idx"`
	Players         []PlayerView `json:"players"`
	Round           *RoundView   `json:"round,omitempty"`
	RoundsCompleted int          `json:"rounds_completed"`
	Results         []string     `json:"results"`
	PassedThisRound []string     `json:"passed_this_round"`
	ValidPlays      [][]Card     `json:"valid_plays"`
	Trading         *TradingView `json:"trading"`
	DickTagged      *string      `json:"dick_tagged_player_id"`
	Waiting         *WaitingView `json:"waiting_for_disconnected"`
	TurnWarning     bool         `json:"turn_warning,omitempty"`
	Spectator       bool         `json:"spectator"`
	WantsToPlay     *bool        `json:"wants_to_play,omitempty"`
	SpectatorCount  int          `json:"spectator_count"`
	RestartVote     *RestartView `json:"restart_vote,omitempty"`
}

type PlayerView struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	PastAccolade   string `json:"past_accolade"`
	Accolade       string `json:"accolade,omitempty"`
	CardCount      int    `json:"card_count"`
	Hand           []Card `json:"hand,omitempty"`
	InResults      bool   `json:"in_results"`
	ResultPosition *int   `json:"result_position"`
	Disconnected   bool   `json:"disconnected"`
	Idle           bool   `json:"idle,omitempty"`
}

type PlayView struct {
	PlayerID string `json:"player"`
	Cards    []Card `json:"cards"`
}

type PileView struct {
	Plays []PlayView `json:"plays"`
}

type RoundView struct {
	LastPlayPlayer int      `json:"last_play_player_idx"`
	Pile           PileView `json:"pile"`
}

// TradingView shows the centre cards face up to the two trading parties only; everyone
// else sees FaceDown with TradeCount cards.
type TradingView struct {
	HighCard   *Card `json:"high_card"`
	LowCard    *Card `json:"low_card"`
	EPClaimed  bool  `json:"ep_claimed"`
	SHClaimed  bool  `json:"sh_claimed"`
	FaceDown   bool  `json:"face_down"`
	TradeCount int   `json:"trade_count"`
}

type WaitingView struct {
	PlayerName       string `json:"player_name"`
	SecondsRemaining int    `json:"seconds_remaining"`
}

type RestartView struct {
	InitiatorName string `json:"initiator_name"`
	Yes           int    `json:"yes"`
	No            int    `json:"no"`
	Voted         bool   `json:"voted"`
}
