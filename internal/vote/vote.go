// Package vote tallies restart votes. A room holds at most one *Vote; nil means no vote
// is outstanding.
package vote

import (
	"errors"
	"fmt"
	"slices"
)

var ErrInProgress = errors.New("Restart vote already in progress")
var ErrNoVote = errors.New("No restart vote in progress")
var ErrNotVoter = errors.New("Only seated players can vote")
var ErrAlreadyVoted = errors.New("Already voted")
var ErrBadPolicy = errors.New("unknown vote policy")

type Policy string

const (
	Majority  Policy = "majority"
	Unanimous Policy = "unanimous"
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case Majority, Unanimous:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrBadPolicy, s)
}

type Outcome int

const (
	Pending Outcome = iota
	Passed
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Passed:
		return "passed"
	case Rejected:
		return "rejected"
	default:
		return "pending"
	}
}

type Vote struct {
	Policy        Policy          `json:"policy"`
	InitiatorID   string          `json:"initiator_id"`
	InitiatorName string          `json:"initiator_name"`
	Voters        []string        `json:"voters"`
	Ballots       map[string]bool `json:"ballots"`
}

// Start opens a vote among voters. The initiator must be one of them and votes yes.
func Start(policy Policy, initiatorID, initiatorName string, voters []string) (*Vote, error) {
	if !slices.Contains(voters, initiatorID) {
		return nil, ErrNotVoter
	}
	return &Vote{
		Policy:        policy,
		InitiatorID:   initiatorID,
		InitiatorName: initiatorName,
		Voters:        slices.Clone(voters),
		Ballots:       map[string]bool{initiatorID: true},
	}, nil
}

func (v *Vote) Cast(id string, yes bool) error {
	if !slices.Contains(v.Voters, id) {
		return ErrNotVoter
	}
	if _, done := v.Ballots[id]; done {
		return ErrAlreadyVoted
	}
	v.Ballots[id] = yes
	return nil
}

func (v *Vote) HasVoted(id string) bool {
	_, ok := v.Ballots[id]
	return ok
}

// Drop removes a voter who left the game along with any ballot they cast.
func (v *Vote) Drop(id string) {
	v.Voters = slices.DeleteFunc(v.Voters, func(x string) bool { return x == id })
	delete(v.Ballots, id)
}

func (v *Vote) Tally() (yes, no int) {
	for _, b := range v.Ballots {
		if b {
			yes++
		} else {
			no++
		}
	}
	return yes, no
}

// Outcome is Passed or Rejected as soon as the remaining ballots cannot change the result.
func (v *Vote) Outcome() Outcome {
	n := len(v.Voters)
	if n == 0 {
		return Rejected
	}
	yes, no := v.Tally()
	missing := n - yes - no
	if v.Policy == Unanimous {
		switch {
		case no > 0:
			return Rejected
		case yes == n:
			return Passed
		}
		return Pending
	}
	need := n/2 + 1
	switch {
	case yes >= need:
		return Passed
	case yes+missing < need:
		return Rejected
	}
	return Pending
}

// Close decides the vote at its deadline; ballots never cast count as no.
func (v *Vote) Close() Outcome {
	for _, id := range v.Voters {
		if _, ok := v.Ballots[id]; !ok {
			v.Ballots[id] = false
		}
	}
	return v.Outcome()
}
