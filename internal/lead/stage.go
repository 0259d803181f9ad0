package lead

import (
	"errors"
	"fmt"
	"strings"
)

// Stage is a position in the sales pipeline.
type Stage string

// Pipeline stages in order. Won and lost are terminal.
const (
	StageNew         Stage = "new"
	StageContacted   Stage = "contacted"
	StageQualified   Stage = "qualified"
	StageProposal    Stage = "proposal"
	StageNegotiation Stage = "negotiation"
	StageWon         Stage = "won"
	StageLost        Stage = "lost"
)

var (
	// ErrNotFound is returned when a lead or job does not exist for the caller.
	ErrNotFound = errors.New("not found")
	// ErrInvalidStage is returned for unknown stage names.
	ErrInvalidStage = errors.New("invalid stage")
	// ErrInvalidTransition is returned when a stage move is not allowed.
	ErrInvalidTransition = errors.New("invalid stage transition")
)

var stageOrder = map[Stage]int{
	StageNew:         0,
	StageContacted:   1,
	StageQualified:   2,
	StageProposal:    3,
	StageNegotiation: 4,
	StageWon:         5,
	StageLost:        6,
}

// Stages returns every stage in pipeline order.
func Stages() []Stage {
	return []Stage{StageNew, StageContacted, StageQualified, StageProposal, StageNegotiation, StageWon, StageLost}
}

// ParseStage resolves a stage name case-insensitively.
func ParseStage(raw string) (Stage, error) {
	s := Stage(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := stageOrder[s]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidStage, raw)
	}
	return s, nil
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	_, ok := stageOrder[s]
	return ok
}

// Terminal reports whether the stage closes the deal.
func (s Stage) Terminal() bool {
	return s == StageWon || s == StageLost
}

// CanTransition reports whether a lead may move from one stage to another.
func CanTransition(from, to Stage) bool {
	if !from.Valid() || !to.Valid() || from == to {
		return false
	}
	if from == StageLost {
		return to == StageNew
	}
	if from == StageWon {
		return false
	}
	if to == StageLost {
		return true
	}
	return stageOrder[to] > stageOrder[from]
}

// Transition validates a move and returns the history entry for it.
func Transition(l Lead, to Stage, note string, clock Clock) (StageChange, error) {
	if !to.Valid() {
		return StageChange{}, fmt.Errorf("%w: %q", ErrInvalidStage, to)
	}
	if !CanTransition(l.Stage, to) {
		return StageChange{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, l.Stage, to)
	}
	return StageChange{From: l.Stage, To: to, At: clock.Now().UTC(), Note: note}, nil
}
