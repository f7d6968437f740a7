package quest

import (
	"errors"
	"fmt"
)

type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseAcquiring Phase = "acquiring-media"
	PhaseLocating  Phase = "locating"
	PhaseCapturing Phase = "capturing"
	PhaseJudging   Phase = "judging"
	PhaseParsing   Phase = "parsing"
	PhaseScoring   Phase = "scoring"
)

var ErrBusy = errors.New("quest: a verification round is already running")

// PhaseError: раунд упал в конкретной фазе; состояние игрока не менялось.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string { return fmt.Sprintf("quest: %s: %v", e.Phase, e.Err) }

func (e *PhaseError) Unwrap() error { return e.Err }
