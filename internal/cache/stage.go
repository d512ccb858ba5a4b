package cache

import "errors"

// Stage names one pipeline step with its own cache slot.
type Stage string

// Stages in pipeline order.
const (
	StagePoints   Stage = "points"
	StageRoute    Stage = "route"
	StageArtifact Stage = "artifact"
	StageSummary  Stage = "summary"
)

// ErrUnknownStage is returned for stage names outside Stages.
var ErrUnknownStage = errors.New("unknown stage")

// Stages lists every stage in order.
var Stages = []Stage{StagePoints, StageRoute, StageArtifact, StageSummary}

// ParseStage returns the stage called name.
func ParseStage(name string) (Stage, error) {
	s := Stage(name)
	if !s.Valid() {
		return "", ErrUnknownStage
	}
	return s, nil
}

// Valid reports whether s is one of Stages.
func (s Stage) Valid() bool {
	return s.index() >= 0
}

// Ext is the file extension entries of this stage are stored with.
func (s Stage) Ext() string {
	if s == StageArtifact {
		return ".png"
	}
	return ".json"
}

// Before reports whether s runs earlier in the pipeline than other.
func (s Stage) Before(other Stage) bool {
	return s.index() < other.index()
}

// AndDownstream returns s followed by every later stage.
func (s Stage) AndDownstream() []Stage {
	i := s.index()
	if i < 0 {
		return nil
	}
	return append([]Stage(nil), Stages[i:]...)
}

// Dependencies returns the stages that must be cached before s can run.
func (s Stage) Dependencies() []Stage {
	i := s.index()
	if i <= 0 {
		return nil
	}
	return append([]Stage(nil), Stages[:i]...)
}

func (s Stage) index() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}
