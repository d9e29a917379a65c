package payout

import (
	"errors"
	"fmt"
)

// Stage names one step of the payout pipeline.
type Stage string

const (
	StageDerive    Stage = "derive"
	StageBuild     Stage = "build"
	StageSign      Stage = "sign"
	StageAssemble  Stage = "assemble"
	StageJournal   Stage = "journal"
	StageBroadcast Stage = "broadcast"
)

var ErrUnsupportedChain = errors.New("unsupported chain")

// StageError reports which stage of the pipeline failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}
