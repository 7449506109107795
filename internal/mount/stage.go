package mount

import "fmt"

// Stage is a step of the launch sequence. Stages are reached strictly in
// declaration order.
type Stage int

const (
	StageStart Stage = iota
	StageNamespaceUnshared
	StagePropagationPrivate
	StageFilesystemPrepared
	StageOverlayMounted
	StagePrivilegesDropped
	StageHandedOff
)

var stageNames = [...]string{
	StageStart:              "start",
	StageNamespaceUnshared:  "unshare namespace",
	StagePropagationPrivate: "make mounts private",
	StageFilesystemPrepared: "prepare overlay",
	StageOverlayMounted:     "mount overlay",
	StagePrivilegesDropped:  "drop privileges",
	StageHandedOff:          "hand off",
}

func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// StageError reports the stage that could not be reached.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("launch: %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
