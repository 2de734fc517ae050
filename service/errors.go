package service

import "fmt"

// ValidationError reports a request the pipeline refuses before touching
// the workspace.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Stage names one step of the assembly pipeline.
type Stage string

const (
	StagePersist     Stage = "persist"
	StageReverse     Stage = "reverse"
	StageConcatenate Stage = "concatenate"
	StageScript      Stage = "script"
	StageNarration   Stage = "narration"
	StageScore       Stage = "score"
	StageMix         Stage = "mix"
	StageMux         Stage = "mux"
	StageReadback    Stage = "readback"
)

var stageLabels = map[Stage]string{
	StagePersist:     "saving input videos",
	StageReverse:     "reversing first video",
	StageConcatenate: "concatenating videos",
	StageScript:      "generating narration script",
	StageNarration:   "generating voiceover",
	StageScore:       "generating background music",
	StageMix:         "mixing audio",
	StageMux:         "adding audio to video",
	StageReadback:    "reading final video",
}

// Label is the human readable description used in error messages.
func (s Stage) Label() string {
	if l, ok := stageLabels[s]; ok {
		return l
	}
	return string(s)
}

// StageError wraps the failure that aborted a run with the stage it hit.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("error %s: %v", e.Stage.Label(), e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
