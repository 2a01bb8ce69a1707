package checkpoint

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"photocopy/internal/types"
)

// DecisionKind is how a run should start relative to prior checkpoints.
type DecisionKind int

const (
	// StartFresh begins a new run, ignoring any prior checkpoint.
	StartFresh DecisionKind = iota

	// ResumeFromCheckpoint continues the run the checkpoint describes.
	ResumeFromCheckpoint

	// PromptUser defers the choice to the CLI: a valid checkpoint exists
	// but neither --fresh nor --resume was given.
	PromptUser
)

// Decision is the resume orchestrator's verdict.
type Decision struct {
	Kind       DecisionKind
	Reason     string
	State      *State
	Validation ResumeValidation
}

// Decide inspects the checkpoint store and the config flags and decides
// whether to start fresh, resume, or ask the user.
func Decide(cfg *types.Config) (Decision, error) {
	if cfg.FreshStart {
		return Decision{Kind: StartFresh, Reason: "--fresh flag"}, nil
	}

	dir := Dir(cfg.Destination, cfg.CheckpointDir)
	latest, err := FindLatest(dir, cfg.Source, cfg.Destination)
	if err != nil {
		return Decision{}, fmt.Errorf("discover checkpoint: %w", err)
	}
	if latest == nil {
		return Decision{Kind: StartFresh, Reason: "No previous checkpoint found"}, nil
	}

	validation := Validate(latest, cfg)
	if !validation.IsValid {
		return Decision{Kind: StartFresh, Reason: validation.InvalidReason}, nil
	}

	if cfg.Resume {
		return Decision{Kind: ResumeFromCheckpoint, State: latest, Validation: validation}, nil
	}
	return Decision{Kind: PromptUser, State: latest, Validation: validation}, nil
}

// NewState initializes a fresh checkpoint state for a planned run: full
// file count, zeroed completion bitmap, and the hashes that guard future
// resumes.
func NewState(cfg *types.Config, totalFiles, totalBytes uint64, planHash [32]byte) *State {
	return &State{
		Version:               SchemaVersion,
		SessionID:             uuid.New(),
		Started:               time.Now().UTC(),
		SourceDir:             cfg.Source,
		DestinationPattern:    cfg.Destination,
		ConfigHash:            ComputeConfigHash(cfg),
		PlanHash:              planHash,
		TotalFiles:            totalFiles,
		TotalBytes:            totalBytes,
		Completed:             NewBitset(totalFiles),
		Failed:                make(map[uint64]string),
		PendingSourceDeletion: make(map[uint64]bool),
	}
}
