package models

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Enums
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
)

// Extension returns the file extension used on disk for the media kind.
func (k MediaKind) Extension() string {
	if k == MediaKindVideo {
		return "mp4"
	}
	return "jpg"
}

// Stage is one optional step of the pipeline. Media generation always runs.
type Stage string

const (
	StageMedia   Stage = "media"   // Image + video generation per animal
	StageCompose Stage = "compose" // Intro card, captions, concatenation and final render
	StageMusic   Stage = "music"   // Background music generation + fitting
	StageUpload  Stage = "upload"  // YouTube upload
	StageArchive Stage = "archive" // Copy of the final video to object storage
)

var knownStages = map[Stage]bool{
	StageMedia:   true,
	StageCompose: true,
	StageMusic:   true,
	StageUpload:  true,
	StageArchive: true,
}

// Stages is the set of enabled pipeline stages.
type Stages map[Stage]bool

// DefaultStages is the full run: generate, compose with music, upload.
func DefaultStages() Stages {
	return Stages{StageMedia: true, StageCompose: true, StageMusic: true, StageUpload: true}
}

// ParseStages parses a comma-separated stage list ("media,compose,music").
// The media stage is always enabled. Music and upload imply compose.
func ParseStages(s string) (Stages, error) {
	stages := Stages{StageMedia: true}
	for _, part := range strings.Split(s, ",") {
		name := Stage(strings.ToLower(strings.TrimSpace(part)))
		if name == "" {
			continue
		}
		if name == "all" {
			for st := range knownStages {
				stages[st] = true
			}
			continue
		}
		if !knownStages[name] {
			return nil, fmt.Errorf("%w: unknown stage %q", ErrConfiguration, name)
		}
		stages[name] = true
	}
	if stages[StageMusic] || stages[StageUpload] || stages[StageArchive] {
		stages[StageCompose] = true
	}
	return stages, nil
}

// Has reports whether the stage is enabled.
func (s Stages) Has(stage Stage) bool {
	return s[stage]
}

// String renders the stages in a stable order.
func (s Stages) String() string {
	names := make([]string, 0, len(s))
	for st, on := range s {
		if on {
			names = append(names, string(st))
		}
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

// Models

// JobEntry is one record of the dataset mapping (job name -> entry).
// An entry without a "used" key is kept as-is and is never selected.
type JobEntry struct {
	Animals []string `json:"animals"`
	Used    *bool    `json:"used,omitempty"`
}

// Available reports whether the entry is explicitly marked unused.
func (e JobEntry) Available() bool {
	return e.Used != nil && !*e.Used
}

// JobPair is an eligible (job, animals) selection.
type JobPair struct {
	Job     string
	Animals []string
}

type Run struct {
	ID             uuid.UUID `json:"id"`
	Job            string    `json:"job"`
	Stages         string    `json:"stages"`
	Status         RunStatus `json:"status"`
	FinalVideoPath *string   `json:"final_video_path,omitempty"`
	RemoteVideoID  *string   `json:"remote_video_id,omitempty"`
	ErrorMessage   *string   `json:"error_message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// RunRequest is what gets queued for the worker.
type RunRequest struct {
	ID        uuid.UUID `json:"id"`
	Job       string    `json:"job,omitempty"` // empty = random unused job
	Stages    string    `json:"stages,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// API request/response types

type CreateRunRequest struct {
	Job    string `json:"job,omitempty"`
	Stages string `json:"stages,omitempty"`
}

type CreateRunResponse struct {
	RunID  uuid.UUID `json:"run_id"`
	Status RunStatus `json:"status"`
}

type JobSummary struct {
	Job     string   `json:"job"`
	Animals []string `json:"animals"`
	Used    bool     `json:"used"`
}

type ListRunsResponse struct {
	Runs   []Run `json:"runs"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}
