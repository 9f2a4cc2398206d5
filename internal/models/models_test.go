package models

import (
	"errors"
	"fmt"
	"testing"
)

func TestParseStages(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "media"},
		{"media", "media"},
		{"compose", "compose,media"},
		{"music", "compose,media,music"},
		{" upload , media", "compose,media,upload"},
		{"archive", "archive,compose,media"},
		{"all", "archive,compose,media,music,upload"},
	}

	for _, tt := range tests {
		stages, err := ParseStages(tt.in)
		if err != nil {
			t.Fatalf("ParseStages(%q) failed: %v", tt.in, err)
		}
		if got := stages.String(); got != tt.want {
			t.Errorf("ParseStages(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseStagesUnknown(t *testing.T) {
	_, err := ParseStages("media,render-everything")
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestDefaultStages(t *testing.T) {
	stages := DefaultStages()
	for _, st := range []Stage{StageMedia, StageCompose, StageMusic, StageUpload} {
		if !stages.Has(st) {
			t.Errorf("expected default stages to include %s", st)
		}
	}
	if stages.Has(StageArchive) {
		t.Errorf("archive should be opt-in")
	}
}

func TestMediaKindExtension(t *testing.T) {
	if MediaKindImage.Extension() != "jpg" {
		t.Errorf("image extension = %s", MediaKindImage.Extension())
	}
	if MediaKindVideo.Extension() != "mp4" {
		t.Errorf("video extension = %s", MediaKindVideo.Extension())
	}
}

func TestErrorKinds(t *testing.T) {
	perr := &ParseError{Raw: "not json", Err: errors.New("boom")}
	if !errors.Is(perr, ErrParse) {
		t.Errorf("ParseError should match ErrParse")
	}

	serr := fmt.Errorf("generate image: %w", &ServiceError{Service: "replicate", StatusCode: 500, Body: "oops"})
	if !errors.Is(serr, ErrExternalService) {
		t.Errorf("ServiceError should match ErrExternalService")
	}

	var target *ServiceError
	if !errors.As(serr, &target) || target.StatusCode != 500 {
		t.Errorf("expected ServiceError with status 500, got %v", target)
	}

	if !errors.Is(ExternalError("suno", errors.New("dial tcp")), ErrExternalService) {
		t.Errorf("ExternalError should match ErrExternalService")
	}
}
