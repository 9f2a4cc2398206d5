package media

import (
	"math"
	"testing"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(1, math.Abs(b))
}

func TestFitUnknownDuration(t *testing.T) {
	clip := AudioClip{Source: "bgm.mp3"}
	got := Fit(clip, 12)
	if got.Known || len(got.Segments) != 0 {
		t.Errorf("unknown-duration clip should be returned unchanged, got %+v", got)
	}
}

func TestFitEqualDuration(t *testing.T) {
	clip := NewAudioClip("bgm.mp3", 17.5)
	got := Fit(clip, 17.5)
	if len(got.Segments) != 0 || got.Duration != 17.5 {
		t.Errorf("equal-duration clip should be unchanged, got %+v", got)
	}
}

func TestFitTrims(t *testing.T) {
	got := Fit(NewAudioClip("bgm.mp3", 120), 17.5)

	if len(got.Segments) != 1 {
		t.Fatalf("expected a single prefix segment, got %+v", got.Segments)
	}
	if got.Segments[0].Start != 0 || !approx(got.Segments[0].End, 17.5) {
		t.Errorf("expected prefix [0, 17.5], got %+v", got.Segments[0])
	}
	if !approx(segmentsDuration(got.Segments), 17.5) || got.Duration != 17.5 {
		t.Errorf("fitted duration = %v", segmentsDuration(got.Segments))
	}
}

func TestFitLoops(t *testing.T) {
	tests := []struct {
		name      string
		duration  float64
		target    float64
		wholes    int
		remainder float64
	}{
		{"two and a half", 4, 10, 2, 2},
		{"exact multiple", 5, 15, 3, 0},
		{"fractional", 3.3, 17.5, 5, 1},
		{"just short", 9.99, 10, 1, 0.01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Fit(NewAudioClip("bgm.mp3", tt.duration), tt.target)

			if !approx(segmentsDuration(got.Segments), tt.target) {
				t.Errorf("fitted duration = %v, want %v", segmentsDuration(got.Segments), tt.target)
			}

			wholes := 0
			for _, s := range got.Segments {
				if s.Start == 0 && s.End == tt.duration {
					wholes++
				}
			}
			if wholes != tt.wholes {
				t.Errorf("whole copies = %d, want %d (%+v)", wholes, tt.wholes, got.Segments)
			}

			partials := len(got.Segments) - wholes
			if tt.remainder == 0 && partials != 0 {
				t.Errorf("expected no partial segment, got %+v", got.Segments)
			}
			if tt.remainder > 0 {
				last := got.Segments[len(got.Segments)-1]
				if partials != 1 || last.Start != 0 || !approx(last.End, tt.remainder) {
					t.Errorf("expected trailing prefix of %v, got %+v", tt.remainder, last)
				}
			}
		})
	}
}

func TestFitRefitsSegments(t *testing.T) {
	looped := Fit(NewAudioClip("bgm.mp3", 4), 10)
	trimmed := Fit(looped, 6)

	if !approx(segmentsDuration(trimmed.Segments), 6) {
		t.Fatalf("refit duration = %v", segmentsDuration(trimmed.Segments))
	}
	if len(trimmed.Segments) != 2 || trimmed.Segments[1].End != 2 {
		t.Errorf("unexpected refit segments: %+v", trimmed.Segments)
	}
}
