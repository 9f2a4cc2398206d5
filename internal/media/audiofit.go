package media

import "math"

// AudioSegment is a [Start, End) window of the source, in seconds.
type AudioSegment struct {
	Start float64
	End   float64
}

func (s AudioSegment) Duration() float64 {
	return s.End - s.Start
}

// AudioClip is a lazily rendered audio track: the source file plus the list
// of windows that get concatenated at render time. An empty Segments list
// means the whole source, played once.
type AudioClip struct {
	Source   string
	Duration float64 // seconds, meaningful only when Known
	Known    bool
	Segments []AudioSegment
}

// NewAudioClip wraps a source whose duration is known.
func NewAudioClip(source string, duration float64) AudioClip {
	return AudioClip{Source: source, Duration: duration, Known: duration > 0}
}

// Parts returns the segment list, expanding the implicit whole-source segment.
func (a AudioClip) Parts() []AudioSegment {
	if len(a.Segments) > 0 {
		return a.Segments
	}
	return []AudioSegment{{Start: 0, End: a.Duration}}
}

// Fit loops or trims the clip to exactly target seconds.
//
// Unknown duration: returned unchanged. Longer than target: the prefix
// [0, target]. Equal: unchanged. Shorter: floor(target/D) whole copies
// followed by a prefix covering the remainder.
func Fit(clip AudioClip, target float64) AudioClip {
	if !clip.Known || clip.Duration <= 0 || target <= 0 {
		return clip
	}
	if clip.Duration == target {
		return clip
	}
	if clip.Duration > target {
		return withParts(clip, prefix(clip.Parts(), target), target)
	}

	whole := int(math.Floor(target / clip.Duration))
	base := clip.Parts()
	parts := make([]AudioSegment, 0, (whole+1)*len(base))
	for i := 0; i < whole; i++ {
		parts = append(parts, base...)
	}

	remainder := target - float64(whole)*clip.Duration
	if remainder > target*1e-12 {
		parts = append(parts, prefix(base, remainder)...)
	}
	return withParts(clip, parts, target)
}

func withParts(clip AudioClip, parts []AudioSegment, duration float64) AudioClip {
	return AudioClip{
		Source:   clip.Source,
		Duration: duration,
		Known:    true,
		Segments: parts,
	}
}

// prefix keeps the first length seconds of a segment list.
func prefix(parts []AudioSegment, length float64) []AudioSegment {
	out := make([]AudioSegment, 0, len(parts))
	remaining := length
	for _, p := range parts {
		if remaining <= 0 {
			break
		}
		d := p.Duration()
		if d <= remaining {
			out = append(out, p)
			remaining -= d
			continue
		}
		out = append(out, AudioSegment{Start: p.Start, End: p.Start + remaining})
		remaining = 0
	}
	return out
}

// segmentsDuration sums the rendered length of a segment list.
func segmentsDuration(parts []AudioSegment) float64 {
	var total float64
	for _, p := range parts {
		total += p.Duration()
	}
	return total
}
