// Package naming maps job and animal names onto the on-disk output layout.
package naming

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// Unicode whitespace, not just RE2's ASCII \s: NBSP and friends become "_" too.
	whitespaceRe = regexp.MustCompile(`[\s\p{Z}\x{1c}-\x{1f}\x{85}]+`)
	invalidRe    = regexp.MustCompile(`[^a-z0-9_]+`)
)

// WorkDirName holds intermediate frames (intro card, caption overlays) inside a job directory.
const WorkDirName = ".work"

// Slug normalizes a name into a filesystem-safe token: trimmed, lowercased,
// whitespace runs collapsed to "_", everything outside [a-z0-9_] removed.
func Slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = whitespaceRe.ReplaceAllString(s, "_")
	return invalidRe.ReplaceAllString(s, "")
}

// Capitalize upper-cases the first rune and lower-cases the rest ("street CHEF" -> "Street chef").
func Capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

// JobDir returns <outputDir>/<slug(job)>, creating it if needed.
func JobDir(outputDir, job string) (string, error) {
	dir := filepath.Join(outputDir, Slug(job))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create job directory: %w", err)
	}
	return dir, nil
}

// AssetPath returns <outputDir>/<slug(job)>/<slug(job)>_<slug(animal)>.<ext>.
// The job directory is created as a side effect.
func AssetPath(outputDir, job, animal, ext string) (string, error) {
	dir, err := JobDir(outputDir, job)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%s.%s", Slug(job), Slug(animal), ext)), nil
}

// BGMPath is the background track for a job.
func BGMPath(outputDir, job string) (string, error) {
	return AssetPath(outputDir, job, "bgm", "mp3")
}

// FinalPath is the rendered video for a job.
func FinalPath(outputDir, job string) (string, error) {
	return AssetPath(outputDir, job, "final", "mp4")
}

// WorkDir returns the scratch directory for a job's intermediate frames.
func WorkDir(outputDir, job string) (string, error) {
	dir, err := JobDir(outputDir, job)
	if err != nil {
		return "", err
	}
	work := filepath.Join(dir, WorkDirName)
	if err := os.MkdirAll(work, 0755); err != nil {
		return "", fmt.Errorf("failed to create work directory: %w", err)
	}
	return work, nil
}
