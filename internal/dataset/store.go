// Package dataset persists the job -> animals mapping that drives each run.
package dataset

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.uber.org/zap"

	"github.com/shy020501/Video-Automation/internal/models"
)

// Generator produces new dataset entries. The response is free text that
// contains a JSON object somewhere inside it.
type Generator interface {
	GenerateEntries(ctx context.Context, existingJobs []string) (string, error)
}

// Store is the in-memory copy of the dataset file. Key order matches the file.
type Store struct {
	path    string
	entries *orderedmap.OrderedMap[string, models.JobEntry]
	logger  *zap.Logger
}

// Load reads the dataset at path. A missing file is created as "{}".
func Load(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		path:    path,
		entries: orderedmap.New[string, models.JobEntry](),
		logger:  logger,
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create dataset directory: %w", err)
		}
		if err := s.Persist(); err != nil {
			return nil, err
		}
		logger.Info("created empty dataset", zap.String("path", path))
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", path, err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return s, nil
	}
	if !json.Valid(data) {
		return nil, &models.ParseError{Raw: string(data), Err: errors.New("invalid JSON")}
	}
	if err := json.Unmarshal(data, s.entries); err != nil {
		return nil, &models.ParseError{Raw: string(data), Err: err}
	}
	return s, nil
}

// Path returns the dataset file location.
func (s *Store) Path() string {
	return s.path
}

// Len returns the number of jobs in the dataset.
func (s *Store) Len() int {
	return s.entries.Len()
}

// Entries returns every job in file order.
func (s *Store) Entries() []models.JobSummary {
	out := make([]models.JobSummary, 0, s.entries.Len())
	for pair := s.entries.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, models.JobSummary{
			Job:     pair.Key,
			Animals: append([]string(nil), pair.Value.Animals...),
			Used:    !pair.Value.Available(),
		})
	}
	return out
}

// Jobs returns the job keys in file order.
func (s *Store) Jobs() []string {
	jobs := make([]string, 0, s.entries.Len())
	for pair := s.entries.Oldest(); pair != nil; pair = pair.Next() {
		jobs = append(jobs, pair.Key)
	}
	return jobs
}

// UnusedPairs returns the eligible (job, animals) pairs in file order.
func (s *Store) UnusedPairs() []models.JobPair {
	var pairs []models.JobPair
	for pair := s.entries.Oldest(); pair != nil; pair = pair.Next() {
		if !pair.Value.Available() {
			continue
		}
		pairs = append(pairs, models.JobPair{
			Job:     pair.Key,
			Animals: append([]string(nil), pair.Value.Animals...),
		})
	}
	return pairs
}

// Replenish asks the generator for new entries, excluding every job already
// present, and merges them in. Keys that already exist are rejected and the
// existing entry is kept. Returns the number of entries added. On a parse
// failure neither the store nor the file is modified.
func (s *Store) Replenish(ctx context.Context, gen Generator) (int, error) {
	raw, err := gen.GenerateEntries(ctx, s.Jobs())
	if err != nil {
		return 0, fmt.Errorf("generate dataset entries: %w", err)
	}

	fresh, err := ParseEntries(raw)
	if err != nil {
		return 0, err
	}

	added := 0
	for pair := fresh.Oldest(); pair != nil; pair = pair.Next() {
		if _, exists := s.entries.Get(pair.Key); exists {
			s.logger.Warn("generator returned an existing job, keeping the current entry",
				zap.String("job", pair.Key))
			continue
		}
		s.entries.Set(pair.Key, pair.Value)
		added++
	}

	if added > 0 {
		if err := s.Persist(); err != nil {
			return added, err
		}
	}
	s.logger.Info("dataset replenished", zap.Int("added", added), zap.Int("total", s.entries.Len()))
	return added, nil
}

// ParseEntries extracts the JSON object between the first '{' and the last '}'
// of raw and decodes it as a dataset mapping.
func ParseEntries(raw string) (*orderedmap.OrderedMap[string, models.JobEntry], error) {
	body := strings.TrimSpace(raw)
	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start < 0 || end < start {
		return nil, &models.ParseError{Raw: raw, Err: errors.New("no JSON object found")}
	}

	object := []byte(body[start : end+1])
	if !json.Valid(object) {
		return nil, &models.ParseError{Raw: raw, Err: errors.New("invalid JSON object")}
	}
	entries := orderedmap.New[string, models.JobEntry]()
	if err := json.Unmarshal(object, entries); err != nil {
		return nil, &models.ParseError{Raw: raw, Err: err}
	}
	return entries, nil
}

// Persist writes the mapping back to disk with 4-space indentation, preserving order.
func (s *Store) Persist() error {
	data, err := json.MarshalIndent(s.entries, "", "    ")
	if err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}
	data = append(data, '\n')

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write dataset: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace dataset: %w", err)
	}
	return nil
}

// Select returns the named job if it is present and unused, or a uniformly
// random unused pair when name is empty.
func (s *Store) Select(name string, rng *rand.Rand) (models.JobPair, error) {
	if name != "" {
		entry, ok := s.entries.Get(name)
		if !ok {
			return models.JobPair{}, fmt.Errorf("%w: job %q is not in the dataset", models.ErrNotFound, name)
		}
		if !entry.Available() {
			return models.JobPair{}, fmt.Errorf("%w: job %q has already been used", models.ErrNotFound, name)
		}
		return models.JobPair{Job: name, Animals: append([]string(nil), entry.Animals...)}, nil
	}

	pairs := s.UnusedPairs()
	if len(pairs) == 0 {
		return models.JobPair{}, fmt.Errorf("%w: no unused jobs in the dataset", models.ErrNotFound)
	}
	if rng == nil {
		return pairs[rand.Intn(len(pairs))], nil
	}
	return pairs[rng.Intn(len(pairs))], nil
}

// MarkUsed flags a job as used and persists the dataset.
func (s *Store) MarkUsed(job string) error {
	entry, ok := s.entries.Get(job)
	if !ok {
		return fmt.Errorf("%w: job %q is not in the dataset", models.ErrNotFound, job)
	}
	if entry.Used != nil && *entry.Used {
		return nil
	}
	used := true
	entry.Used = &used
	s.entries.Set(job, entry)
	return s.Persist()
}

// Lock is an advisory lock held next to the dataset file for the length of a run.
type Lock struct {
	fl *flock.Flock
}

// AcquireLock takes <path>.lock without blocking. It fails if another process holds it.
func AcquireLock(path string) (*Lock, error) {
	lockPath := path + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	fl := flock.New(lockPath)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire dataset lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("another run is already using %s", path)
	}
	return &Lock{fl: fl}, nil
}

// Release drops the lock.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
