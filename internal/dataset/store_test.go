package dataset

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/shy020501/Video-Automation/internal/models"
)

type stubGenerator struct {
	response string
	err      error
	calls    int
	excluded []string
}

func (g *stubGenerator) GenerateEntries(_ context.Context, existing []string) (string, error) {
	g.calls++
	g.excluded = existing
	return g.response, g.err
}

func writeDataset(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "animal_with_job.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write dataset: %v", err)
	}
	return path
}

func TestLoadCreatesEmptyDataset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "animal_with_job.json")

	store, err := Load(path, zap.NewNop())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("expected empty store, got %d entries", store.Len())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("dataset file not created: %v", err)
	}
	if strings.TrimSpace(string(data)) != "{}" {
		t.Errorf("expected {} on disk, got %q", data)
	}
}

func TestUnusedPairsPreservesOrder(t *testing.T) {
	path := writeDataset(t, `{
		"zookeeper": {"animals": ["gorilla"], "used": false},
		"chef": {"animals": ["pig", "rabbit"], "used": true},
		"astronaut": {"animals": ["cat", "dog"]},
		"barber": {"animals": ["lion"], "used": false}
	}`)

	store, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	pairs := store.UnusedPairs()
	var jobs []string
	for _, p := range pairs {
		jobs = append(jobs, p.Job)
	}
	if got := strings.Join(jobs, ","); got != "zookeeper,barber" {
		t.Errorf("UnusedPairs order = %s", got)
	}
}

func TestEntryWithoutUsedKeyIsNotSelectable(t *testing.T) {
	original := `{"chef": {"animals": ["pig"]}}`
	path := writeDataset(t, original)
	store, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if pairs := store.UnusedPairs(); len(pairs) != 0 {
		t.Errorf("entry without a used flag should not be eligible: %+v", pairs)
	}
	if _, err := store.Select("chef", nil); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Select(chef) error = %v, want not found", err)
	}
	if e := store.Entries(); len(e) != 1 || !e[0].Used {
		t.Errorf("summary should report chef as unavailable: %+v", e)
	}

	if err := store.Persist(); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}
	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), `"used"`) {
		t.Errorf("missing used key should stay missing on disk:\n%s", data)
	}
}

func TestPersistKeepsOrderAndIndent(t *testing.T) {
	path := writeDataset(t, `{"zebra crossing guard": {"animals": ["zebra"], "used": false}, "aviator": {"animals": ["eagle"], "used": false}}`)

	store, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := store.MarkUsed("aviator"); err != nil {
		t.Fatalf("MarkUsed failed: %v", err)
	}

	data, _ := os.ReadFile(path)
	text := string(data)
	if strings.Index(text, "zebra crossing guard") > strings.Index(text, "aviator") {
		t.Errorf("key order not preserved:\n%s", text)
	}
	if !strings.Contains(text, "\n    \"aviator\": {\n        \"animals\"") {
		t.Errorf("expected 4-space indentation:\n%s", text)
	}

	reloaded, _ := Load(path, nil)
	if _, err := reloaded.Select("aviator", nil); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("used job should not be selectable, got %v", err)
	}
}

func TestReplenishAddsEntries(t *testing.T) {
	path := writeDataset(t, `{"chef": {"animals": ["pig"], "used": true}}`)
	store, _ := Load(path, nil)

	gen := &stubGenerator{response: "Sure! Here you go:\n```json\n" +
		`{"firefighter": {"animals": ["dalmatian", "bear"], "used": false}, "chef": {"animals": ["cow"], "used": false}}` +
		"\n```"}

	added, err := store.Replenish(context.Background(), gen)
	if err != nil {
		t.Fatalf("Replenish failed: %v", err)
	}
	if added != 1 {
		t.Errorf("added = %d, want 1 (collision rejected)", added)
	}
	if len(gen.excluded) != 1 || gen.excluded[0] != "chef" {
		t.Errorf("existing jobs not passed as exclusions: %v", gen.excluded)
	}

	pairs := store.UnusedPairs()
	if len(pairs) != 1 || pairs[0].Job != "firefighter" {
		t.Fatalf("unexpected unused pairs: %+v", pairs)
	}

	// Collision kept the original entry
	reloaded, _ := Load(path, nil)
	for _, e := range reloaded.Entries() {
		if e.Job == "chef" && (!e.Used || e.Animals[0] != "pig") {
			t.Errorf("existing entry was overwritten: %+v", e)
		}
	}
}

func TestReplenishMalformedLeavesFileUntouched(t *testing.T) {
	original := `{"chef": {"animals": ["pig"], "used": true}}`
	path := writeDataset(t, original)
	store, _ := Load(path, nil)

	tests := []string{
		"I could not think of any jobs.",
		`{"firefighter": {"animals": ["dalmatian"], "used": false}`,
		`{"firefighter": {"animals": "dalmatian"}}`,
	}

	for _, response := range tests {
		_, err := store.Replenish(context.Background(), &stubGenerator{response: response})
		if !errors.Is(err, models.ErrParse) {
			t.Errorf("Replenish(%q) error = %v, want parse error", response, err)
			continue
		}
		var perr *models.ParseError
		if !errors.As(err, &perr) || perr.Raw != response {
			t.Errorf("parse error should carry the raw response, got %v", err)
		}
	}

	data, _ := os.ReadFile(path)
	if string(data) != original {
		t.Errorf("dataset file changed after malformed response: %s", data)
	}
	if store.Len() != 1 {
		t.Errorf("store changed after malformed response: %d entries", store.Len())
	}
}

func TestReplenishGeneratorError(t *testing.T) {
	store, _ := Load(filepath.Join(t.TempDir(), "d.json"), nil)
	boom := models.ExternalError("openai", errors.New("connection reset"))

	if _, err := store.Replenish(context.Background(), &stubGenerator{err: boom}); !errors.Is(err, models.ErrExternalService) {
		t.Errorf("expected external service error, got %v", err)
	}
}

func TestSelect(t *testing.T) {
	path := writeDataset(t, `{
		"chef": {"animals": ["pig", "rabbit"], "used": false},
		"pilot": {"animals": ["eagle"], "used": true},
		"nurse": {"animals": ["cat"], "used": false}
	}`)
	store, _ := Load(path, nil)

	pair, err := store.Select("chef", nil)
	if err != nil {
		t.Fatalf("Select(chef) failed: %v", err)
	}
	if pair.Job != "chef" || len(pair.Animals) != 2 || pair.Animals[1] != "rabbit" {
		t.Errorf("unexpected pair: %+v", pair)
	}

	for _, name := range []string{"pilot", "astronaut"} {
		if _, err := store.Select(name, nil); !errors.Is(err, models.ErrNotFound) {
			t.Errorf("Select(%s) error = %v, want not found", name, err)
		}
	}

	rng := rand.New(rand.NewSource(7))
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		p, err := store.Select("", rng)
		if err != nil {
			t.Fatalf("random Select failed: %v", err)
		}
		seen[p.Job] = true
	}
	if seen["pilot"] {
		t.Errorf("random selection returned a used job")
	}
	if !seen["chef"] || !seen["nurse"] {
		t.Errorf("random selection never produced every unused job: %v", seen)
	}
}

func TestSelectEmpty(t *testing.T) {
	store, _ := Load(filepath.Join(t.TempDir(), "d.json"), nil)
	if _, err := store.Select("", nil); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected not found on empty dataset, got %v", err)
	}
}

func TestAcquireLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "animal_with_job.json")

	first, err := AcquireLock(path)
	if err != nil {
		t.Fatalf("first AcquireLock failed: %v", err)
	}
	if _, err := AcquireLock(path); err == nil {
		t.Errorf("second AcquireLock should fail while the first is held")
	}
	if err := first.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	again, err := AcquireLock(path)
	if err != nil {
		t.Fatalf("AcquireLock after release failed: %v", err)
	}
	_ = again.Release()
}
