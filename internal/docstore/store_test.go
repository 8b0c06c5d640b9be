package docstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/venturelab/sprint-copilot/internal/shared"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s, dir
}

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)

	data, err := s.Load(DocSprints)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, ok := data["sprints"].([]any); !ok {
		t.Errorf("Expected empty sprints list in default, got %v", data)
	}

	bmc, err := s.Load(DocBMC)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(bmc) != 0 {
		t.Errorf("Expected empty default for BMC, got %v", bmc)
	}
}

func TestLoadCorruptFileReturnsDefault(t *testing.T) {
	t.Parallel()

	s, dir := newTestStore(t)
	if err := os.WriteFile(filepath.Join(dir, "business_model_canvas.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	data, err := s.Load(DocBMC)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("Expected empty default for corrupt file, got %v", data)
	}
}

func TestLoadUnknownDocument(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	if _, err := s.Load("nope"); !shared.IsNotFound(err) {
		t.Errorf("Expected NotFound for unknown document, got %v", err)
	}
}

func TestUpdateMergesMappings(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	if _, err := s.Update(DocBMC, "Key Partners", json.RawMessage(`{"suppliers": "acme", "channels": "web"}`)); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if _, err := s.Update(DocBMC, "Key Partners", json.RawMessage(`{"suppliers": "globex"}`)); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	data, err := s.Load(DocBMC)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	section, ok := data["Key Partners"].(map[string]any)
	if !ok {
		t.Fatalf("Expected mapping section, got %T", data["Key Partners"])
	}
	if section["suppliers"] != "globex" {
		t.Errorf("Expected patch to win on conflict, got %v", section["suppliers"])
	}
	if section["channels"] != "web" {
		t.Errorf("Expected other keys preserved, got %v", section["channels"])
	}
}

func TestUpdateReplacesSequences(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	if _, err := s.Update(DocVPC, "gains", json.RawMessage(`["a", "b", "c"]`)); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if _, err := s.Update(DocVPC, "gains", json.RawMessage(`["d"]`)); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	data, err := s.Load(DocVPC)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	gains, ok := data["gains"].([]any)
	if !ok || len(gains) != 1 || gains[0] != "d" {
		t.Errorf("Expected list fully replaced, got %v", data["gains"])
	}
}

func TestUpdateMismatchedShapeReplacesVerbatim(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	if _, err := s.Update(DocBMC, "Revenue", json.RawMessage(`{"streams": []}`)); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if _, err := s.Update(DocBMC, "Revenue", json.RawMessage(`"subscription"`)); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	data, err := s.Load(DocBMC)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if data["Revenue"] != "subscription" {
		t.Errorf("Expected verbatim replacement on shape mismatch, got %v", data["Revenue"])
	}
}

func TestUpdateMissingKeySetsVerbatim(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	if _, err := s.Update(DocBMC, "Channels", json.RawMessage(`["web", "retail"]`)); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	data, err := s.Load(DocBMC)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	channels, ok := data["Channels"].([]any)
	if !ok || len(channels) != 2 {
		t.Errorf("Expected patch set verbatim at missing key, got %v", data["Channels"])
	}
}

func TestUpdateMalformedPatch(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	if _, err := s.Update(DocBMC, "X", json.RawMessage(`{"before": true}`)); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	_, err := s.Update(DocBMC, "X", json.RawMessage(`{broken`))
	if !shared.IsValidation(err) {
		t.Fatalf("Expected Validation error for malformed patch, got %v", err)
	}

	data, err := s.Load(DocBMC)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	section, ok := data["X"].(map[string]any)
	if !ok || section["before"] != true {
		t.Errorf("Expected document unchanged after malformed patch, got %v", data["X"])
	}
}

func seedSegments(t *testing.T, s *Store) {
	t.Helper()
	_, err := s.Update(DocSegments, "customer_segments", json.RawMessage(`[
		{"id": "seg_01", "name": "Early adopters", "pain_points": ["price"]},
		{"id": "seg_03", "name": "SMBs", "size": "10-50", "pain_points": ["manual work"]}
	]`))
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
}

func TestUpdateByIDMergesMatchingElement(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	seedSegments(t, s)

	updated, err := s.UpdateByID(DocSegments, "customer_segments", "seg_03", json.RawMessage(`{"pain_points": ["slow onboarding"]}`))
	if err != nil {
		t.Fatalf("UpdateByID failed: %v", err)
	}

	if updated["name"] != "SMBs" || updated["size"] != "10-50" {
		t.Errorf("Expected other fields intact, got %v", updated)
	}
	points, ok := updated["pain_points"].([]any)
	if !ok || len(points) != 1 || points[0] != "slow onboarding" {
		t.Errorf("Expected pain_points replaced, got %v", updated["pain_points"])
	}

	// The other element must be untouched.
	data, err := s.Load(DocSegments)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	segs := data["customer_segments"].([]any)
	first := segs[0].(map[string]any)
	if first["id"] != "seg_01" || first["name"] != "Early adopters" {
		t.Errorf("Expected seg_01 untouched, got %v", first)
	}
}

func TestUpdateByIDNotFoundLeavesDocumentUnchanged(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	seedSegments(t, s)

	before, err := s.Load(DocSegments)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	_, err = s.UpdateByID(DocSegments, "customer_segments", "seg_99", json.RawMessage(`{"name": "ghost"}`))
	if !shared.IsNotFound(err) {
		t.Fatalf("Expected NotFound, got %v", err)
	}

	after, err := s.Load(DocSegments)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if fmt.Sprint(before) != fmt.Sprint(after) {
		t.Errorf("Expected document unchanged after not-found update")
	}
}

func TestConcurrentUpdatesAllApplied(t *testing.T) {
	t.Parallel()

	s, dir := newTestStore(t)

	const writers = 16
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func(n int) {
			defer wg.Done()
			patch := json.RawMessage(fmt.Sprintf(`{"writer_%d": %d}`, n, n))
			if _, err := s.Update(DocBMC, "Race", patch); err != nil {
				t.Errorf("Update %d failed: %v", n, err)
			}
		}(i)
	}

	// Concurrent reader: every observed file state must be valid JSON.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		path := filepath.Join(dir, "business_model_canvas.json")
		for i := 0; i < 200; i++ {
			raw, err := os.ReadFile(path)
			if err != nil {
				continue // not yet written
			}
			var v map[string]any
			if err := json.Unmarshal(raw, &v); err != nil {
				t.Errorf("Observed torn write: %v", err)
				return
			}
		}
	}()

	wg.Wait()
	<-readerDone

	data, err := s.Load(DocBMC)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	section, ok := data["Race"].(map[string]any)
	if !ok {
		t.Fatalf("Expected mapping section, got %T", data["Race"])
	}
	if len(section) != writers {
		t.Errorf("Expected all %d patches applied, got %d: %v", writers, len(section), section)
	}
}

func TestUpdatesToDifferentDocumentsAreIndependent(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			patch := json.RawMessage(fmt.Sprintf(`{"v": %d}`, n))
			if _, err := s.Update(DocBMC, "A", patch); err != nil {
				t.Errorf("BMC update failed: %v", err)
			}
		}(i)
		go func(n int) {
			defer wg.Done()
			patch := json.RawMessage(fmt.Sprintf(`{"v": %d}`, n))
			if _, err := s.Update(DocVPC, "B", patch); err != nil {
				t.Errorf("VPC update failed: %v", err)
			}
		}(i)
	}
	wg.Wait()
}

func TestApplyAbandonsOnError(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	if _, err := s.Update(DocBMC, "Keep", json.RawMessage(`"original"`)); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	_, err := s.Apply(DocBMC, func(data map[string]any) error {
		data["Keep"] = "mutated"
		return shared.NotFound("abort")
	})
	if !shared.IsNotFound(err) {
		t.Fatalf("Expected error propagated from fn, got %v", err)
	}

	data, err := s.Load(DocBMC)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if data["Keep"] != "original" {
		t.Errorf("Expected on-disk document unchanged, got %v", data["Keep"])
	}
}

func TestMergeValue(t *testing.T) {
	t.Parallel()

	got := mergeValue(map[string]any{"a": 1, "b": 2}, map[string]any{"b": 3})
	m := got.(map[string]any)
	if m["a"] != 1 || m["b"] != 3 {
		t.Errorf("map merge wrong: %v", m)
	}

	got = mergeValue([]any{"x"}, []any{"y", "z"})
	l := got.([]any)
	if len(l) != 2 || l[0] != "y" {
		t.Errorf("list replace wrong: %v", l)
	}

	if got := mergeValue([]any{"x"}, "scalar"); got != "scalar" {
		t.Errorf("mismatched shape should replace verbatim, got %v", got)
	}
	if got := mergeValue(nil, 42); got != 42 {
		t.Errorf("missing target should take patch verbatim, got %v", got)
	}
}
