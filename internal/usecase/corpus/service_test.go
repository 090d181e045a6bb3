package corpus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/kailas-cloud/trialfit/internal/domain"
	"github.com/kailas-cloud/trialfit/internal/domain/feature"
	"github.com/kailas-cloud/trialfit/internal/domain/trial"
	"github.com/kailas-cloud/trialfit/internal/metrics"
	"github.com/kailas-cloud/trialfit/internal/transport/local"
)

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{}, errEmbed
}

// shortEmbedder returns vectors of the wrong size for a 64-dim index.
type shortEmbedder struct{}

func (shortEmbedder) Embed(context.Context, string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{Embedding: []float32{1, 0, 0}}, nil
}

func newService(t *testing.T, saver Saver) *Service {
	t.Helper()
	svc, err := New(local.NewHashingEmbedder(64), 64, saver, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return svc
}

func TestNew_RejectsBadDimension(t *testing.T) {
	_, err := New(local.NewHashingEmbedder(8), 0, nil, zap.NewNop())
	if !errors.Is(err, domain.ErrIndex) {
		t.Errorf("expected ErrIndex, got %v", err)
	}
}

func TestLoad_BuildsIndexAndCatalog(t *testing.T) {
	svc := newService(t, nil)
	src := &sliceSource{trials: []trial.Historical{
		historical("NCT001", "NSCLC", "Pembrolizumab", 0.8),
		historical("NCT002", "Melanoma", "Nivolumab", 1.1),
		historical("NCT001", "NSCLC", "Pembrolizumab", 0.9),
		{ID: "NCT003", Record: feature.NewUnknown()},
	}}

	stats, err := svc.Load(context.Background(), src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Trials != 2 || stats.Skipped != 1 || stats.Dimension != 64 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.Coverage[trial.EnrollmentRate] != 2 || stats.Coverage[trial.DurationRisk] != 0 {
		t.Errorf("coverage = %v", stats.Coverage)
	}
	got, ok := svc.Catalog().Get("NCT001")
	if !ok || got.Outcomes[trial.EnrollmentRate] != 0.9 {
		t.Errorf("later duplicate must win: %+v", got)
	}
	if svc.Index().Contains("NCT003") {
		t.Error("trial without known fields must not be indexed")
	}
	if v := testutil.ToFloat64(metrics.IndexTrials); v != 2 {
		t.Errorf("index gauge = %v", v)
	}
}

func TestLoad_SourceError(t *testing.T) {
	svc := newService(t, nil)
	if _, err := svc.Load(context.Background(), &sliceSource{err: errors.New("no file")}); err == nil {
		t.Fatal("expected error")
	}
}

func TestRebuild_FailureKeepsPreviousCorpus(t *testing.T) {
	svc := newService(t, nil)
	if err := svc.Rebuild(context.Background(), []trial.Historical{historical("NCT001", "NSCLC", "Pembrolizumab", 1)}); err != nil {
		t.Fatal(err)
	}

	svc.embed = failingEmbedder{}
	err := svc.Rebuild(context.Background(), []trial.Historical{historical("NCT009", "Asthma", "Dupilumab", 2)})
	if !errors.Is(err, errEmbed) {
		t.Fatalf("expected embed error, got %v", err)
	}
	if !svc.Index().Contains("NCT001") || svc.Catalog().Len() != 1 {
		t.Error("failed rebuild must keep the previous corpus")
	}

	if err := svc.Rebuild(context.Background(), []trial.Historical{{ID: " "}}); !errors.Is(err, domain.ErrIndex) {
		t.Errorf("expected ErrIndex for empty id, got %v", err)
	}
}

func TestRebuild_IndexErrorRestoresCatalog(t *testing.T) {
	svc := newService(t, nil)
	if err := svc.Rebuild(context.Background(), []trial.Historical{historical("NCT001", "NSCLC", "Pembrolizumab", 1)}); err != nil {
		t.Fatal(err)
	}
	before, _ := svc.Index().Vector("NCT001")

	svc.embed = shortEmbedder{}
	err := svc.Rebuild(context.Background(), []trial.Historical{historical("NCT001", "Asthma", "Dupilumab", 42)})
	if !errors.Is(err, domain.ErrIndex) {
		t.Fatalf("expected ErrIndex, got %v", err)
	}

	got, ok := svc.Trial("NCT001")
	if !ok || got.Record.Disease.Term != "NSCLC" || got.Outcomes[trial.EnrollmentRate] != 1 {
		t.Errorf("catalog must keep the previous snapshot, got %+v", got)
	}
	after, _ := svc.Index().Vector("NCT001")
	if len(after) != len(before) {
		t.Errorf("index vector changed: %d -> %d dims", len(before), len(after))
	}
}

func TestRebuild_RemovesDroppedTrials(t *testing.T) {
	svc := newService(t, nil)
	_ = svc.Rebuild(context.Background(), []trial.Historical{
		historical("NCT001", "NSCLC", "Pembrolizumab", 1),
		historical("NCT002", "Melanoma", "Nivolumab", 1),
	})
	if err := svc.Rebuild(context.Background(), []trial.Historical{historical("NCT002", "Melanoma", "Nivolumab", 1)}); err != nil {
		t.Fatal(err)
	}
	if _, ok := svc.Catalog().Get("NCT001"); ok || svc.Index().Contains("NCT001") {
		t.Error("NCT001 must be gone after rebuild")
	}
}

func TestAdd_PersistsAndIndexes(t *testing.T) {
	saver := &memSaver{}
	svc := newService(t, saver)

	if err := svc.Add(context.Background(), historical("NCT010", "NSCLC", "Pembrolizumab", 0.7)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(saver.saved) != 1 || !svc.Index().Contains("NCT010") {
		t.Errorf("saved=%d indexed=%v", len(saver.saved), svc.Index().Contains("NCT010"))
	}
	if _, ok := svc.Catalog().Get("NCT010"); !ok {
		t.Error("catalog missing NCT010")
	}
}

func TestAdd_WrongDimensionKeepsCatalog(t *testing.T) {
	saver := &memSaver{}
	svc := newService(t, saver)
	if err := svc.Add(context.Background(), historical("NCT001", "NSCLC", "Pembrolizumab", 1)); err != nil {
		t.Fatal(err)
	}

	svc.embed = shortEmbedder{}
	err := svc.Add(context.Background(), historical("NCT001", "Asthma", "Dupilumab", 42))
	if !errors.Is(err, domain.ErrIndex) {
		t.Fatalf("expected ErrIndex, got %v", err)
	}
	if got, _ := svc.Trial("NCT001"); got.Record.Disease.Term != "NSCLC" {
		t.Errorf("catalog replaced by rejected trial: %+v", got.Record.Disease)
	}
	if len(saver.saved) != 1 {
		t.Errorf("rejected trial must not be persisted, saved=%d", len(saver.saved))
	}
}

func TestAdd_ConcurrentSameIDStaysConsistent(t *testing.T) {
	svc := newService(t, nil)
	emb := local.NewHashingEmbedder(64)

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr := historical("NCT001", fmt.Sprintf("Disease %d", i), fmt.Sprintf("Drug %d", i), float64(i))
			if err := svc.Add(context.Background(), tr); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	got, ok := svc.Trial("NCT001")
	if !ok {
		t.Fatal("NCT001 missing")
	}
	res, err := emb.Embed(context.Background(), got.Record.Text())
	if err != nil {
		t.Fatal(err)
	}
	hits, err := svc.Index().Query(res.Embedding, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Similarity < 0.999 {
		t.Errorf("index vector does not match catalog snapshot %q: %+v", got.Record.Disease.Term, hits)
	}
}

func TestAdd_Errors(t *testing.T) {
	saver := &memSaver{err: errors.New("disk full")}
	svc := newService(t, saver)

	if err := svc.Add(context.Background(), trial.Historical{ID: "NCT1", Record: feature.NewUnknown()}); !errors.Is(err, ErrEmptyRecord) {
		t.Errorf("expected ErrEmptyRecord, got %v", err)
	}
	if err := svc.Add(context.Background(), historical("", "NSCLC", "x", 1)); !errors.Is(err, domain.ErrIndex) {
		t.Errorf("expected ErrIndex, got %v", err)
	}
	if err := svc.Add(context.Background(), historical("NCT2", "NSCLC", "x", 1)); err == nil {
		t.Error("expected saver error")
	}
	if svc.Index().Contains("NCT2") {
		t.Error("trial must not be indexed when saving failed")
	}
}
