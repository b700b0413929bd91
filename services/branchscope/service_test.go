// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package branchscope

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/branchscope/services/branchscope/cache"
	"github.com/AleutianAI/branchscope/services/branchscope/domain"
	"github.com/AleutianAI/branchscope/services/branchscope/metrics"
	"github.com/AleutianAI/branchscope/services/branchscope/repository"
)

// =============================================================================
// Fixtures
// =============================================================================

func makeDeps(t *testing.T, typ domain.DependencyType, n int) []domain.Dependency {
	t.Helper()
	deps := make([]domain.Dependency, 0, n)
	for i := 0; i < n; i++ {
		d, err := domain.NewDependency(typ, i+1, fmt.Sprintf("%s Branch #%d", typ, i),
			domain.Details{"class_name": domain.StringDetail("Branch")})
		require.NoError(t, err)
		deps = append(deps, d)
	}
	return deps
}

func makeFile(t *testing.T, rel string, deps []domain.Dependency) domain.FileAnalysis {
	t.Helper()
	f, err := domain.NewFileAnalysis("/project/"+rel, rel, deps)
	require.NoError(t, err)
	return f
}

func makeResult(t *testing.T, files ...domain.FileAnalysis) *domain.AnalysisResult {
	t.Helper()
	meta, err := domain.NewAnalysisMetadata("2024-01-15 10:30:00", 2.5, "/project",
		[]string{"src"}, []string{}, len(files))
	require.NoError(t, err)
	r, err := domain.NewAnalysisResult(files, meta)
	require.NoError(t, err)
	return r
}

// threeFileResult has A with 5 instantiations, B with 2 static calls and
// C with nothing.
func threeFileResult(t *testing.T) *domain.AnalysisResult {
	t.Helper()
	return makeResult(t,
		makeFile(t, "src/A.php", makeDeps(t, domain.DependencyInstantiation, 5)),
		makeFile(t, "src/B.php", makeDeps(t, domain.DependencyStaticCall, 2)),
		makeFile(t, "src/C.php", nil),
	)
}

func newDiskService(t *testing.T, result *domain.AnalysisResult) (*Service, *repository.JSONRepository, *metrics.Memory) {
	t.Helper()
	c, err := cache.NewLRU(100)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "branch_dependencies.json")
	repo := repository.NewJSONRepository(path, c)
	if result != nil {
		require.NoError(t, repository.NewJSONRepository(path, nil).Save(context.Background(), result))
	}
	mem := metrics.NewMemory()
	svc, err := NewService(repo, c, nil, mem)
	require.NoError(t, err)
	return svc, repo, mem
}

// fakeRepo serves results in sequence; the last one repeats.
type fakeRepo struct {
	mu            sync.Mutex
	results       []*domain.AnalysisResult
	err           error
	loads         int
	invalidations int
	modified      time.Time
	hasModified   bool
}

func (f *fakeRepo) Load(context.Context) (*domain.AnalysisResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	if f.err != nil {
		return nil, f.err
	}
	i := min(f.loads-1, len(f.results)-1)
	return f.results[i], nil
}

func (f *fakeRepo) Save(context.Context, *domain.AnalysisResult) error { return nil }
func (f *fakeRepo) Exists() bool                                      { return true }

func (f *fakeRepo) LastModified() (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.modified, f.hasModified
}

func (f *fakeRepo) InvalidateCache() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidations++
}

func (f *fakeRepo) loadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads
}

// =============================================================================
// Tests
// =============================================================================

func TestNewService_RequiresRepository(t *testing.T) {
	_, err := NewService(nil, nil, nil, nil)
	assert.ErrorIs(t, err, ErrNilRepository)
}

func TestService_EndToEndThreeFiles(t *testing.T) {
	svc, _, _ := newDiskService(t, threeFileResult(t))
	ctx := context.Background()

	stats, err := svc.GetSummaryStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalFiles)
	assert.Equal(t, 2, stats.FilesWithDependencies)
	assert.Equal(t, 7, stats.TotalDependencies)
	assert.Equal(t, map[string]int{"instantiation": 5, "static_call": 2}, stats.DependencyTypeCounts)

	hotspots, err := svc.FindDependencyHotspots(ctx, 1)
	require.NoError(t, err)
	require.Len(t, hotspots, 1)
	assert.Equal(t, "src/A.php", hotspots[0].RelativePath)

	deps, err := svc.GetDependenciesByType(ctx, "static_call")
	require.NoError(t, err)
	require.Len(t, deps, 2)
	for _, d := range deps {
		assert.Equal(t, "src/B.php", d.File)
		assert.Equal(t, domain.DependencyStaticCall, d.Type)
	}

	fa, err := svc.GetFileAnalysis(ctx, "src/C.php")
	require.NoError(t, err)
	require.NotNil(t, fa)
	assert.Equal(t, 0, fa.TotalDependencies())

	byAbs, err := svc.GetFileAnalysis(ctx, "/project/src/B.php")
	require.NoError(t, err)
	require.NotNil(t, byAbs)
	assert.Equal(t, "src/B.php", byAbs.RelativePath)

	missing, err := svc.GetFileAnalysis(ctx, "src/D.php")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestService_MissingDocumentIsEmpty(t *testing.T) {
	svc, _, _ := newDiskService(t, nil)

	stats, err := svc.GetSummaryStatistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalFiles)
	assert.Equal(t, 0, stats.TotalDependencies)
	assert.Empty(t, stats.DependencyTypeCounts)
}

func TestService_ValidationRejectsBeforeLoading(t *testing.T) {
	repo := &fakeRepo{results: []*domain.AnalysisResult{threeFileResult(t)}}
	mem := metrics.NewMemory()
	svc, err := NewService(repo, nil, nil, mem)
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		name    string
		call    func() error
		field   string
		message string
	}{
		{"limit zero", func() error { _, err := svc.FindDependencyHotspots(ctx, 0); return err }, "limit", "Invalid limit parameter: 0"},
		{"limit too large", func() error { _, err := svc.FindDependencyHotspots(ctx, 1001); return err }, "limit", "Invalid limit parameter: 1001"},
		{"unknown type", func() error { _, err := svc.GetDependenciesByType(ctx, "bogus"); return err }, "dep_type", "Invalid dependency type: bogus"},
		{"long query", func() error {
			_, err := svc.SearchDependencies(ctx, string(make([]byte, 101)))
			return err
		}, "q", ""},
		{"blank path", func() error { _, err := svc.GetFileAnalysis(ctx, "  "); return err }, "file_path", "Invalid file path:   "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			assert.False(t, errors.Is(err, ErrAnalysis))

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			if tt.message != "" {
				assert.Equal(t, tt.message, ve.Message)
			}
		})
	}
	assert.Equal(t, 0, repo.loadCount())
	assert.Empty(t, mem.Summary().Errors)
}

func TestService_LongQueryMadeOfSpaces(t *testing.T) {
	svc, _, _ := newDiskService(t, threeFileResult(t))
	padded := fmt.Sprintf("%150s", "A.php")

	matches, err := svc.SearchDependencies(context.Background(), padded)
	require.NoError(t, err, "length is measured after trimming")
	assert.Empty(t, matches, "the padding takes part in matching")
}

func TestService_Search(t *testing.T) {
	svc, _, _ := newDiskService(t, threeFileResult(t))
	ctx := context.Background()

	matches, err := svc.SearchDependencies(ctx, "static_call")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "src/B.php", matches[0].RelativePath)

	matches, err = svc.SearchDependencies(ctx, "src")
	require.NoError(t, err)
	assert.Len(t, matches, 2, "files without dependencies never match")

	matches, err = svc.SearchDependencies(ctx, "s")
	require.NoError(t, err)
	assert.Empty(t, matches)

	matches, err = svc.SearchDependencies(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestService_CachesDerivedViews(t *testing.T) {
	svc, _, mem := newDiskService(t, threeFileResult(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.GetSummaryStatistics(ctx)
		require.NoError(t, err)
		_, err = svc.FindDependencyHotspots(ctx, 2)
		require.NoError(t, err)
		_, err = svc.GetDependenciesByType(ctx, "instantiation")
		require.NoError(t, err)
	}

	for _, key := range []string{"summary_statistics", "hotspots_2", "dependencies_by_type_instantiation"} {
		hits, misses := mem.CacheCounts(key)
		assert.Equal(t, 2, hits, key)
		assert.Equal(t, 1, misses, key)
	}

	summary := mem.Summary()
	assert.Equal(t, 3, summary.Operations[OpGetSummaryStatistics].Count)
	assert.Equal(t, 3, summary.Operations[OpFindDependencyHotspots].Count)
	assert.Equal(t, 3, summary.Operations[OpGetDependenciesByType].Count)
}

func TestService_ReloadsAfterSave(t *testing.T) {
	svc, repo, _ := newDiskService(t, threeFileResult(t))
	ctx := context.Background()

	stats, err := svc.GetSummaryStatistics(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, stats.TotalFiles)
	hotspots, err := svc.FindDependencyHotspots(ctx, 5)
	require.NoError(t, err)
	require.Len(t, hotspots, 2)

	updated := makeResult(t,
		makeFile(t, "src/Z.php", makeDeps(t, domain.DependencyTypeHint, 9)),
	)
	require.NoError(t, repository.NewJSONRepository(repo.Path(), nil).Save(ctx, updated))
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(repo.Path(), future, future))

	stats, err = svc.GetSummaryStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalFiles)
	assert.Equal(t, 9, stats.TotalDependencies)

	hotspots, err = svc.FindDependencyHotspots(ctx, 5)
	require.NoError(t, err)
	require.Len(t, hotspots, 1, "derived views are dropped on reload")
	assert.Equal(t, "src/Z.php", hotspots[0].RelativePath)
}

// rewriteDocument saves result over the service's document and moves its
// mtime forward so the next request sees a change.
func rewriteDocument(t *testing.T, repo *repository.JSONRepository, result *domain.AnalysisResult) {
	t.Helper()
	require.NoError(t, repository.NewJSONRepository(repo.Path(), nil).Save(context.Background(), result))
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(repo.Path(), future, future))
}

func TestService_ViewFromReplacedSnapshotIsNotServed(t *testing.T) {
	svc, repo, _ := newDiskService(t, threeFileResult(t))
	ctx := context.Background()

	old, err := svc.resolve(ctx)
	require.NoError(t, err)

	rewriteDocument(t, repo, makeResult(t,
		makeFile(t, "src/Z.php", makeDeps(t, domain.DependencyTypeHint, 9)),
	))
	_, err = svc.FindDependencyHotspots(ctx, 5)
	require.NoError(t, err)

	// A request that resolved the old snapshot finishes after the reload.
	stale := cachedView(svc, old, summaryCacheKey, SummaryTTL, func() domain.SummaryStatistics {
		return domain.NewSummaryStatistics(old)
	})
	require.Equal(t, 3, stale.TotalFiles)

	stats, err := svc.GetSummaryStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalFiles)
	assert.Equal(t, 9, stats.TotalDependencies)
}

func TestService_EntryTaggedWithOldSnapshotIsAMiss(t *testing.T) {
	svc, repo, mem := newDiskService(t, threeFileResult(t))
	ctx := context.Background()

	old, err := svc.resolve(ctx)
	require.NoError(t, err)
	rewriteDocument(t, repo, makeResult(t, makeFile(t, "src/Z.php", makeDeps(t, domain.DependencyStaticCall, 4))))
	_, err = svc.resolve(ctx)
	require.NoError(t, err)

	// The store passed its snapshot check just before the reload swapped it.
	svc.cache.Set(hotspotsCacheKey+"5", view{snapshot: old, value: []domain.FileAnalysis{}}, ViewTTL)

	hotspots, err := svc.FindDependencyHotspots(ctx, 5)
	require.NoError(t, err)
	require.Len(t, hotspots, 1)
	assert.Equal(t, "src/Z.php", hotspots[0].RelativePath)
	assert.Equal(t, 1, mem.Summary().Cache.TotalMisses)
}

func TestService_ReloadDuringViewComputation(t *testing.T) {
	svc, repo, _ := newDiskService(t, threeFileResult(t))
	ctx := context.Background()

	old, err := svc.resolve(ctx)
	require.NoError(t, err)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan []domain.TypedDependency)
	go func() {
		done <- cachedView(svc, old, dependenciesCacheKey+"instantiation", ViewTTL, func() []domain.TypedDependency {
			close(started)
			<-release
			return old.DependenciesOfType(domain.DependencyInstantiation)
		})
	}()

	<-started
	rewriteDocument(t, repo, makeResult(t,
		makeFile(t, "src/N.php", makeDeps(t, domain.DependencyInstantiation, 2)),
	))
	_, err = svc.resolve(ctx)
	require.NoError(t, err)
	close(release)
	require.Len(t, <-done, 5, "the in-flight request still answers from its own snapshot")

	deps, err := svc.GetDependenciesByType(ctx, "instantiation")
	require.NoError(t, err)
	require.Len(t, deps, 2)
	for _, d := range deps {
		assert.Equal(t, "src/N.php", d.File)
	}
}

func TestService_StalenessRules(t *testing.T) {
	first := threeFileResult(t)
	second := makeResult(t, makeFile(t, "src/only.php", nil))
	ctx := context.Background()

	t.Run("no modification time keeps snapshot", func(t *testing.T) {
		repo := &fakeRepo{results: []*domain.AnalysisResult{first, second}}
		svc, err := NewService(repo, nil, nil, nil)
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			stats, err := svc.GetSummaryStatistics(ctx)
			require.NoError(t, err)
			assert.Equal(t, 3, stats.TotalFiles)
		}
		assert.Equal(t, 1, repo.loadCount())
	})

	t.Run("newer time reloads and invalidates", func(t *testing.T) {
		base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		repo := &fakeRepo{results: []*domain.AnalysisResult{first, second}, modified: base, hasModified: true}
		svc, err := NewService(repo, nil, nil, nil)
		require.NoError(t, err)

		stats, err := svc.GetSummaryStatistics(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, stats.TotalFiles)

		stats, err = svc.GetSummaryStatistics(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, stats.TotalFiles, "same time is not stale")

		repo.mu.Lock()
		repo.modified = base.Add(time.Second)
		repo.mu.Unlock()

		stats, err = svc.GetSummaryStatistics(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.TotalFiles)
		assert.Equal(t, 2, repo.loadCount())
		assert.Equal(t, 1, repo.invalidations)
	})

	t.Run("document appearing after empty load", func(t *testing.T) {
		repo := &fakeRepo{results: []*domain.AnalysisResult{domain.EmptyAnalysisResult(), first}}
		svc, err := NewService(repo, nil, nil, nil)
		require.NoError(t, err)

		stats, err := svc.GetSummaryStatistics(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, stats.TotalFiles)

		repo.mu.Lock()
		repo.modified, repo.hasModified = time.Now(), true
		repo.mu.Unlock()

		stats, err = svc.GetSummaryStatistics(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, stats.TotalFiles)
	})
}

func TestService_RefreshReloads(t *testing.T) {
	repo := &fakeRepo{results: []*domain.AnalysisResult{threeFileResult(t), makeResult(t)}}
	c, err := cache.NewLRU(10)
	require.NoError(t, err)
	c.Set("unrelated", 1, time.Minute)
	svc, err := NewService(repo, c, nil, nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, ok := svc.LoadedAt()
	assert.False(t, ok)

	stats, err := svc.GetSummaryStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalFiles)

	require.NoError(t, svc.RefreshAnalysis(ctx))
	assert.False(t, c.Exists("unrelated"), "refresh clears the whole cache")
	assert.Equal(t, 2, repo.loadCount(), "refresh reloads immediately")

	stats, err = svc.GetSummaryStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalFiles)

	_, ok = svc.LoadedAt()
	assert.True(t, ok)
}

func TestService_RepositoryFailure(t *testing.T) {
	svc, repo, mem := newDiskService(t, nil)
	require.NoError(t, os.WriteFile(repo.Path(), []byte("{not json"), 0o644))
	ctx := context.Background()

	_, err := svc.GetSummaryStatistics(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAnalysis)
	assert.ErrorIs(t, err, ErrRepository)
	assert.False(t, errors.Is(err, ErrValidation))

	var ae *AnalysisError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, OpGetSummaryStatistics, ae.Op)
	assert.Contains(t, err.Error(), "Failed to get summary statistics: ")

	var re *repository.RepositoryError
	assert.ErrorAs(t, err, &re)

	err = svc.RefreshAnalysis(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to refresh analysis: ")

	errs := mem.Summary().Errors
	assert.Equal(t, 1, errs[OpGetSummaryStatistics]["RepositoryError"])
	assert.Equal(t, 1, errs[OpRefreshAnalysis]["RepositoryError"])
}

func TestService_CancelledContext(t *testing.T) {
	repo := &fakeRepo{results: []*domain.AnalysisResult{threeFileResult(t)}}
	svc, err := NewService(repo, nil, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = svc.GetSummaryStatistics(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, ErrAnalysis)
	assert.Equal(t, 0, repo.loadCount())
}

func TestService_ConcurrentReaders(t *testing.T) {
	svc, _, _ := newDiskService(t, threeFileResult(t))
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			switch i % 3 {
			case 0:
				_, err = svc.GetSummaryStatistics(ctx)
			case 1:
				_, err = svc.FindDependencyHotspots(ctx, 1+i%5)
			default:
				_, err = svc.SearchDependencies(ctx, "Branch")
			}
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "RepositoryError", errorKind(&repository.RepositoryError{Op: "load", Err: errors.New("x")}))
	assert.Equal(t, "CacheError", errorKind(fmt.Errorf("wrap: %w", ErrCache)))
	assert.Equal(t, "ValidationError", errorKind(&ValidationError{Message: "bad"}))
	assert.Equal(t, "error", errorKind(errors.New("other")))
}
