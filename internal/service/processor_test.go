package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/timmy/recipe-ingest/internal/dedupe"
	"github.com/timmy/recipe-ingest/internal/domain"
	"github.com/timmy/recipe-ingest/internal/extract"
	"github.com/timmy/recipe-ingest/internal/inbox"
	"github.com/timmy/recipe-ingest/internal/langdetect"
	"github.com/timmy/recipe-ingest/internal/normalize"
	"github.com/timmy/recipe-ingest/internal/repository"
	"github.com/timmy/recipe-ingest/internal/validate"
)

func f64(v float64) *float64 { return &v }

func goodRecipe(title string) *domain.ParsedRecipe {
	return &domain.ParsedRecipe{
		Title:           title,
		Description:     "A rich and flavorful pasta tossed in a fresh tomato sauce with basil.",
		Cuisine:         "Italian",
		Category:        "Main Course",
		Difficulty:      2,
		PrepTimeMinutes: 10,
		CookTimeMinutes: 20,
		Servings:        4,
		Ingredients: []domain.ParsedIngredient{
			{Name: "spaghetti", QuantityValue: f64(400), Unit: strPtr("g")},
			{Name: "tomatoes", QuantityValue: f64(6)},
			{Name: "garlic", QuantityValue: f64(2), Unit: strPtr("cloves"), Notes: strPtr("minced")},
		},
		Instructions: []string{
			"Boil the spaghetti in salted water until al dente.",
			"Heat the oil and cook the tomatoes for ten minutes.",
			"Add the pasta and stir in the torn basil leaves.",
		},
		Tags:             []string{"vegetarian"},
		ConfidenceScores: map[string]float64{"overall": 0.9},
	}
}

func strPtr(s string) *string { return &s }

// fakeParser titles the recipe after the first line of the text.
type fakeParser struct {
	mu     sync.Mutex
	calls  int
	err    error
	mutate func(r *domain.ParsedRecipe)
}

func (f *fakeParser) ParseRecipe(_ context.Context, text, _ string) (*domain.ParsedRecipe, ParseInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	info := ParseInfo{Model: "fake", Attempts: 1}
	if f.err != nil {
		return nil, info, f.err
	}
	title := strings.TrimSpace(strings.SplitN(text, "\n", 2)[0])
	r := goodRecipe(title)
	if f.mutate != nil {
		f.mutate(r)
	}
	return r, info, nil
}

type testEnv struct {
	db      *gorm.DB
	dirs    *inbox.Manager
	parser  *fakeParser
	proc    *Processor
	jobs    *repository.JobRepository
	recipes *repository.RecipeRepository
	reviews *repository.ReviewRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repository.Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	catalog, err := repository.DefaultCatalog()
	if err != nil {
		t.Fatalf("DefaultCatalog() error = %v", err)
	}

	dirs := inbox.NewManager(t.TempDir(), extract.IsSupported)
	if err := dirs.Setup(); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	env := &testEnv{
		db:      db,
		dirs:    dirs,
		parser:  &fakeParser{},
		jobs:    repository.NewJobRepository(db),
		recipes: repository.NewRecipeRepository(db),
		reviews: repository.NewReviewRepository(db),
	}
	env.proc = NewProcessor(ProcessorDeps{
		Extractor:  extract.New(extract.Config{}, nil),
		Language:   langdetect.NewDefault(),
		Parser:     env.parser,
		Validator:  validate.New(0, 0),
		Dedupe:     dedupe.New(repository.NewFingerprintRepository(db), nil, dedupe.Options{}),
		Normalizer: normalize.NewNormalizer(normalize.NewStaticCatalog(catalog)),
		Jobs:       env.jobs,
		Recipes:    env.recipes,
		Reviews:    env.reviews,
		Dirs:       dirs,
	}, ProcessorConfig{MaxRetries: 3})
	return env
}

func (e *testEnv) drop(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dirs.Dir(inbox.AreaInbox), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func (e *testEnv) job(t *testing.T, id string) *domain.IngestionJob {
	t.Helper()
	job, err := e.jobs.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID(%s) error = %v", id, err)
	}
	return job
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestProcessFileCreatesRecipe(t *testing.T) {
	env := newTestEnv(t)
	path := env.drop(t, "pasta.txt", "Tomato Pasta\n400 g spaghetti\n6 tomatoes\n")

	res := env.proc.ProcessFile(context.Background(), path)
	if !res.Success || res.Status != domain.JobStatusCompleted {
		t.Fatalf("ProcessFile() = %+v, want COMPLETED", res)
	}
	if res.RecipeID == nil || res.IsDuplicate || res.NeedsReview {
		t.Fatalf("ProcessFile() = %+v", res)
	}

	recipe, err := env.recipes.GetByID(context.Background(), *res.RecipeID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if len(recipe.Ingredients) != 3 {
		t.Errorf("ingredients = %d, want 3", len(recipe.Ingredients))
	}
	if recipe.CategoryID == nil {
		t.Error("category not mapped")
	}
	if !strings.Contains(strings.Join(recipe.Tags, ","), "italian") {
		t.Errorf("tags = %v, want cuisine appended", recipe.Tags)
	}

	job := env.job(t, res.JobID)
	if job.RecipeID == nil || *job.RecipeID != recipe.ID || job.DuplicateOfRecipeID != nil {
		t.Errorf("job references = %v / %v", job.RecipeID, job.DuplicateOfRecipeID)
	}
	if job.ProcessedAt == nil || job.Meta.Extraction == nil || job.Meta.Extraction.ExtractionMethod != extract.MethodDirect {
		t.Errorf("job meta = %+v", job.Meta.Extraction)
	}
	if exists(path) || !exists(filepath.Join(env.dirs.Dir(inbox.AreaProcessed), "pasta.txt")) {
		t.Error("file was not moved to processed")
	}
}

func TestProcessFileDuplicateAfterFillerWords(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.proc.ProcessFile(ctx, env.drop(t, "a.txt", "Easy Tomato Pasta\nbody"))
	if first.Status != domain.JobStatusCompleted {
		t.Fatalf("first = %+v", first)
	}

	second := env.proc.ProcessFile(ctx, env.drop(t, "b.txt", "Tomato Pasta Easy Recipe\nbody"))
	if second.Status != domain.JobStatusCompletedDuplicate || !second.IsDuplicate {
		t.Fatalf("second = %+v, want COMPLETED_DUPLICATE", second)
	}
	if second.DuplicateOfRecipeID == nil || *second.DuplicateOfRecipeID != *first.RecipeID {
		t.Errorf("duplicate of %v, want %s", second.DuplicateOfRecipeID, *first.RecipeID)
	}
	job := env.job(t, second.JobID)
	if job.RecipeID != nil {
		t.Error("duplicate job must not reference a created recipe")
	}
	if n, _ := env.recipes.Count(ctx); n != 1 {
		t.Errorf("recipes = %d, want 1", n)
	}
}

func TestProcessFileLowConfidenceNeedsReview(t *testing.T) {
	env := newTestEnv(t)
	env.parser.mutate = func(r *domain.ParsedRecipe) { r.ConfidenceScores["overall"] = 0.6 }
	path := env.drop(t, "pasta.txt", "Tomato Pasta\nbody")

	res := env.proc.ProcessFile(context.Background(), path)
	if res.Status != domain.JobStatusNeedsReview || !res.NeedsReview {
		t.Fatalf("ProcessFile() = %+v, want NEEDS_REVIEW", res)
	}
	job := env.job(t, res.JobID)
	if job.Meta.ParsedRecipe == nil || job.Meta.ParsedRecipe.Title != "Tomato Pasta" {
		t.Errorf("snapshot = %+v", job.Meta.ParsedRecipe)
	}
	if job.ConfidenceScore == nil || *job.ConfidenceScore >= 0.75 {
		t.Errorf("confidence = %v", job.ConfidenceScore)
	}
	if !exists(path) {
		t.Error("file must stay in place while awaiting review")
	}

	again := env.proc.ProcessFile(context.Background(), path)
	if !again.Skipped || again.JobID != res.JobID {
		t.Errorf("reprocessing a review file = %+v, want skipped", again)
	}
}

func TestProcessFileSimilarRecipeNeedsReview(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.proc.ProcessFile(ctx, env.drop(t, "a.txt", "Tomato Pasta\nbody"))
	if first.Status != domain.JobStatusCompleted {
		t.Fatalf("first = %+v", first)
	}
	second := env.proc.ProcessFile(ctx, env.drop(t, "b.txt", "Tomato Pastas\nbody"))
	if second.Status != domain.JobStatusNeedsReview {
		t.Fatalf("second = %+v, want NEEDS_REVIEW", second)
	}

	similar, err := env.proc.SimilarRecipes(ctx, second.JobID)
	if err != nil {
		t.Fatalf("SimilarRecipes() error = %v", err)
	}
	if len(similar) != 1 || similar[0].Recipe.ID != *first.RecipeID {
		t.Fatalf("SimilarRecipes() = %+v", similar)
	}
	if similar[0].Score < 0.9 {
		t.Errorf("score = %v, want close to 1", similar[0].Score)
	}
}

func TestProcessFileRetriesThenDLQ(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	path := env.drop(t, "blank.txt", "   \n\t\n")

	wantDelays := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	var jobID string
	for i, want := range wantDelays {
		res := env.proc.ProcessFile(ctx, path)
		if res.Status != domain.JobStatusPending {
			t.Fatalf("attempt %d: status = %s, want PENDING", i+1, res.Status)
		}
		if res.RetryAfter != want {
			t.Errorf("attempt %d: RetryAfter = %v, want %v", i+1, res.RetryAfter, want)
		}
		if jobID != "" && res.JobID != jobID {
			t.Fatalf("attempt %d created a new job", i+1)
		}
		jobID = res.JobID
		if got := env.job(t, jobID).Retries; got != i+1 {
			t.Errorf("attempt %d: retries = %d", i+1, got)
		}
	}

	res := env.proc.ProcessFile(ctx, path)
	if res.Status != domain.JobStatusDLQ || res.Success {
		t.Fatalf("final = %+v, want DLQ", res)
	}
	job := env.job(t, jobID)
	if job.Retries != 3 || job.ErrorMessage == nil || job.Meta.FailedStage != StageExtract {
		t.Errorf("job = retries %d, error %v, stage %q", job.Retries, job.ErrorMessage, job.Meta.FailedStage)
	}
	if !exists(filepath.Join(env.dirs.Dir(inbox.AreaDLQ), "blank.txt")) {
		t.Error("file not in dlq")
	}
	if env.parser.calls != 0 {
		t.Errorf("parser called %d times after extraction failures", env.parser.calls)
	}
}

func TestProcessFileExhaustedRetriesGoStraightToDLQ(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	path := env.drop(t, "blank.txt", " ")

	job := &domain.IngestionJob{ID: "job-3", SourcePath: path, CurrentPath: path, Status: domain.JobStatusPending, Retries: 3}
	if err := env.jobs.Create(ctx, job); err != nil {
		t.Fatal(err)
	}

	res := env.proc.ProcessFile(ctx, path)
	if res.JobID != "job-3" || res.Status != domain.JobStatusDLQ {
		t.Fatalf("ProcessFile() = %+v, want job-3 in DLQ", res)
	}
	if got := env.job(t, "job-3").Retries; got != 3 {
		t.Errorf("retries = %d, want unchanged 3", got)
	}
}

func TestProcessFileUnsupportedIsFatal(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(env.dirs.Dir(inbox.AreaInbox), "photo.bin")
	if err := os.WriteFile(path, []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), 0o644); err != nil {
		t.Fatal(err)
	}

	res := env.proc.ProcessFile(context.Background(), path)
	if res.Status != domain.JobStatusDLQ {
		t.Fatalf("status = %s, want DLQ without retries", res.Status)
	}
	if got := env.job(t, res.JobID).Retries; got != 0 {
		t.Errorf("retries = %d, want 0", got)
	}
}

func TestProcessFileParseErrorIsRetried(t *testing.T) {
	env := newTestEnv(t)
	env.parser.err = fmt.Errorf("%w: missing title", ErrParse)

	res := env.proc.ProcessFile(context.Background(), env.drop(t, "x.txt", "Something\nbody"))
	if res.Status != domain.JobStatusPending || res.ErrorMessage == nil {
		t.Fatalf("ProcessFile() = %+v, want PENDING with error", res)
	}
	if !strings.Contains(*res.ErrorMessage, "parse") {
		t.Errorf("error = %q, want stage name", *res.ErrorMessage)
	}
}

func reviewJob(t *testing.T, env *testEnv) (string, string) {
	t.Helper()
	env.parser.mutate = func(r *domain.ParsedRecipe) { r.ConfidenceScores["overall"] = 0.5 }
	path := env.drop(t, "pasta.txt", "Tomato Pasta\nbody")
	res := env.proc.ProcessFile(context.Background(), path)
	if res.Status != domain.JobStatusNeedsReview {
		t.Fatalf("setup: status = %s", res.Status)
	}
	return res.JobID, path
}

func TestReviewApproved(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	jobID, path := reviewJob(t, env)

	out, err := env.proc.Review(ctx, jobID, domain.ReviewApproved, "looks fine")
	if err != nil {
		t.Fatalf("Review() error = %v", err)
	}
	job := env.job(t, jobID)
	if job.Status != domain.JobStatusCompleted || job.RecipeID == nil || out.Job.RecipeID == nil {
		t.Fatalf("job = %s recipe %v", job.Status, job.RecipeID)
	}
	if job.ReviewedAt == nil || job.ReviewerNotes == nil || *job.ReviewerNotes != "looks fine" {
		t.Errorf("review fields = %v %v", job.ReviewedAt, job.ReviewerNotes)
	}
	if exists(path) {
		t.Error("approved file should move to processed")
	}
	reviews, _ := env.reviews.ListByJob(ctx, jobID)
	if len(reviews) != 1 || reviews[0].Decision != domain.ReviewApproved {
		t.Errorf("reviews = %+v", reviews)
	}
}

// slowRecipes widens the window between claiming a review and finishing it.
type slowRecipes struct {
	RecipeStore
	mu      sync.Mutex
	created int
}

func (s *slowRecipes) CreateWithIngredients(ctx context.Context, recipe *domain.Recipe) error {
	time.Sleep(50 * time.Millisecond)
	s.mu.Lock()
	s.created++
	s.mu.Unlock()
	return s.RecipeStore.CreateWithIngredients(ctx, recipe)
}

func TestReviewConcurrentApprovalsCreateOneRecipe(t *testing.T) {
	env := newTestEnv(t)
	sqlDB, err := env.db.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)
	jobID, _ := reviewJob(t, env)
	recipes := &slowRecipes{RecipeStore: env.recipes}
	env.proc.Recipes = recipes

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.proc.Review(context.Background(), jobID, domain.ReviewApproved, "")
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
		} else if !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("losing Review() error = %v, want ErrInvalidTransition", err)
		}
	}
	if ok != 1 {
		t.Errorf("successful reviews = %d, want 1 (errors %v)", ok, errs)
	}
	if recipes.created != 1 {
		t.Errorf("recipes created = %d, want 1", recipes.created)
	}
	if job := env.job(t, jobID); job.Status != domain.JobStatusCompleted {
		t.Errorf("status = %s, want COMPLETED", job.Status)
	}
}

func TestReviewApprovedPersistFailureReturnsToReview(t *testing.T) {
	env := newTestEnv(t)
	jobID, _ := reviewJob(t, env)
	env.proc.Recipes = failingRecipes{env.recipes}

	if _, err := env.proc.Review(context.Background(), jobID, domain.ReviewApproved, ""); err == nil {
		t.Fatal("Review() error = nil, want persist failure")
	}
	if job := env.job(t, jobID); job.Status != domain.JobStatusNeedsReview {
		t.Errorf("status = %s, want NEEDS_REVIEW", job.Status)
	}
}

type failingRecipes struct{ RecipeStore }

func (failingRecipes) CreateWithIngredients(context.Context, *domain.Recipe) error {
	return errors.New("disk full")
}

func TestReviewRejectedAndRevision(t *testing.T) {
	t.Run("rejected", func(t *testing.T) {
		env := newTestEnv(t)
		jobID, _ := reviewJob(t, env)
		if _, err := env.proc.Review(context.Background(), jobID, domain.ReviewRejected, ""); err != nil {
			t.Fatalf("Review() error = %v", err)
		}
		job := env.job(t, jobID)
		if job.Status != domain.JobStatusFailed || job.ErrorMessage == nil || !strings.Contains(*job.ErrorMessage, "No reason provided") {
			t.Errorf("job = %s %v", job.Status, job.ErrorMessage)
		}
		if env.dirs.AreaOf(job.CurrentPath) != inbox.AreaFailed {
			t.Errorf("file at %s, want failed area", job.CurrentPath)
		}
	})

	t.Run("needs revision", func(t *testing.T) {
		env := newTestEnv(t)
		jobID, _ := reviewJob(t, env)
		if _, err := env.proc.Review(context.Background(), jobID, domain.ReviewNeedsRevision, "fix steps"); err != nil {
			t.Fatalf("Review() error = %v", err)
		}
		job := env.job(t, jobID)
		if job.Status != domain.JobStatusPending || job.Retries != 0 {
			t.Errorf("job = %s retries %d", job.Status, job.Retries)
		}
	})

	t.Run("not in review", func(t *testing.T) {
		env := newTestEnv(t)
		res := env.proc.ProcessFile(context.Background(), env.drop(t, "a.txt", "Tomato Pasta\nbody"))
		_, err := env.proc.Review(context.Background(), res.JobID, domain.ReviewApproved, "")
		if !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("Review() error = %v, want ErrInvalidTransition", err)
		}
	})
}

func TestReviewApprovedWithoutSnapshot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	job := &domain.IngestionJob{ID: "job-x", SourcePath: "/nowhere.txt", CurrentPath: "/nowhere.txt", Status: domain.JobStatusNeedsReview}
	if err := env.jobs.Create(ctx, job); err != nil {
		t.Fatal(err)
	}
	if _, err := env.proc.Review(ctx, "job-x", domain.ReviewApproved, ""); !errors.Is(err, domain.ErrMissingSnapshot) {
		t.Errorf("Review() error = %v, want ErrMissingSnapshot", err)
	}
}

func TestPrepareReprocess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	path := filepath.Join(env.dirs.Dir(inbox.AreaInbox), "photo.bin")
	if err := os.WriteFile(path, []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), 0o644); err != nil {
		t.Fatal(err)
	}
	res := env.proc.ProcessFile(ctx, path)
	if res.Status != domain.JobStatusDLQ {
		t.Fatalf("setup: status = %s", res.Status)
	}

	job, err := env.proc.PrepareReprocess(ctx, res.JobID)
	if err != nil {
		t.Fatalf("PrepareReprocess() error = %v", err)
	}
	if job.Status != domain.JobStatusPending || job.Retries != 0 || job.ErrorMessage != nil {
		t.Errorf("job = %s retries %d error %v", job.Status, job.Retries, job.ErrorMessage)
	}
	if env.dirs.AreaOf(job.CurrentPath) != inbox.AreaInbox || !exists(job.CurrentPath) {
		t.Errorf("file at %s, want back in inbox", job.CurrentPath)
	}

	if _, err := env.proc.PrepareReprocess(ctx, res.JobID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("second PrepareReprocess() error = %v, want ErrInvalidTransition", err)
	}

	// A caller that read the job before the first reset still sees it in the DLQ.
	stale := *job
	stale.Status = domain.JobStatusDLQ
	env.proc.Jobs = staleJobs{JobStore: env.jobs, job: &stale}
	if _, err := env.proc.PrepareReprocess(ctx, res.JobID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("PrepareReprocess() on stale read error = %v, want ErrInvalidTransition", err)
	}
	if got := env.job(t, res.JobID); got.Status != domain.JobStatusPending {
		t.Errorf("status = %s, want PENDING", got.Status)
	}
}

// staleJobs answers GetByID with a copy read earlier.
type staleJobs struct {
	JobStore
	job *domain.IngestionJob
}

func (s staleJobs) GetByID(context.Context, string) (*domain.IngestionJob, error) {
	j := *s.job
	return &j, nil
}

func TestRecoverStale(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	stale := env.drop(t, "stale.txt", "Tomato Pasta")
	busy := env.drop(t, "busy.txt", "Tomato Pasta")
	for id, path := range map[string]string{"stale": stale, "busy": busy} {
		job := &domain.IngestionJob{ID: id, SourcePath: path, CurrentPath: path, Status: domain.JobStatusProcessing}
		if err := env.jobs.Create(ctx, job); err != nil {
			t.Fatal(err)
		}
	}
	env.db.Model(&domain.IngestionJob{}).Where("1 = 1").UpdateColumn("updated_at", time.Now().Add(-time.Hour))

	recovered, err := env.proc.RecoverStale(ctx, time.Now().Add(-15*time.Minute), func(p string) bool { return p == busy })
	if err != nil {
		t.Fatalf("RecoverStale() error = %v", err)
	}
	if len(recovered) != 1 || recovered[0].Job.ID != "stale" {
		t.Fatalf("recovered = %+v", recovered)
	}
	if got := env.job(t, "stale"); got.Status != domain.JobStatusPending || got.Retries != 1 {
		t.Errorf("stale job = %s retries %d", got.Status, got.Retries)
	}
	if got := env.job(t, "busy"); got.Status != domain.JobStatusProcessing {
		t.Errorf("busy job = %s, want untouched", got.Status)
	}
}

func TestStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.proc.ProcessFile(ctx, env.drop(t, "a.txt", "Tomato Pasta\nbody"))
	env.proc.ProcessFile(ctx, env.drop(t, "b.txt", "Easy Tomato Pasta\nbody"))
	env.proc.ProcessFile(ctx, env.drop(t, "c.txt", " "))

	stats, err := env.proc.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalJobs != 3 || stats.CompletedJobs != 1 || stats.DuplicateJobs != 1 || stats.PendingJobs != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.SuccessRate < 0.66 || stats.SuccessRate > 0.67 {
		t.Errorf("SuccessRate = %v, want 2/3", stats.SuccessRate)
	}
	if stats.AverageProcessingTimeSeconds == nil {
		t.Error("average processing time missing")
	}
}
