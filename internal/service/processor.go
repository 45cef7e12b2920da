package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/timmy/recipe-ingest/internal/dedupe"
	"github.com/timmy/recipe-ingest/internal/domain"
	"github.com/timmy/recipe-ingest/internal/extract"
	"github.com/timmy/recipe-ingest/internal/inbox"
	"github.com/timmy/recipe-ingest/internal/logger"
	"github.com/timmy/recipe-ingest/internal/repository"
	"github.com/timmy/recipe-ingest/internal/validate"
)

// TextExtractor reads text out of a source document.
type TextExtractor interface {
	FileInfo(path string) (extract.FileInfo, error)
	ExtractText(ctx context.Context, path string) (string, string, error)
}

// LanguageDetector guesses the language of extracted text.
type LanguageDetector interface {
	Detect(text string) (string, float64)
	NeedsTranslation(text, target string) bool
}

// Parser turns text into a structured recipe.
type Parser interface {
	ParseRecipe(ctx context.Context, text, lang string) (*domain.ParsedRecipe, ParseInfo, error)
}

// Validator scores a parsed recipe.
type Validator interface {
	Validate(r *domain.ParsedRecipe) validate.Result
}

// DuplicateChecker finds existing recipes that match a parsed one.
type DuplicateChecker interface {
	CheckDuplicates(ctx context.Context, r *domain.ParsedRecipe) (dedupe.Check, error)
	CreateFingerprint(ctx context.Context, recipeID string, r *domain.ParsedRecipe) error
}

// IngredientNormalizer maps parsed ingredients and categories onto the catalog.
type IngredientNormalizer interface {
	ProcessIngredients(ctx context.Context, ingredients []domain.ParsedIngredient) []domain.RecipeIngredient
	CategoryID(category string) *string
}

// JobStore persists ingestion jobs.
type JobStore interface {
	Create(ctx context.Context, job *domain.IngestionJob) error
	Save(ctx context.Context, job *domain.IngestionJob) error
	GetByID(ctx context.Context, id string) (*domain.IngestionJob, error)
	UpdateStatusIf(ctx context.Context, id string, from []domain.JobStatus, to domain.JobStatus) error
	FindActiveByPath(ctx context.Context, path string) (*domain.IngestionJob, error)
	List(ctx context.Context, filter repository.JobFilter) ([]domain.IngestionJob, int64, error)
	ListStale(ctx context.Context, before time.Time) ([]domain.IngestionJob, error)
	CountByStatus(ctx context.Context) (map[domain.JobStatus]int64, error)
	AvgProcessingSeconds(ctx context.Context) (*float64, error)
}

// RecipeStore persists recipes.
type RecipeStore interface {
	CreateWithIngredients(ctx context.Context, recipe *domain.Recipe) error
	GetByIDs(ctx context.Context, ids []string) ([]domain.Recipe, error)
}

// ReviewStore records reviewer decisions.
type ReviewStore interface {
	Create(ctx context.Context, review *domain.IngestionReview) error
}

// FileArchiver copies finished source files to long-term storage.
type FileArchiver interface {
	ArchiveFile(ctx context.Context, area, jobID, localPath string) (string, error)
}

// ProcessorDeps are the collaborators of a Processor. Archiver may be nil.
type ProcessorDeps struct {
	Extractor  TextExtractor
	Language   LanguageDetector
	Parser     Parser
	Validator  Validator
	Dedupe     DuplicateChecker
	Normalizer IngredientNormalizer
	Jobs       JobStore
	Recipes    RecipeStore
	Reviews    ReviewStore
	Dirs       *inbox.Manager
	Archiver   FileArchiver
}

// ProcessorConfig holds the routing and retry policy.
type ProcessorConfig struct {
	MaxRetries       int
	RetryDelays      []time.Duration
	ReviewThreshold  float64
	MaxQualityIssues int
	TargetLanguage   string
}

// Processor runs one file through the pipeline and owns the job state machine.
type Processor struct {
	ProcessorDeps
	cfg ProcessorConfig
}

// NewProcessor creates a Processor, filling unset policy values with defaults.
func NewProcessor(deps ProcessorDeps, cfg ProcessorConfig) *Processor {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if len(cfg.RetryDelays) == 0 {
		cfg.RetryDelays = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	}
	if cfg.ReviewThreshold <= 0 {
		cfg.ReviewThreshold = validate.ReviewThreshold
	}
	if cfg.MaxQualityIssues <= 0 {
		cfg.MaxQualityIssues = validate.MaxQualityIssues
	}
	if cfg.TargetLanguage == "" {
		cfg.TargetLanguage = "en"
	}
	return &Processor{ProcessorDeps: deps, cfg: cfg}
}

type extracted struct {
	text   string
	method string
}

type detected struct {
	lang       string
	confidence float64
	translate  bool
}

type parsed struct {
	recipe *domain.ParsedRecipe
	info   ParseInfo
}

// ProcessFile runs the file at path through extraction, language detection,
// parsing, validation and duplicate detection, then routes the job:
// exact duplicate, manual review, or a new recipe. Stage failures go through
// the retry policy. A file whose job is already processing or awaiting
// review is skipped.
func (p *Processor) ProcessFile(ctx context.Context, path string) domain.ProcessingResult {
	ctx = logger.SetFilePath(ctx, path)
	start := time.Now()

	job, skip, err := p.acquireJob(ctx, path)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to prepare ingestion job")
		return failedResult("", err)
	}
	if skip {
		logger.CtxInfo(ctx, "Skipping %s: job %s is %s", filepath.Base(path), job.ID, job.Status)
		return domain.ProcessingResult{JobID: job.ID, Status: job.Status, Skipped: true, NeedsReview: job.Status == domain.JobStatusNeedsReview}
	}
	ctx = logger.SetJobID(ctx, job.ID)

	job.Transition(domain.JobStatusProcessing, "")
	job.SetError("")
	if err := p.Jobs.Save(ctx, job); err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to mark job processing")
		return failedResult(job.ID, err)
	}

	ext := runStage(ctx, StageExtract, func(ctx context.Context) (extracted, error) {
		text, method, err := p.Extractor.ExtractText(ctx, path)
		return extracted{text: text, method: method}, err
	})
	if !ext.OK() {
		return p.handleFailure(ctx, job, ext.Failure)
	}

	lang := runStage(ctx, StageLanguage, func(context.Context) (detected, error) {
		code, conf := p.Language.Detect(ext.Value.text)
		return detected{
			lang:       code,
			confidence: conf,
			translate:  p.Language.NeedsTranslation(ext.Value.text, p.cfg.TargetLanguage),
		}, nil
	})

	prs := runStage(ctx, StageParse, func(ctx context.Context) (parsed, error) {
		recipe, info, err := p.Parser.ParseRecipe(ctx, ext.Value.text, lang.Value.lang)
		return parsed{recipe: recipe, info: info}, err
	})
	if !prs.OK() {
		return p.handleFailure(ctx, job, prs.Failure)
	}
	recipe := prs.Value.recipe
	if recipe.DetectedLanguage == nil && lang.Value.lang != "" {
		code := lang.Value.lang
		recipe.DetectedLanguage = &code
	}

	job.Meta.Extraction = &domain.ParseMetadata{
		ExtractionMethod:      ext.Value.method,
		DetectedLanguage:      recipe.DetectedLanguage,
		LanguageConfidence:    lang.Value.confidence,
		NeedsTranslation:      lang.Value.translate,
		Model:                 prs.Value.info.Model,
		TokenUsage:            prs.Value.info.TokenUsage,
		Attempts:              prs.Value.info.Attempts,
		ProcessingTimeSeconds: time.Since(start).Seconds(),
	}

	val := runStage(ctx, StageValidate, func(context.Context) (validate.Result, error) {
		return p.Validator.Validate(recipe), nil
	})

	dup := runStage(ctx, StageDedupe, func(ctx context.Context) (dedupe.Check, error) {
		return p.Dedupe.CheckDuplicates(ctx, recipe)
	})
	if !dup.OK() {
		return p.handleFailure(ctx, job, dup.Failure)
	}

	confidence := val.Value.Confidence
	job.ConfidenceScore = &confidence

	switch {
	case dup.Value.ExactDuplicateID != nil:
		return p.completeDuplicate(ctx, job, *dup.Value.ExactDuplicateID)
	case p.needsReview(val.Value, dup.Value):
		return p.sendToReview(ctx, job, recipe, val.Value, dup.Value.SimilarIDs)
	}

	saved := runStage(ctx, StagePersist, func(ctx context.Context) (string, error) {
		return p.persistRecipe(ctx, job, recipe)
	})
	if !saved.OK() {
		return p.handleFailure(ctx, job, saved.Failure)
	}
	return p.complete(ctx, job, saved.Value, "")
}

// acquireJob returns the job to run for path. An existing PENDING job is
// reused so its retry count carries over; a PROCESSING or NEEDS_REVIEW job
// means the file is already taken and skip is true.
func (p *Processor) acquireJob(ctx context.Context, path string) (*domain.IngestionJob, bool, error) {
	existing, err := p.Jobs.FindActiveByPath(ctx, path)
	if err != nil {
		return nil, false, fmt.Errorf("find job for %s: %w", path, err)
	}
	if existing != nil {
		if existing.Status != domain.JobStatusPending {
			return existing, true, nil
		}
		existing.CurrentPath = path
		return existing, false, nil
	}

	info, err := p.Extractor.FileInfo(path)
	if err != nil {
		// The extract stage reports the real problem; keep what we know.
		info = extract.FileInfo{Filename: filepath.Base(path)}
	}
	job := &domain.IngestionJob{
		ID:               uuid.New().String(),
		SourcePath:       path,
		CurrentPath:      path,
		OriginalFilename: info.Filename,
		FileSizeBytes:    info.SizeBytes,
		MimeType:         info.MimeType,
		Status:           domain.JobStatusPending,
	}
	if err := p.Jobs.Create(ctx, job); err != nil {
		return nil, false, fmt.Errorf("create job: %w", err)
	}
	logger.CtxInfo(ctx, "Created ingestion job %s for %s", job.ID, info.Filename)
	return job, false, nil
}

func (p *Processor) needsReview(v validate.Result, d dedupe.Check) bool {
	return !v.Valid ||
		v.Confidence < p.cfg.ReviewThreshold ||
		len(d.SimilarIDs) > 0 ||
		len(v.Issues) > p.cfg.MaxQualityIssues
}

func (p *Processor) completeDuplicate(ctx context.Context, job *domain.IngestionJob, recipeID string) domain.ProcessingResult {
	job.Transition(domain.JobStatusCompletedDuplicate, "exact duplicate")
	job.DuplicateOfRecipeID = &recipeID
	p.finish(ctx, job, inbox.AreaProcessed)
	if err := p.Jobs.Save(context.WithoutCancel(ctx), job); err != nil {
		return failedResult(job.ID, err)
	}

	logger.CtxInfo(ctx, "Duplicate of recipe %s", recipeID)
	return domain.ProcessingResult{
		Success:             true,
		JobID:               job.ID,
		Status:              job.Status,
		ConfidenceScore:     job.ConfidenceScore,
		IsDuplicate:         true,
		DuplicateOfRecipeID: &recipeID,
	}
}

// sendToReview parks the job with everything a reviewer needs. The file
// stays where it is until a decision is made.
func (p *Processor) sendToReview(ctx context.Context, job *domain.IngestionJob, recipe *domain.ParsedRecipe, v validate.Result, similar []string) domain.ProcessingResult {
	job.Transition(domain.JobStatusNeedsReview, "")
	job.Meta.Issues = v.Issues
	job.Meta.SimilarRecipeIDs = similar
	job.Meta.ParsedRecipe = recipe
	if err := p.Jobs.Save(context.WithoutCancel(ctx), job); err != nil {
		return failedResult(job.ID, err)
	}

	logger.With(logger.Fields{
		logger.FieldConfidence: v.Confidence,
		"issues":               len(v.Issues),
		"similar":              len(similar),
	}).Info(ctx, "Recipe sent to manual review: %s", recipe.Title)
	return domain.ProcessingResult{
		Success:         true,
		JobID:           job.ID,
		Status:          job.Status,
		ConfidenceScore: job.ConfidenceScore,
		NeedsReview:     true,
	}
}

// persistRecipe writes the recipe with normalized ingredients and then its
// fingerprint. A fingerprint failure is logged, not returned: the recipe is
// already durable and retrying would store it twice.
func (p *Processor) persistRecipe(ctx context.Context, job *domain.IngestionJob, pr *domain.ParsedRecipe) (string, error) {
	recipe := &domain.Recipe{
		Title:            pr.Title,
		Description:      pr.Description,
		Cuisine:          pr.Cuisine,
		CategoryID:       p.Normalizer.CategoryID(pr.Category),
		DifficultyLevel:  pr.Difficulty,
		PrepTimeMinutes:  pr.PrepTimeMinutes,
		CookTimeMinutes:  pr.CookTimeMinutes,
		Servings:         pr.Servings,
		Instructions:     strings.Join(pr.Instructions, "\n"),
		Tags:             recipeTags(pr),
		Nutrition:        pr.Nutrition,
		DetectedLanguage: pr.DetectedLanguage,
		WasTranslated:    pr.WasTranslated,
		SourceJobID:      job.ID,
		Ingredients:      p.Normalizer.ProcessIngredients(ctx, pr.Ingredients),
	}
	if err := p.Recipes.CreateWithIngredients(ctx, recipe); err != nil {
		return "", fmt.Errorf("create recipe: %w", err)
	}

	if err := p.Dedupe.CreateFingerprint(ctx, recipe.ID, pr); err != nil {
		logger.FromContext(ctx).WithError(err).Errorf("Failed to create fingerprint for recipe %s", recipe.ID)
	}
	logger.FromContext(ctx).WithField(logger.FieldRecipeID, recipe.ID).Infof("Created recipe: %s", recipe.Title)
	return recipe.ID, nil
}

// recipeTags returns the recipe tags with the cuisine appended when known.
func recipeTags(pr *domain.ParsedRecipe) domain.StringArray {
	tags := append(domain.StringArray{}, pr.Tags...)
	if domain.IsUnknown(pr.Cuisine) {
		return tags
	}
	cuisine := strings.ToLower(strings.TrimSpace(pr.Cuisine))
	for _, t := range tags {
		if t == cuisine {
			return tags
		}
	}
	return append(tags, cuisine)
}

func (p *Processor) complete(ctx context.Context, job *domain.IngestionJob, recipeID, note string) domain.ProcessingResult {
	job.Transition(domain.JobStatusCompleted, note)
	job.RecipeID = &recipeID
	job.SetError("")
	p.finish(ctx, job, inbox.AreaProcessed)
	if err := p.Jobs.Save(context.WithoutCancel(ctx), job); err != nil {
		return failedResult(job.ID, err)
	}
	return domain.ProcessingResult{
		Success:         true,
		JobID:           job.ID,
		Status:          job.Status,
		RecipeID:        &recipeID,
		ConfidenceScore: job.ConfidenceScore,
	}
}

// finish stamps processed_at and moves the file into area. Move and archive
// errors are logged; the job outcome stands either way.
func (p *Processor) finish(ctx context.Context, job *domain.IngestionJob, area inbox.Area) {
	now := time.Now().UTC()
	job.ProcessedAt = &now

	src := job.CurrentPath
	if src == "" {
		src = job.SourcePath
	}
	if _, err := os.Stat(src); err != nil {
		logger.CtxWarn(ctx, "Source file gone, not moving to %s: %s", area, src)
		return
	}
	dest, err := p.Dirs.Move(ctx, src, area)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Errorf("Failed to move %s to %s", src, area)
		return
	}
	job.CurrentPath = dest

	if p.Archiver != nil && (area == inbox.AreaProcessed || area == inbox.AreaDLQ) {
		if _, err := p.Archiver.ArchiveFile(context.WithoutCancel(ctx), string(area), job.ID, dest); err != nil {
			logger.FromContext(ctx).WithError(err).Warnf("Failed to archive %s", dest)
		}
	}
}

// handleFailure applies the retry policy to a failed stage: the job records
// FAILED, then goes back to PENDING with one more retry, or to the DLQ when
// retries are exhausted or the failure is fatal.
func (p *Processor) handleFailure(ctx context.Context, job *domain.IngestionJob, f *StageFailure) domain.ProcessingResult {
	if ctx.Err() != nil && errors.Is(f.Err, context.Canceled) {
		// Shutdown: leave the job PROCESSING for the stale sweep.
		logger.CtxWarn(ctx, "Processing cancelled during %s", f.Stage)
		return failedResult(job.ID, f)
	}
	ctx = context.WithoutCancel(ctx)

	msg := f.Error()
	job.SetError(msg)
	job.Meta.FailedStage = f.Stage
	job.Transition(domain.JobStatusFailed, f.Kind.String())

	res := domain.ProcessingResult{JobID: job.ID, ErrorMessage: &msg}
	if f.Kind == Retryable && job.Retries < p.cfg.MaxRetries {
		job.Retries++
		job.Transition(domain.JobStatusPending, fmt.Sprintf("retry %d of %d", job.Retries, p.cfg.MaxRetries))
		res.RetryAfter = p.retryDelay(job.Retries)
		logger.With(logger.Fields{
			logger.FieldAttempt: job.Retries,
			"retry_after":       res.RetryAfter.String(),
		}).Warn(ctx, "Job will be retried: %s", msg)
	} else {
		job.Transition(domain.JobStatusDLQ, "")
		p.finish(ctx, job, inbox.AreaDLQ)
		logger.With(logger.Fields{logger.FieldAttempt: job.Retries}).
			Error(ctx, "Job moved to DLQ after %d retries: %s", job.Retries, msg)
	}
	res.Status = job.Status

	if err := p.Jobs.Save(ctx, job); err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to save failed job")
	}
	return res
}

// retryDelay returns the delay before retry n (1-based).
func (p *Processor) retryDelay(n int) time.Duration {
	i := n - 1
	if i >= len(p.cfg.RetryDelays) {
		i = len(p.cfg.RetryDelays) - 1
	}
	if i < 0 {
		i = 0
	}
	return p.cfg.RetryDelays[i]
}

func failedResult(jobID string, err error) domain.ProcessingResult {
	msg := err.Error()
	return domain.ProcessingResult{JobID: jobID, ErrorMessage: &msg}
}

const stageStale = "stale"

// StaleJob is a PROCESSING job recovered by RecoverStale.
type StaleJob struct {
	Job    *domain.IngestionJob
	Result domain.ProcessingResult
}

// RecoverStale treats every PROCESSING job last updated before the cutoff
// as a retryable failure. Jobs for which skip returns true are left alone.
func (p *Processor) RecoverStale(ctx context.Context, before time.Time, skip func(path string) bool) ([]StaleJob, error) {
	jobs, err := p.Jobs.ListStale(ctx, before)
	if err != nil {
		return nil, fmt.Errorf("list stale jobs: %w", err)
	}
	var out []StaleJob
	for i := range jobs {
		job := &jobs[i]
		if skip != nil && skip(job.CurrentPath) {
			continue
		}
		jctx := logger.SetJobID(ctx, job.ID)
		f := &StageFailure{
			Stage: stageStale,
			Kind:  Retryable,
			Err:   fmt.Errorf("job stuck in PROCESSING since %s", job.UpdatedAt.Format(time.RFC3339)),
		}
		out = append(out, StaleJob{Job: job, Result: p.handleFailure(jctx, job, f)})
	}
	return out, nil
}

// Stats summarizes the job table.
func (p *Processor) Stats(ctx context.Context) (domain.IngestionStats, error) {
	counts, err := p.Jobs.CountByStatus(ctx)
	if err != nil {
		return domain.IngestionStats{}, fmt.Errorf("count jobs: %w", err)
	}
	avg, err := p.Jobs.AvgProcessingSeconds(ctx)
	if err != nil {
		return domain.IngestionStats{}, fmt.Errorf("average processing time: %w", err)
	}
	return domain.NewIngestionStats(counts, avg), nil
}
