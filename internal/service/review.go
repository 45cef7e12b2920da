package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/timmy/recipe-ingest/internal/dedupe"
	"github.com/timmy/recipe-ingest/internal/domain"
	"github.com/timmy/recipe-ingest/internal/inbox"
	"github.com/timmy/recipe-ingest/internal/logger"
)

// ErrNotApprovable is returned when an approved snapshot still has critical issues.
var ErrNotApprovable = errors.New("recipe has critical validation issues")

// ReviewOutcome is the result of a reviewer decision.
type ReviewOutcome struct {
	Job      *domain.IngestionJob
	Decision domain.ReviewDecision
	Message  string
}

// Review applies a reviewer decision to a NEEDS_REVIEW job.
//   - APPROVED persists the parsed snapshot exactly like an automatic success.
//   - REJECTED fails the job and moves the file to the failed area.
//   - NEEDS_REVISION returns the job to PENDING with retries reset; the file
//     must still exist so it can be processed again.
func (p *Processor) Review(ctx context.Context, jobID string, decision domain.ReviewDecision, notes string) (*ReviewOutcome, error) {
	if !decision.Valid() {
		return nil, fmt.Errorf("unknown review decision %q", decision)
	}
	job, err := p.Jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.JobStatusNeedsReview {
		return nil, fmt.Errorf("%w: job %s is %s, not %s", domain.ErrInvalidTransition, job.ID, job.Status, domain.JobStatusNeedsReview)
	}
	ctx = logger.SetJobID(ctx, job.ID)

	now := time.Now().UTC()
	job.ReviewedAt = &now
	if notes != "" {
		job.ReviewerNotes = &notes
	}

	out := &ReviewOutcome{Job: job, Decision: decision}
	switch decision {
	case domain.ReviewApproved:
		if job.Meta.ParsedRecipe == nil {
			return nil, domain.ErrMissingSnapshot
		}
		if v := p.Validator.Validate(job.Meta.ParsedRecipe); v.Critical {
			return nil, fmt.Errorf("%w: %s", ErrNotApprovable, strings.Join(v.Issues, "; "))
		}
	case domain.ReviewNeedsRevision:
		if _, err := os.Stat(job.CurrentPath); err != nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrSourceMissing, job.CurrentPath)
		}
	}

	// Only one decision may win for a job.
	if err := p.Jobs.UpdateStatusIf(ctx, job.ID, []domain.JobStatus{domain.JobStatusNeedsReview}, domain.JobStatusProcessing); err != nil {
		return nil, err
	}

	switch decision {
	case domain.ReviewApproved:
		recipeID, err := p.persistRecipe(ctx, job, job.Meta.ParsedRecipe)
		if err != nil {
			p.releaseReview(ctx, job.ID)
			return nil, err
		}
		res := p.complete(ctx, job, recipeID, "approved by reviewer")
		if res.ErrorMessage != nil {
			return nil, fmt.Errorf("save approved job: %s", *res.ErrorMessage)
		}
		out.Message = "Recipe approved and created"

	case domain.ReviewRejected:
		reason := notes
		if reason == "" {
			reason = "No reason provided"
		}
		job.Transition(domain.JobStatusFailed, "rejected by reviewer")
		job.SetError("Rejected by reviewer: " + reason)
		p.finish(ctx, job, inbox.AreaFailed)
		if err := p.Jobs.Save(ctx, job); err != nil {
			p.releaseReview(ctx, job.ID)
			return nil, err
		}
		out.Message = "Recipe rejected"

	case domain.ReviewNeedsRevision:
		job.Transition(domain.JobStatusPending, "sent back for revision")
		job.Retries = 0
		job.SetError("")
		if err := p.Jobs.Save(ctx, job); err != nil {
			p.releaseReview(ctx, job.ID)
			return nil, err
		}
		out.Message = "Recipe sent back for revision"
	}

	if err := p.Reviews.Create(ctx, &domain.IngestionReview{
		ID:       uuid.New().String(),
		JobID:    job.ID,
		Decision: decision,
		Notes:    notes,
	}); err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to record review")
	}
	logger.CtxInfo(ctx, "Review %s applied: %s", decision, out.Message)
	return out, nil
}

// releaseReview hands a claimed job back to the review queue after a failed decision.
func (p *Processor) releaseReview(ctx context.Context, jobID string) {
	err := p.Jobs.UpdateStatusIf(context.WithoutCancel(ctx), jobID,
		[]domain.JobStatus{domain.JobStatusProcessing}, domain.JobStatusNeedsReview)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to return job to review")
	}
}

// PrepareReprocess resets a FAILED or DLQ job so it runs again from scratch.
// The file is moved back into the inbox; the returned path is where it now is.
func (p *Processor) PrepareReprocess(ctx context.Context, jobID string) (*domain.IngestionJob, error) {
	job, err := p.Jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.JobStatusFailed && job.Status != domain.JobStatusDLQ {
		return nil, fmt.Errorf("%w: only FAILED or DLQ jobs can be reprocessed, job %s is %s", domain.ErrInvalidTransition, job.ID, job.Status)
	}
	if _, err := os.Stat(job.CurrentPath); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrSourceMissing, job.CurrentPath)
	}
	ctx = logger.SetJobID(ctx, job.ID)

	prev := job.Status
	if err := p.Jobs.UpdateStatusIf(ctx, job.ID, []domain.JobStatus{prev}, domain.JobStatusPending); err != nil {
		return nil, err
	}
	if p.Dirs.AreaOf(job.CurrentPath) != inbox.AreaInbox {
		dest, err := p.Dirs.Move(ctx, job.CurrentPath, inbox.AreaInbox)
		if err != nil {
			if rerr := p.Jobs.UpdateStatusIf(context.WithoutCancel(ctx), job.ID,
				[]domain.JobStatus{domain.JobStatusPending}, prev); rerr != nil {
				logger.FromContext(ctx).WithError(rerr).Error("Failed to restore job status")
			}
			return nil, err
		}
		job.CurrentPath = dest
	}
	job.Transition(domain.JobStatusPending, "reprocess requested")
	job.Retries = 0
	job.ProcessedAt = nil
	job.SetError("")
	if err := p.Jobs.Save(ctx, job); err != nil {
		return nil, err
	}
	logger.CtxInfo(ctx, "Job reset for reprocessing: %s", job.CurrentPath)
	return job, nil
}

// SimilarRecipe is an existing recipe that resembles a job's parsed recipe.
type SimilarRecipe struct {
	Recipe domain.Recipe `json:"recipe"`
	Score  float64       `json:"similarity_score"`
}

// SimilarRecipes scores the recipes a review job was flagged against,
// most similar first.
func (p *Processor) SimilarRecipes(ctx context.Context, jobID string) ([]SimilarRecipe, error) {
	job, err := p.Jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Meta.ParsedRecipe == nil {
		return nil, domain.ErrMissingSnapshot
	}
	if len(job.Meta.SimilarRecipeIDs) == 0 {
		return []SimilarRecipe{}, nil
	}

	recipes, err := p.Recipes.GetByIDs(ctx, job.Meta.SimilarRecipeIDs)
	if err != nil {
		return nil, fmt.Errorf("load similar recipes: %w", err)
	}
	base := dedupe.FromParsed(job.Meta.ParsedRecipe)
	out := make([]SimilarRecipe, 0, len(recipes))
	for i := range recipes {
		out = append(out, SimilarRecipe{
			Recipe: recipes[i],
			Score:  dedupe.CalculateSimilarityScore(base, dedupe.FromRecipe(&recipes[i])),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}
