package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/timmy/recipe-ingest/internal/config"
	"github.com/timmy/recipe-ingest/internal/domain"
	"github.com/timmy/recipe-ingest/internal/logger"
	"github.com/timmy/recipe-ingest/internal/prompts"
)

// ErrParse is returned when the completion service answers with something
// that is not a recipe matching the response schema.
var ErrParse = errors.New("invalid recipe response")

// CompletionError is a non-2xx answer from the completion service.
type CompletionError struct {
	StatusCode int
	Message    string
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("completion API returned HTTP %d: %s", e.StatusCode, e.Message)
}

// Transient reports whether the same request may succeed later.
func (e *CompletionError) Transient() bool {
	return e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= 500
}

// ParseInfo describes one parse call.
type ParseInfo struct {
	Model      string
	TokenUsage map[string]int
	Attempts   int
}

// RecipeParser turns recipe text into a ParsedRecipe through an
// OpenAI-compatible chat completion endpoint.
type RecipeParser struct {
	client      *resty.Client
	endpoint    string
	model       string
	maxTokens   int
	temperature float64
	maxRetries  int
	retryBase   time.Duration
	gate        *TokenPool
	schema      *jsonschema.Schema
}

// NewRecipeParser creates a parser from the AI configuration.
// Parameters:
//   - cfg: model, endpoint, credentials, retry and concurrency settings.
//
// Returns:
//   - *RecipeParser: ready-to-use parser.
//   - error: non-nil if the response schema fails to compile.
func NewRecipeParser(cfg *config.AIConfig) (*RecipeParser, error) {
	schema, err := compileRecipeSchema()
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client.SetTimeout(timeout)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	retryBase := cfg.RetryBaseDelay
	if retryBase <= 0 {
		retryBase = time.Second
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2000
	}

	return &RecipeParser{
		client:      client,
		endpoint:    strings.TrimRight(baseURL, "/") + "/chat/completions",
		model:       cfg.Model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		maxRetries:  cfg.MaxRetries,
		retryBase:   retryBase,
		gate:        NewTokenPool(cfg.MaxConcurrency),
		schema:      schema,
	}, nil
}

// GetModel returns the model name being used.
func (p *RecipeParser) GetModel() string {
	return p.model
}

// Gate exposes the concurrency gate shared by all parse calls.
func (p *RecipeParser) Gate() *TokenPool {
	return p.gate
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat responseFormat `json:"response_format"`
	Temperature    float64        `json:"temperature"`
	MaxTokens      int            `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type errorEnvelope struct {
	Error *apiError `json:"error"`
}

// ParseRecipe sends text to the completion service and decodes the answer.
// At most the gate's size calls are in flight at once; transient failures
// are retried with a doubling delay.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - text: extracted recipe text.
//   - lang: detected language code, or "" if unknown.
//
// Returns:
//   - *domain.ParsedRecipe: normalized recipe.
//   - ParseInfo: model, token usage and attempt count.
//   - error: ErrParse for malformed answers, *CompletionError for API errors.
func (p *RecipeParser) ParseRecipe(ctx context.Context, text, lang string) (*domain.ParsedRecipe, ParseInfo, error) {
	info := ParseInfo{Model: p.model}

	if err := p.gate.Acquire(ctx); err != nil {
		return nil, info, err
	}
	defer p.gate.Release()

	req := chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: prompts.RecipeSystemPrompt},
			{Role: "user", Content: prompts.RecipeUserPrompt(text, lang)},
		},
		ResponseFormat: responseFormat{Type: "json_object"},
		Temperature:    p.temperature,
		MaxTokens:      p.maxTokens,
	}

	var (
		resp *chatResponse
		err  error
	)
	for attempt := 0; ; attempt++ {
		info.Attempts = attempt + 1
		resp, err = p.complete(ctx, &req)
		if err == nil {
			break
		}
		if attempt >= p.maxRetries || !isTransient(err) {
			return nil, info, err
		}
		wait := p.retryBase * time.Duration(1<<attempt)
		logger.With(logger.Fields{logger.FieldAttempt: attempt + 1}).
			Warn(ctx, "Completion call failed, retrying in %s: %v", wait, err)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, info, ctx.Err()
		}
	}

	if resp.Usage != nil {
		info.TokenUsage = map[string]int{
			"prompt_tokens":     resp.Usage.PromptTokens,
			"completion_tokens": resp.Usage.CompletionTokens,
			"total_tokens":      resp.Usage.TotalTokens,
		}
	}

	recipe, err := p.decodeRecipe(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, info, err
	}
	logger.CtxInfo(ctx, "Parsed recipe: %s", recipe.Title)
	return recipe, info, nil
}

func (p *RecipeParser) complete(ctx context.Context, req *chatRequest) (*chatResponse, error) {
	var result chatResponse
	var failure errorEnvelope
	httpResp, err := p.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		SetError(&failure).
		Post(p.endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to call completion API: %w", err)
	}

	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		msg := string(httpResp.Body())
		if failure.Error != nil {
			msg = failure.Error.Message
		}
		return nil, &CompletionError{StatusCode: httpResp.StatusCode(), Message: msg}
	}
	if result.Error != nil {
		return nil, &CompletionError{StatusCode: httpResp.StatusCode(), Message: result.Error.Message}
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in response", ErrParse)
	}
	return &result, nil
}

func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ce *CompletionError
	if errors.As(err, &ce) {
		return ce.Transient()
	}
	// Transport errors and empty answers.
	return true
}

// decodeRecipe validates content against the response schema before
// decoding it, so missing fields are rejected rather than zero-valued.
func (p *RecipeParser) decodeRecipe(content string) (*domain.ParsedRecipe, error) {
	raw := []byte(stripCodeFence(content))

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: not JSON: %v", ErrParse, err)
	}
	if err := p.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	var recipe domain.ParsedRecipe
	if err := json.Unmarshal(raw, &recipe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	recipe.Normalize()
	return &recipe, nil
}

// stripCodeFence removes a markdown code fence some models wrap JSON in.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

func nullable(t string) []string {
	return []string{t, "null"}
}

// recipeSchema is the response contract given to the model in the system prompt.
// Unknown keys are allowed and dropped on decode.
func recipeSchema() map[string]any {
	nutrient := map[string]any{"type": nullable("number"), "minimum": 0}
	ingredient := map[string]any{
		"type":     "object",
		"required": []string{"name"},
		"properties": map[string]any{
			"name":           map[string]any{"type": "string", "minLength": 1},
			"quantity_value": map[string]any{"type": nullable("number"), "minimum": 0},
			"unit":           map[string]any{"type": nullable("string")},
			"notes":          map[string]any{"type": nullable("string")},
		},
	}

	return map[string]any{
		"type": "object",
		"required": []string{
			"title", "description", "cuisine", "category", "difficulty",
			"prep_time_minutes", "cook_time_minutes", "servings",
			"ingredients", "instructions",
		},
		"properties": map[string]any{
			"title":             map[string]any{"type": "string", "minLength": 1},
			"description":       map[string]any{"type": "string"},
			"cuisine":           map[string]any{"type": "string"},
			"category":          map[string]any{"type": "string"},
			"difficulty":        map[string]any{"type": "integer"},
			"prep_time_minutes": map[string]any{"type": "integer"},
			"cook_time_minutes": map[string]any{"type": "integer"},
			"servings":          map[string]any{"type": "integer"},
			"ingredients":       map[string]any{"type": "array", "minItems": 1, "items": ingredient},
			"instructions": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items":    map[string]any{"type": "string", "minLength": 1},
			},
			"tags": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"nutrition": map[string]any{
				"type": nullable("object"),
				"properties": map[string]any{
					"calories_per_serving": nutrient,
					"protein_g":            nutrient,
					"carbs_g":              nutrient,
					"fat_g":                nutrient,
					"sugar_g":              nutrient,
					"fiber_g":              nutrient,
					"sodium_mg":            nutrient,
				},
			},
			"detected_language": map[string]any{"type": nullable("string")},
			"was_translated":    map[string]any{"type": "boolean"},
			"confidence_scores": map[string]any{
				"type":                 "object",
				"additionalProperties": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
			},
		},
	}
}

func compileRecipeSchema() (*jsonschema.Schema, error) {
	b, err := json.Marshal(recipeSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal recipe schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("recipe.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add recipe schema: %w", err)
	}
	schema, err := compiler.Compile("recipe.json")
	if err != nil {
		return nil, fmt.Errorf("compile recipe schema: %w", err)
	}
	return schema, nil
}
