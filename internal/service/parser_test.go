package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/timmy/recipe-ingest/internal/config"
)

const recipeJSON = `{
  "title": "Tomato Pasta",
  "description": "A rich pasta with a fresh tomato sauce.",
  "cuisine": "Italian",
  "category": "Main Course",
  "difficulty": 2,
  "prep_time_minutes": 10,
  "cook_time_minutes": 20,
  "servings": 4,
  "ingredients": [
    {"name": "spaghetti", "quantity_value": 400, "unit": "g", "notes": null},
    {"name": "tomatoes", "quantity_value": 6, "unit": null, "notes": "chopped"}
  ],
  "instructions": ["Boil the spaghetti until al dente.", "Add the tomatoes and stir."],
  "tags": ["vegetarian"],
  "nutrition": null,
  "confidence_scores": {"overall": 0.9}
}`

func chatBody(content string) map[string]any {
	return map[string]any{
		"choices": []any{map[string]any{"message": map[string]any{"content": content}}},
		"usage":   map[string]any{"prompt_tokens": 120, "completion_tokens": 80, "total_tokens": 200},
	}
}

// completionServer answers each call with the next status from statuses,
// then keeps returning the last one. A 200 carries content.
func completionServer(t *testing.T, content string, statuses ...int) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.ResponseFormat.Type != "json_object" || len(req.Messages) != 2 {
			t.Errorf("request = %+v", req)
		}

		n := int(atomic.AddInt32(&calls, 1))
		status := http.StatusOK
		if len(statuses) > 0 {
			status = statuses[min(n, len(statuses))-1]
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "upstream says no", "type": "server_error"}})
			return
		}
		json.NewEncoder(w).Encode(chatBody(content))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestParser(t *testing.T, baseURL string) *RecipeParser {
	t.Helper()
	p, err := NewRecipeParser(&config.AIConfig{
		Model:          "gpt-test",
		APIKey:         "sk-test",
		BaseURL:        baseURL + "/v1/",
		Timeout:        5 * time.Second,
		MaxRetries:     2,
		RetryBaseDelay: time.Millisecond,
		MaxConcurrency: 1,
	})
	if err != nil {
		t.Fatalf("NewRecipeParser() error = %v", err)
	}
	return p
}

func TestParseRecipe(t *testing.T) {
	srv, calls := completionServer(t, "```json\n"+recipeJSON+"\n```")
	p := newTestParser(t, srv.URL)

	recipe, info, err := p.ParseRecipe(context.Background(), "Tomato Pasta...", "en")
	if err != nil {
		t.Fatalf("ParseRecipe() error = %v", err)
	}
	if recipe.Title != "Tomato Pasta" || len(recipe.Ingredients) != 2 || len(recipe.Instructions) != 2 {
		t.Errorf("recipe = %+v", recipe)
	}
	if recipe.Ingredients[0].Unit == nil || *recipe.Ingredients[0].Unit != "g" {
		t.Errorf("first ingredient unit = %v", recipe.Ingredients[0].Unit)
	}
	if info.Model != "gpt-test" || info.Attempts != 1 || info.TokenUsage["total_tokens"] != 200 {
		t.Errorf("info = %+v", info)
	}
	if *calls != 1 {
		t.Errorf("calls = %d", *calls)
	}
	if p.Gate().InUse() != 0 {
		t.Error("gate token not released")
	}
}

func TestParseRecipeSchemaViolations(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "Sorry, I cannot help with that."},
		{"missing ingredients", `{"title":"Soup","description":"","cuisine":"unknown","category":"Soup","difficulty":1,"prep_time_minutes":5,"cook_time_minutes":5,"servings":2,"instructions":["Heat it all up."]}`},
		{"confidence out of range", `{"title":"Soup","description":"","cuisine":"unknown","category":"Soup","difficulty":1,"prep_time_minutes":5,"cook_time_minutes":5,"servings":2,"ingredients":[{"name":"water"}],"instructions":["Heat it all up."],"confidence_scores":{"overall":1.5}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, calls := completionServer(t, tt.content)
			_, _, err := newTestParser(t, srv.URL).ParseRecipe(context.Background(), "text", "")
			if !errors.Is(err, ErrParse) {
				t.Fatalf("ParseRecipe() error = %v, want ErrParse", err)
			}
			if *calls != 1 {
				t.Errorf("calls = %d, malformed answers must not be retried", *calls)
			}
		})
	}
}

func TestParseRecipeIgnoresExtraKeys(t *testing.T) {
	content := strings.Replace(recipeJSON, `"servings": 4,`, `"servings": 4, "total_time_minutes": 30,`, 1)
	content = strings.Replace(content, `"notes": "chopped"}`, `"notes": "chopped", "original_text": "6 tomatoes, chopped"}`, 1)
	content = strings.Replace(content, `"nutrition": null`, `"nutrition": {"calories_per_serving": 450, "cholesterol_mg": 20}`, 1)
	srv, _ := completionServer(t, content)

	recipe, _, err := newTestParser(t, srv.URL).ParseRecipe(context.Background(), "text", "en")
	if err != nil {
		t.Fatalf("ParseRecipe() error = %v", err)
	}
	if recipe.Title != "Tomato Pasta" || len(recipe.Ingredients) != 2 {
		t.Errorf("recipe = %+v", recipe)
	}
	if recipe.Nutrition == nil {
		t.Error("nutrition dropped along with the unknown key")
	}
}

func TestParseRecipeRetriesTransientErrors(t *testing.T) {
	srv, calls := completionServer(t, recipeJSON, http.StatusInternalServerError, http.StatusOK)
	_, info, err := newTestParser(t, srv.URL).ParseRecipe(context.Background(), "text", "en")
	if err != nil {
		t.Fatalf("ParseRecipe() error = %v", err)
	}
	if info.Attempts != 2 || *calls != 2 {
		t.Errorf("attempts = %d calls = %d, want 2", info.Attempts, *calls)
	}
}

func TestParseRecipeGivesUpAfterMaxRetries(t *testing.T) {
	srv, calls := completionServer(t, recipeJSON, http.StatusTooManyRequests)
	_, info, err := newTestParser(t, srv.URL).ParseRecipe(context.Background(), "text", "en")

	var ce *CompletionError
	if !errors.As(err, &ce) || ce.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("ParseRecipe() error = %v, want 429 CompletionError", err)
	}
	if ce.Message != "upstream says no" {
		t.Errorf("message = %q", ce.Message)
	}
	if info.Attempts != 3 || *calls != 3 {
		t.Errorf("attempts = %d calls = %d, want 3", info.Attempts, *calls)
	}
}

func TestParseRecipeClientErrorNotRetried(t *testing.T) {
	srv, calls := completionServer(t, recipeJSON, http.StatusBadRequest)
	_, _, err := newTestParser(t, srv.URL).ParseRecipe(context.Background(), "text", "en")

	var ce *CompletionError
	if !errors.As(err, &ce) || ce.Transient() {
		t.Fatalf("ParseRecipe() error = %v, want permanent CompletionError", err)
	}
	if *calls != 1 {
		t.Errorf("calls = %d, want 1", *calls)
	}
}

func TestStripCodeFence(t *testing.T) {
	tests := map[string]string{
		`{"a":1}`:                  `{"a":1}`,
		"```json\n{\"a\":1}\n```":  `{"a":1}`,
		"```\n{\"a\":1}```":        `{"a":1}`,
		"  \n{\"a\":1}\n  ":        `{"a":1}`,
	}
	for in, want := range tests {
		if got := stripCodeFence(in); got != want {
			t.Errorf("stripCodeFence(%q) = %q, want %q", in, got, want)
		}
	}
}
