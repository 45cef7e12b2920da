package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/timmy/recipe-ingest/internal/domain"
	"gorm.io/gorm"
)

// RecipeRepository persists recipes and their ingredient rows.
type RecipeRepository struct {
	db *gorm.DB
}

// NewRecipeRepository creates a new RecipeRepository.
func NewRecipeRepository(db *gorm.DB) *RecipeRepository {
	return &RecipeRepository{db: db}
}

// CreateWithIngredients inserts the recipe and its ingredient rows in one
// transaction. Missing IDs are generated; each row's RecipeID is set.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - recipe: recipe with Ingredients populated.
// Returns:
//   - error: non-nil if either insert fails; nothing is persisted then.
func (r *RecipeRepository) CreateWithIngredients(ctx context.Context, recipe *domain.Recipe) error {
	if recipe.ID == "" {
		recipe.ID = uuid.New().String()
	}
	for i := range recipe.Ingredients {
		if recipe.Ingredients[i].ID == "" {
			recipe.Ingredients[i].ID = uuid.New().String()
		}
		recipe.Ingredients[i].RecipeID = recipe.ID
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Ingredients").Create(recipe).Error; err != nil {
			return err
		}
		if len(recipe.Ingredients) == 0 {
			return nil
		}
		return tx.Create(&recipe.Ingredients).Error
	})
}

// GetByID retrieves a recipe with its ingredients in order.
// Returns domain.ErrNotFound if it does not exist.
func (r *RecipeRepository) GetByID(ctx context.Context, id string) (*domain.Recipe, error) {
	var recipe domain.Recipe
	err := r.db.WithContext(ctx).
		Preload("Ingredients", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC") }).
		First(&recipe, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &recipe, nil
}

// GetByIDs retrieves recipes without ingredients. Unknown IDs are skipped.
func (r *RecipeRepository) GetByIDs(ctx context.Context, ids []string) ([]domain.Recipe, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var recipes []domain.Recipe
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&recipes).Error; err != nil {
		return nil, err
	}
	return recipes, nil
}

// Count returns the number of persisted recipes.
func (r *RecipeRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Recipe{}).Count(&count).Error
	return count, err
}
