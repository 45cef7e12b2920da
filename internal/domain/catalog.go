package domain

// BaseIngredient is a canonical ingredient that recipe ingredient rows can reference.
type BaseIngredient struct {
	ID      string      `gorm:"type:text;primaryKey" json:"id" yaml:"id"`
	NameEn  string      `gorm:"type:text;not null;uniqueIndex" json:"name_en" yaml:"name_en"`
	Aliases StringArray `gorm:"type:text" json:"aliases" yaml:"aliases"`
}

// TableName returns the database table name for BaseIngredient.
func (BaseIngredient) TableName() string {
	return "base_ingredients"
}

// Unit is a canonical measurement unit.
type Unit struct {
	ID             string `gorm:"type:text;primaryKey" json:"id" yaml:"id"`
	NameEn         string `gorm:"type:text;not null" json:"name_en" yaml:"name_en"`
	AbbreviationEn string `gorm:"type:text;not null" json:"abbreviation_en" yaml:"abbreviation_en"`
}

// TableName returns the database table name for Unit.
func (Unit) TableName() string {
	return "units"
}

// Category is a recipe category; Aliases are the free-text names that map to it.
type Category struct {
	ID      string      `gorm:"type:text;primaryKey" json:"id" yaml:"id"`
	Name    string      `gorm:"type:text;not null" json:"name" yaml:"name"`
	Aliases StringArray `gorm:"type:text" json:"aliases" yaml:"aliases"`
}

// TableName returns the database table name for Category.
func (Category) TableName() string {
	return "categories"
}

// CatalogData is a full set of catalog rows, as loaded from the database or a seed file.
type CatalogData struct {
	BaseIngredients []BaseIngredient `yaml:"base_ingredients" json:"base_ingredients"`
	Units           []Unit           `yaml:"units" json:"units"`
	Categories      []Category       `yaml:"categories" json:"categories"`
}
