package models

import "strings"

// Category is the closed set of confession topics.
type Category string

const (
	CategoryLove       Category = "love"
	CategoryAcademic   Category = "academic"
	CategoryRandom     Category = "random"
	CategoryConfession Category = "confession"
	CategoryProgram    Category = "program"
	CategoryFaculty    Category = "faculty"
)

// Categories lists every accepted category in display order.
var Categories = []Category{
	CategoryLove,
	CategoryAcademic,
	CategoryRandom,
	CategoryConfession,
	CategoryProgram,
	CategoryFaculty,
}

// legacy client values
var categoryAliases = map[string]Category{
	"amor":      CategoryLove,
	"academico": CategoryAcademic,
	"académico": CategoryAcademic,
	"carrera":   CategoryProgram,
	"career":    CategoryProgram,
	"facultad":  CategoryFaculty,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory resolves raw input, including legacy aliases, to a Category.
func ParseCategory(raw string) (Category, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if c := Category(key); c.Valid() {
		return c, true
	}
	c, ok := categoryAliases[key]
	return c, ok
}
