package models

// Category is a fixed book category. Categories are not persisted.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

var categories = []Category{
	{ID: 1, Name: "Fiction"},
	{ID: 2, Name: "Non-fiction"},
	{ID: 3, Name: "Science"},
	{ID: 4, Name: "History"},
	{ID: 5, Name: "Biography"},
}

// Categories returns a copy of the fixed category list
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// IsKnownCategory reports whether id names one of the fixed categories
func IsKnownCategory(id int64) bool {
	for _, c := range categories {
		if c.ID == id {
			return true
		}
	}
	return false
}
