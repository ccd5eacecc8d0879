package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategories(t *testing.T) {
	got := Categories()
	assert.Equal(t, []Category{
		{ID: 1, Name: "Fiction"},
		{ID: 2, Name: "Non-fiction"},
		{ID: 3, Name: "Science"},
		{ID: 4, Name: "History"},
		{ID: 5, Name: "Biography"},
	}, got)

	// Mutating the returned slice must not leak into the fixed list
	got[0].Name = "Changed"
	assert.Equal(t, "Fiction", Categories()[0].Name)
}

func TestIsKnownCategory(t *testing.T) {
	assert.True(t, IsKnownCategory(1))
	assert.True(t, IsKnownCategory(5))
	assert.False(t, IsKnownCategory(0))
	assert.False(t, IsKnownCategory(6))
}
