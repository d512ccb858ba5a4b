package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/roadtrip/internal/subject"
)

func TestLoadCatalog(t *testing.T) {
	path := writeFile(t, "restaurants.json", `[
  {"name": "Waffle House", "filter": "\"name\"=\"Waffle House\""},
  {"name": "Taco Bell", "filter": "\"name\"=\"Taco Bell\"", "has_islands": true},
  {"name": "Culver's", "filter": ""}
]`)

	subjects, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, subjects, 3)

	assert.Equal(t, subject.Subject{Name: "Waffle House", Filter: `"name"="Waffle House"`}, subjects[0])
	assert.True(t, subjects[1].HasIslands)
	assert.Equal(t, "culvers", subjects[2].Key())
	assert.False(t, subjects[2].Configured())
}

func TestLoadCatalogRejectsDuplicateKeys(t *testing.T) {
	path := writeFile(t, "restaurants.json", `[
  {"name": "Ben & Jerry's", "filter": "a"},
  {"name": "Ben  Jerrys", "filter": "b"}
]`)

	_, err := LoadCatalog(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ben--jerrys")
}

func TestValidateCatalogRejectsKeylessNames(t *testing.T) {
	err := ValidateCatalog([]subject.Subject{{Name: "&&&", Filter: "x"}})
	assert.Error(t, err)
}

func TestLoadShippedCatalog(t *testing.T) {
	subjects, err := LoadCatalog("../../" + DefaultCatalogPath)
	require.NoError(t, err)
	assert.NotEmpty(t, subjects)

	var configured int
	for _, s := range subjects {
		if s.Configured() {
			configured++
		}
	}
	assert.Positive(t, configured)
}
