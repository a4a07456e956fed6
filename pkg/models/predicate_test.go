package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/talentflow/approvals/pkg/models"
)

func TestPredicateMatches(t *testing.T) {
	t.Parallel()

	predicate := models.Predicate{
		{Key: "department_id", Value: "eng"},
		{Key: "level", Value: "senior"},
	}

	assert.True(t, predicate.Matches(map[string]string{
		"department_id": "eng",
		"level":         "senior",
		"extra":         "ignored",
	}))

	assert.False(t, predicate.Matches(map[string]string{
		"department_id": "eng",
		"level":         "junior",
	}))

	assert.False(t, predicate.Matches(map[string]string{
		"department_id": "eng",
	}))

	assert.False(t, predicate.Matches(nil))

	// An empty predicate matches anything.
	assert.True(t, models.Predicate{}.Matches(nil))
	assert.True(t, models.Predicate(nil).Matches(map[string]string{"any": "thing"}))
}
