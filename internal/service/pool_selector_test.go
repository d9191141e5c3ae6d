package service

import (
	"assessment_backend/internal/model"
	"assessment_backend/internal/util"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPool() []model.QuestionPoolEntry {
	return []model.QuestionPoolEntry{
		{QuestionKey: "kinematics-1", Text: "A ball is thrown...", Difficulty: "easy", Tags: []string{"kinematics"}},
		{QuestionKey: "kinematics-2", Text: "A car accelerates...", Difficulty: "medium", Tags: []string{"kinematics"}},
		{QuestionKey: "energy-1", Text: "A spring is compressed...", Difficulty: "medium", Tags: []string{"energy"}},
		{Text: "Explain Newton's third law.", Difficulty: "hard", Tags: []string{"dynamics"}},
	}
}

func seeded(seed int64) func(int) int {
	return rand.New(rand.NewSource(seed)).Intn
}

func TestSelectQuestionEmptyPool(t *testing.T) {
	_, err := SelectQuestion(nil, SelectCriteria{Difficulty: "easy"}, nil)
	assert.ErrorIs(t, err, util.ErrEmptyPool)
}

func TestSelectQuestionFilters(t *testing.T) {
	tests := []struct {
		name     string
		criteria SelectCriteria
		allowed  []string
	}{
		{name: "no filter", criteria: SelectCriteria{}, allowed: []string{"kinematics-1", "kinematics-2", "energy-1", "q3"}},
		{name: "difficulty", criteria: SelectCriteria{Difficulty: "medium"}, allowed: []string{"kinematics-2", "energy-1"}},
		{name: "difficulty case insensitive", criteria: SelectCriteria{Difficulty: "HARD"}, allowed: []string{"q3"}},
		{name: "unknown difficulty falls back", criteria: SelectCriteria{Difficulty: "impossible"}, allowed: []string{"kinematics-1", "kinematics-2", "energy-1", "q3"}},
		{name: "difficulty and tags", criteria: SelectCriteria{Difficulty: "medium", Tags: []string{"energy"}}, allowed: []string{"energy-1"}},
		{name: "unknown tag falls back to difficulty set", criteria: SelectCriteria{Difficulty: "medium", Tags: []string{"optics"}}, allowed: []string{"kinematics-2", "energy-1"}},
		{name: "avoid repetition", criteria: SelectCriteria{Difficulty: "medium", AvoidRepetition: true, UsedIDs: []string{"energy-1"}}, allowed: []string{"kinematics-2"}},
		{name: "all used falls back", criteria: SelectCriteria{Difficulty: "medium", AvoidRepetition: true, UsedIDs: []string{"energy-1", "kinematics-2"}}, allowed: []string{"kinematics-2", "energy-1"}},
		{name: "repetition allowed when not configured", criteria: SelectCriteria{Difficulty: "hard", UsedIDs: []string{"q3"}}, allowed: []string{"q3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for seed := int64(0); seed < 20; seed++ {
				sel, err := SelectQuestion(testPool(), tt.criteria, seeded(seed))
				require.NoError(t, err)
				assert.Contains(t, tt.allowed, sel.ID)
				assert.Equal(t, len(tt.allowed), sel.Candidates)
			}
		})
	}
}

func TestSelectQuestionNeverReturnsUsedWhenUnusedRemain(t *testing.T) {
	pool := make([]model.QuestionPoolEntry, 10)
	for i := range pool {
		pool[i] = model.QuestionPoolEntry{QuestionKey: fmt.Sprintf("p%d", i), Difficulty: "medium"}
	}
	for usedCount := 0; usedCount < len(pool); usedCount++ {
		used := make([]string, 0, usedCount)
		for i := 0; i < usedCount; i++ {
			used = append(used, fmt.Sprintf("p%d", i))
		}
		for seed := int64(0); seed < 10; seed++ {
			sel, err := SelectQuestion(pool, SelectCriteria{AvoidRepetition: true, UsedIDs: used}, seeded(seed))
			require.NoError(t, err)
			assert.NotContains(t, used, sel.ID)
		}
	}

	all := make([]string, len(pool))
	for i := range pool {
		all[i] = pool[i].QuestionKey
	}
	sel, err := SelectQuestion(pool, SelectCriteria{AvoidRepetition: true, UsedIDs: all}, seeded(3))
	require.NoError(t, err)
	assert.Contains(t, all, sel.ID)
	assert.Equal(t, len(pool), sel.Candidates)
}

func TestSelectQuestionReportsStages(t *testing.T) {
	sel, err := SelectQuestion(testPool(), SelectCriteria{Difficulty: "medium", Tags: []string{"optics"}, AvoidRepetition: true, UsedIDs: []string{"energy-1"}}, seeded(1))
	require.NoError(t, err)
	assert.Equal(t, []string{"difficulty", "unused"}, sel.AppliedStages)
	assert.Equal(t, "kinematics-2", sel.ID)
	assert.Equal(t, 1, sel.Index)
}

func TestSelectQuestionDoesNotMutatePool(t *testing.T) {
	pool := testPool()
	_, err := SelectQuestion(pool, SelectCriteria{Difficulty: "easy", AvoidRepetition: true, UsedIDs: []string{"kinematics-1"}}, seeded(1))
	require.NoError(t, err)
	assert.Equal(t, testPool(), pool)
}

func TestMergeUsedID(t *testing.T) {
	assert.Equal(t, []string{"a"}, mergeUsedID(nil, "a"))
	assert.Equal(t, []string{"a", "b"}, mergeUsedID([]string{"a"}, "b"))
	assert.Equal(t, []string{"a", "b"}, mergeUsedID([]string{"a", "b"}, "a"))
}
