package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"assessment_backend/internal/config"
	"assessment_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	mu       sync.Mutex
	failures int
	calls    int
	updates  []GradebookUpdate
	block    chan struct{}
}

func (f *fakeNotifier) UpdateGradebookItem(ctx context.Context, studentKey, courseID, assessmentID string, score *float64, itemConfig model.GradebookItemConfig) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return errors.New("gradebook unavailable")
	}
	f.updates = append(f.updates, GradebookUpdate{
		StudentKey: studentKey, CourseID: courseID, AssessmentID: assessmentID, Score: score, ItemConfig: itemConfig,
	})
	return nil
}

type fakeGradebookStore struct {
	mu      sync.Mutex
	items   []*model.GradebookItem
	letters []*model.GradebookDeadLetter
}

func (f *fakeGradebookStore) UpsertItem(ctx context.Context, item *model.GradebookItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, item)
	return nil
}

func (f *fakeGradebookStore) FindItem(ctx context.Context, key model.SessionKey) (*model.GradebookItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.items) - 1; i >= 0; i-- {
		it := f.items[i]
		if it.StudentKey == key.StudentKey && it.CourseID == key.CourseID && it.AssessmentID == key.AssessmentID {
			return it, nil
		}
	}
	return nil, nil
}

func (f *fakeGradebookStore) CreateDeadLetter(ctx context.Context, letter *model.GradebookDeadLetter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.letters = append(f.letters, letter)
	return nil
}

func sampleUpdate(student string) GradebookUpdate {
	return GradebookUpdate{
		StudentKey:   student,
		CourseID:     "phys101",
		AssessmentID: "essay-1",
		ItemConfig:   model.GradebookItemConfig{MaxScore: 10, Attempt: 1, PendingGrading: true},
	}
}

func TestGradebookDispatcher_RetriesThenDelivers(t *testing.T) {
	notifier := &fakeNotifier{failures: 2}
	store := &fakeGradebookStore{}
	d := NewGradebookDispatcher(notifier, store, config.GradebookConfig{Workers: 1, QueueSize: 4, MaxRetries: 3})

	d.Dispatch(sampleUpdate("stu-1"))
	d.Close()

	assert.Equal(t, 3, notifier.calls)
	require.Len(t, notifier.updates, 1)
	assert.Equal(t, "stu-1", notifier.updates[0].StudentKey)
	assert.Empty(t, store.letters)
}

func TestGradebookDispatcher_DeadLettersAfterRetries(t *testing.T) {
	notifier := &fakeNotifier{failures: 100}
	store := &fakeGradebookStore{}
	d := NewGradebookDispatcher(notifier, store, config.GradebookConfig{Workers: 2, QueueSize: 4, MaxRetries: 2})

	d.Dispatch(sampleUpdate("stu-1"))
	d.Close()

	assert.Equal(t, 3, notifier.calls)
	require.Len(t, store.letters, 1)
	assert.Equal(t, 3, store.letters[0].Attempts)
	assert.Equal(t, "gradebook unavailable", store.letters[0].LastError)
	assert.Contains(t, store.letters[0].Payload, `"studentKey":"stu-1"`)
}

func TestGradebookDispatcher_FullQueueDeadLetters(t *testing.T) {
	notifier := &fakeNotifier{block: make(chan struct{})}
	store := &fakeGradebookStore{}
	d := NewGradebookDispatcher(notifier, store, config.GradebookConfig{Workers: 1, QueueSize: 1})

	// 第一条被 worker 取走并阻塞，第二条占满队列，之后的进入死信
	d.Dispatch(sampleUpdate("stu-1"))
	require.Eventually(t, func() bool { return len(d.queue) == 0 }, time.Second, time.Millisecond)
	d.Dispatch(sampleUpdate("stu-2"))
	d.Dispatch(sampleUpdate("stu-3"))

	store.mu.Lock()
	require.Len(t, store.letters, 1)
	assert.Equal(t, "stu-3", store.letters[0].StudentKey)
	assert.Equal(t, 0, store.letters[0].Attempts)
	store.mu.Unlock()

	close(notifier.block)
	d.Close()
	assert.Len(t, notifier.updates, 2)
}

func TestGradebookDispatcher_DispatchAfterClose(t *testing.T) {
	notifier := &fakeNotifier{}
	store := &fakeGradebookStore{}
	d := NewGradebookDispatcher(notifier, store, config.GradebookConfig{})
	d.Close()
	d.Close()

	d.Dispatch(sampleUpdate("stu-1"))
	assert.Len(t, store.letters, 1)
	assert.Zero(t, notifier.calls)
}

func TestLocalGradebook_UpdateGradebookItem(t *testing.T) {
	store := &fakeGradebookStore{}
	g := NewLocalGradebook(store)
	score := 8.0

	err := g.UpdateGradebookItem(context.Background(), "stu-1", "phys101", "essay-1", &score, model.GradebookItemConfig{MaxScore: 10})
	require.NoError(t, err)
	require.Len(t, store.items, 1)
	assert.Equal(t, 8.0, *store.items[0].Score)
	assert.Equal(t, 10, store.items[0].ItemConfig.Data().MaxScore)
}

func TestLocalGradebook_GradeKeepsItemInfo(t *testing.T) {
	store := &fakeGradebookStore{}
	g := NewLocalGradebook(store)
	ctx := context.Background()

	err := g.UpdateGradebookItem(ctx, "stu-1", "phys101", "essay-1", nil, model.GradebookItemConfig{
		Title: "Essay 1", ActivityType: "assignment", MaxScore: 10, Attempt: 1, PendingGrading: true,
	})
	require.NoError(t, err)

	score := 7.5
	err = g.UpdateGradebookItem(ctx, "stu-1", "phys101", "essay-1", &score, model.GradebookItemConfig{MaxScore: 10, Attempt: 1})
	require.NoError(t, err)

	require.Len(t, store.items, 2)
	cfg := store.items[1].ItemConfig.Data()
	assert.Equal(t, "Essay 1", cfg.Title)
	assert.Equal(t, "assignment", cfg.ActivityType)
	assert.False(t, cfg.PendingGrading)
	assert.Equal(t, 7.5, *store.items[1].Score)
}
