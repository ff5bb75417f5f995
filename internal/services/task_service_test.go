package services_test

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mini-task-manager/internal/models"
	"mini-task-manager/internal/repositories"
	"mini-task-manager/internal/services"
	"mini-task-manager/internal/validation"
	"mini-task-manager/testutil"
)

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*services.TaskService, *testutil.MemoryTaskRepo) {
	t.Helper()
	repo := testutil.NewMemoryTaskRepo()
	svc := services.NewTaskService(repo, 10).WithClock(testutil.FixedClock(baseTime, time.Second))
	return svc, repo
}

func TestCreateTask_RoundTrip(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	inputs := []models.TaskInput{
		{Title: "a"},
		{Title: strings.Repeat("t", 100), Description: strings.Repeat("d", 500)},
		{Title: "日本語のタスク", Description: "説明", Completed: true},
	}
	for _, in := range inputs {
		created, err := svc.CreateTask(ctx, in)
		require.NoError(t, err)
		assert.NotZero(t, created.ID)
		assert.Equal(t, created.CreatedAt, created.UpdatedAt)

		fetched, err := svc.GetTask(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created, fetched)
		assert.Equal(t, in.Title, fetched.Title)
		assert.Equal(t, in.Description, fetched.DescriptionText())
		assert.Equal(t, in.Completed, fetched.Completed)
	}
}

func TestCreateTask_ValidationLeavesStoreUnchanged(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()

	_, err := svc.CreateTask(ctx, models.TaskInput{Title: "existing"})
	require.NoError(t, err)

	for _, title := range []string{"", strings.Repeat("x", 101)} {
		_, err := svc.CreateTask(ctx, models.TaskInput{Title: title})
		var verr *validation.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.NotEmpty(t, verr.Fields["title"])
		assert.Equal(t, 1, repo.Count())
	}
}

func TestUpdateTask_PartialUpdate(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	created, err := svc.CreateTask(ctx, models.TaskInput{Title: "Write report", Description: "quarterly"})
	require.NoError(t, err)

	updated, err := svc.UpdateTask(ctx, created.ID, models.TaskPatch{Completed: models.Some(true)})
	require.NoError(t, err)

	assert.True(t, updated.Completed)
	assert.Equal(t, created.Title, updated.Title)
	assert.Equal(t, created.Description, updated.Description)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))
}

func TestUpdateTask_InvalidPatchIsRejected(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	created, err := svc.CreateTask(ctx, models.TaskInput{Title: "keep me"})
	require.NoError(t, err)

	_, err = svc.UpdateTask(ctx, created.ID, models.TaskPatch{
		Title:     models.Some(""),
		Completed: models.Some(true),
	})
	var verr *validation.ValidationError
	require.ErrorAs(t, err, &verr)

	fetched, err := svc.GetTask(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, fetched, "rejected update must not write anything")
}

func TestUpdateTask_NotFound(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.UpdateTask(context.Background(), 42, models.TaskPatch{Title: models.Some("x")})
	assert.ErrorIs(t, err, repositories.ErrTaskNotFound)
}

func TestToggleCompleted_IsItsOwnInverse(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	created, err := svc.CreateTask(ctx, models.TaskInput{Title: "toggle me", Description: "d"})
	require.NoError(t, err)

	first, err := svc.ToggleCompleted(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, first.Completed)
	assert.True(t, first.UpdatedAt.After(created.UpdatedAt))

	second, err := svc.ToggleCompleted(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, second.Completed)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))
	assert.Equal(t, created.Title, second.Title)
	assert.Equal(t, created.Description, second.Description)
}

func TestToggleCompleted_UpdatedAtAdvancesWithStoppedClock(t *testing.T) {
	repo := testutil.NewMemoryTaskRepo()
	svc := services.NewTaskService(repo, 10).WithClock(func() time.Time { return baseTime })
	ctx := context.Background()

	created, err := svc.CreateTask(ctx, models.TaskInput{Title: "frozen"})
	require.NoError(t, err)

	toggled, err := svc.ToggleCompleted(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.UpdatedAt.Add(time.Microsecond), toggled.UpdatedAt)
}

func TestDeleteTask(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	created, err := svc.CreateTask(ctx, models.TaskInput{Title: "delete me"})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteTask(ctx, created.ID))
	_, err = svc.GetTask(ctx, created.ID)
	assert.ErrorIs(t, err, repositories.ErrTaskNotFound)
	assert.ErrorIs(t, svc.DeleteTask(ctx, created.ID), repositories.ErrTaskNotFound)
	_, err = svc.ToggleCompleted(ctx, created.ID)
	assert.ErrorIs(t, err, repositories.ErrTaskNotFound)

	next, err := svc.CreateTask(ctx, models.TaskInput{Title: "after delete"})
	require.NoError(t, err)
	assert.Greater(t, next.ID, created.ID, "ids are never reused")
}

func TestListTasks_NewestFirst(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	for _, title := range []string{"A", "B", "C"} {
		_, err := svc.CreateTask(ctx, models.TaskInput{Title: title})
		require.NoError(t, err)
	}

	page, err := svc.ListTasks(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	assert.Equal(t, []string{"C", "B", "A"}, titles(page.Items))

	all, err := svc.AllTasks(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "B", "A"}, titles(all))
}

func TestListTasks_TiesBrokenByID(t *testing.T) {
	repo := testutil.NewMemoryTaskRepo()
	svc := services.NewTaskService(repo, 10).WithClock(func() time.Time { return baseTime })
	ctx := context.Background()

	for _, title := range []string{"first", "second"} {
		_, err := svc.CreateTask(ctx, models.TaskInput{Title: title})
		require.NoError(t, err)
	}
	all, err := svc.AllTasks(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"second", "first"}, titles(all))
}

func TestListTasks_Pagination(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	for i := 1; i <= 12; i++ {
		_, err := svc.CreateTask(ctx, models.TaskInput{Title: fmt.Sprintf("task %02d", i)})
		require.NoError(t, err)
	}

	first, err := svc.ListTasks(ctx, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, 12, first.Total)
	assert.Equal(t, 3, first.Pages())
	assert.Equal(t, "task 12", first.Items[0].Title)

	last, err := svc.ListTasks(ctx, 3, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"task 02", "task 01"}, titles(last.Items))

	beyond, err := svc.ListTasks(ctx, 9, 5)
	require.NoError(t, err)
	assert.Empty(t, beyond.Items)

	// オフセットがintをあふれるページ番号でも空ページになる
	huge, err := svc.ListTasks(ctx, math.MaxInt, 5)
	require.NoError(t, err)
	assert.Empty(t, huge.Items)
	assert.Equal(t, 12, huge.Total)
	assert.Equal(t, math.MaxInt, huge.Number)
	assert.False(t, huge.HasNext())

	fallback, err := svc.ListTasks(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, fallback.Number)
	assert.Equal(t, 10, fallback.PerPage)
	assert.Len(t, fallback.Items, 10)
}

func TestListTasks_EmptyStore(t *testing.T) {
	svc, _ := newService(t)
	page, err := svc.ListTasks(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, 0, page.Total)
}

func TestStoreFailureSurfaces(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()

	repo.FailNext = testutil.ErrStoreUnavailable
	_, err := svc.CreateTask(ctx, models.TaskInput{Title: "x"})
	assert.ErrorIs(t, err, testutil.ErrStoreUnavailable)
	assert.Equal(t, 0, repo.Count())
}

func TestConcurrentTogglesSerialize(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	created, err := svc.CreateTask(ctx, models.TaskInput{Title: "contended"})
	require.NoError(t, err)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ToggleCompleted(ctx, created.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	final, err := svc.GetTask(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, final.Completed, "an even number of toggles restores the initial state")
}

func TestEndToEndScenario(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	created, err := svc.CreateTask(ctx, models.TaskInput{Title: "Test Task", Description: "This is a test task"})
	require.NoError(t, err)

	page, err := svc.ListTasks(ctx, 1, 10)
	require.NoError(t, err)
	require.NotEmpty(t, page.Items)
	assert.Equal(t, created.ID, page.Items[0].ID)
	assert.False(t, page.Items[0].Completed)

	toggled, err := svc.ToggleCompleted(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, toggled.Completed)

	_, err = svc.UpdateTask(ctx, created.ID, models.TaskPatch{Title: models.Some("Updated Task")})
	require.NoError(t, err)

	fetched, err := svc.GetTask(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Updated Task", fetched.Title)
	assert.Equal(t, created.CreatedAt, fetched.CreatedAt)
	assert.True(t, fetched.UpdatedAt.After(toggled.UpdatedAt))

	require.NoError(t, svc.DeleteTask(ctx, created.ID))
	_, err = svc.GetTask(ctx, created.ID)
	assert.ErrorIs(t, err, repositories.ErrTaskNotFound)
}

func titles(tasks []*models.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, task.Title)
	}
	return out
}
