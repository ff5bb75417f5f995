package testutil

import (
	"context"
	"errors"
	"sort"
	"sync"

	"mini-task-manager/internal/models"
	"mini-task-manager/internal/repositories"
)

// MemoryTaskRepo はテスト用のインメモリTaskRepositoryです。
// Updateはミューテックスで直列化され、fnがエラーを返すと何も書き込みません。
type MemoryTaskRepo struct {
	mu      sync.Mutex
	tasks   map[int64]models.Task
	nextID  int64
	PingErr error
	// FailNext が設定されていると、次の書き込み操作はこのエラーで失敗します。
	FailNext error
}

// NewMemoryTaskRepo は空のMemoryTaskRepoを作成します。
func NewMemoryTaskRepo() *MemoryTaskRepo {
	return &MemoryTaskRepo{tasks: make(map[int64]models.Task), nextID: 1}
}

var _ repositories.TaskRepository = (*MemoryTaskRepo)(nil)

// Count は保存されているタスク数を返します。
func (r *MemoryTaskRepo) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

func (r *MemoryTaskRepo) takeFailure() error {
	err := r.FailNext
	r.FailNext = nil
	return err
}

func (r *MemoryTaskRepo) Create(_ context.Context, t *models.Task) (*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return nil, err
	}
	t.ID = r.nextID
	r.nextID++
	r.tasks[t.ID] = *t
	out := *t
	return &out, nil
}

func (r *MemoryTaskRepo) sorted() []*models.Task {
	tasks := make([]*models.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		t := t
		tasks = append(tasks, &t)
	}
	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
		}
		return tasks[i].ID > tasks[j].ID
	})
	return tasks
}

func (r *MemoryTaskRepo) FindAll(_ context.Context) ([]*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sorted(), nil
}

func (r *MemoryTaskRepo) FindPage(_ context.Context, offset, limit int) ([]*models.Task, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.sorted()
	if offset < 0 || limit <= 0 || offset >= len(all) {
		return []*models.Task{}, len(all), nil
	}
	end := len(all)
	if limit < end-offset {
		end = offset + limit
	}
	return all[offset:end], len(all), nil
}

func (r *MemoryTaskRepo) FindByID(_ context.Context, id int64) (*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, repositories.ErrTaskNotFound
	}
	return &t, nil
}

func (r *MemoryTaskRepo) Update(_ context.Context, id int64, fn func(t *models.Task) error) (*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, repositories.ErrTaskNotFound
	}
	if err := fn(&t); err != nil {
		return nil, err
	}
	if err := r.takeFailure(); err != nil {
		return nil, err
	}
	r.tasks[id] = t
	out := t
	return &out, nil
}

func (r *MemoryTaskRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return err
	}
	if _, ok := r.tasks[id]; !ok {
		return repositories.ErrTaskNotFound
	}
	delete(r.tasks, id)
	return nil
}

func (r *MemoryTaskRepo) Ping(_ context.Context) error {
	return r.PingErr
}

// ErrStoreUnavailable はストア障害を模擬するためのエラーです。
var ErrStoreUnavailable = errors.New("store unavailable")
