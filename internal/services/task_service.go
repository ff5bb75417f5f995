package services

import (
	"context"
	"math"
	"time"

	"mini-task-manager/internal/models"
	"mini-task-manager/internal/repositories"
	"mini-task-manager/internal/validation"
)

// TaskService はTask関連のビジネスロジックを扱います。
// Taskの状態を変更するのはこのサービスだけです。
type TaskService struct {
	taskRepo repositories.TaskRepository
	perPage  int
	now      func() time.Time
}

// NewTaskService は新しいTaskServiceを作成します。
func NewTaskService(taskRepo repositories.TaskRepository, perPage int) *TaskService {
	if perPage < 1 {
		perPage = 10
	}
	return &TaskService{taskRepo: taskRepo, perPage: perPage, now: time.Now}
}

// WithClock は時刻の取得元を差し替えます。テスト用です。
func (s *TaskService) WithClock(now func() time.Time) *TaskService {
	s.now = now
	return s
}

// PerPage は既定の1ページあたりの件数を返します。
func (s *TaskService) PerPage() int {
	return s.perPage
}

func (s *TaskService) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// touch はupdated_atを現在時刻に更新します。時計が進んでいなければ1マイクロ秒進めます。
func (s *TaskService) touch(t *models.Task) {
	now := s.clock()
	if !now.After(t.UpdatedAt) {
		now = t.UpdatedAt.Add(time.Microsecond)
	}
	t.UpdatedAt = now
}

// ListTasks は新しい順にページ単位でタスクを取得します。範囲外のページは空になります。
func (s *TaskService) ListTasks(ctx context.Context, page, pageSize int) (*models.Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = s.perPage
	}
	offset, limit := (page-1)*pageSize, pageSize
	if page-1 > math.MaxInt/pageSize {
		// オフセットがintに収まらないページは必ず範囲外なので、件数だけを取得する
		offset, limit = 0, 0
	}
	tasks, total, err := s.taskRepo.FindPage(ctx, offset, limit)
	if err != nil {
		return nil, err
	}
	if limit == 0 {
		tasks = []*models.Task{}
	}
	return &models.Page{Items: tasks, Number: page, PerPage: pageSize, Total: total}, nil
}

// AllTasks はすべてのタスクを新しい順に取得します。
func (s *TaskService) AllTasks(ctx context.Context) ([]*models.Task, error) {
	tasks, err := s.taskRepo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []*models.Task{}
	}
	return tasks, nil
}

// CreateTask は入力を検証して新しいタスクを作成します。
func (s *TaskService) CreateTask(ctx context.Context, in models.TaskInput) (*models.Task, error) {
	if err := validation.ValidateInput(in); err != nil {
		return nil, err
	}
	now := s.clock()
	task := &models.Task{
		Title:       in.Title,
		Description: models.DescriptionPtr(in.Description),
		Completed:   in.Completed,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return s.taskRepo.Create(ctx, task)
}

// GetTask は指定IDのタスクを取得します。
func (s *TaskService) GetTask(ctx context.Context, id int64) (*models.Task, error) {
	return s.taskRepo.FindByID(ctx, id)
}

// UpdateTask は指定されたフィールドだけを更新します。
// 存在確認を先に行い、検証エラーの場合はロールバックされ何も書き込まれません。
func (s *TaskService) UpdateTask(ctx context.Context, id int64, patch models.TaskPatch) (*models.Task, error) {
	return s.taskRepo.Update(ctx, id, func(t *models.Task) error {
		if err := validation.ValidatePatch(patch); err != nil {
			return err
		}
		patch.Apply(t)
		s.touch(t)
		return nil
	})
}

// DeleteTask は指定IDのタスクを削除します。
func (s *TaskService) DeleteTask(ctx context.Context, id int64) error {
	return s.taskRepo.Delete(ctx, id)
}

// ToggleCompleted は完了状態を反転します。
func (s *TaskService) ToggleCompleted(ctx context.Context, id int64) (*models.Task, error) {
	return s.taskRepo.Update(ctx, id, func(t *models.Task) error {
		t.Completed = !t.Completed
		s.touch(t)
		return nil
	})
}

// Ping はストアの疎通を確認します。
func (s *TaskService) Ping(ctx context.Context) error {
	return s.taskRepo.Ping(ctx)
}
