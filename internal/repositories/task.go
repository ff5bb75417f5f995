// Package repositories はデータベース操作を行うリポジトリを提供します。
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"

	"mini-task-manager/internal/models"
)

// ErrTaskNotFound はタスクが見つからない場合のエラーです。
var ErrTaskNotFound = errors.New("task not found")

// TaskRepository はタスクの永続化を抽象化します。
// Updateに渡す関数は行ロックを取得したトランザクション内で実行され、
// エラーを返した場合は何も書き込まれません。
type TaskRepository interface {
	Create(ctx context.Context, t *models.Task) (*models.Task, error)
	FindAll(ctx context.Context) ([]*models.Task, error)
	FindPage(ctx context.Context, offset, limit int) ([]*models.Task, int, error)
	FindByID(ctx context.Context, id int64) (*models.Task, error)
	Update(ctx context.Context, id int64, fn func(t *models.Task) error) (*models.Task, error)
	Delete(ctx context.Context, id int64) error
	Ping(ctx context.Context) error
}

const selectTask = "SELECT id, title, description, completed, created_at, updated_at FROM tasks"

// newestFirst は作成日時の降順、同時刻ならIDの降順です。
const newestFirst = " ORDER BY created_at DESC, id DESC"

// SQLTaskRepo はMySQL/PostgreSQLに対するTaskRepositoryの実装です。
type SQLTaskRepo struct {
	DB *sqlx.DB
}

// NewSQLTaskRepo は新しいSQLTaskRepoインスタンスを作成します。
func NewSQLTaskRepo(db *sqlx.DB) *SQLTaskRepo {
	return &SQLTaskRepo{DB: db}
}

// Create は新しいタスクをデータベースに挿入します。
func (r *SQLTaskRepo) Create(ctx context.Context, t *models.Task) (*models.Task, error) {
	if r.DB.DriverName() == DriverPostgres {
		// lib/pq は LastInsertId をサポートしないため RETURNING を使う
		query := r.DB.Rebind("INSERT INTO tasks (title, description, completed, created_at, updated_at) VALUES (?, ?, ?, ?, ?) RETURNING id")
		if err := r.DB.QueryRowxContext(ctx, query, t.Title, t.Description, t.Completed, t.CreatedAt, t.UpdatedAt).Scan(&t.ID); err != nil {
			log.Printf("Failed to insert task: %v", err)
			return nil, fmt.Errorf("could not insert task: %w", err)
		}
		return t, nil
	}

	query := "INSERT INTO tasks (title, description, completed, created_at, updated_at) VALUES (?, ?, ?, ?, ?)"
	result, err := r.DB.ExecContext(ctx, query, t.Title, t.Description, t.Completed, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		log.Printf("Failed to insert task: %v", err)
		return nil, fmt.Errorf("could not insert task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("could not get last insert ID: %w", err)
	}
	t.ID = id
	return t, nil
}

// FindAll はすべてのタスクを新しい順に取得します。
func (r *SQLTaskRepo) FindAll(ctx context.Context) ([]*models.Task, error) {
	var tasks []*models.Task
	if err := r.DB.SelectContext(ctx, &tasks, selectTask+newestFirst); err != nil {
		log.Printf("Failed to query tasks: %v", err)
		return nil, fmt.Errorf("could not query tasks: %w", err)
	}
	for _, t := range tasks {
		normalize(t)
	}
	return tasks, nil
}

// FindPage は1ページ分のタスクと総件数を取得します。
// 件数と一覧は同じ読み取り専用トランザクション内で取得します。
func (r *SQLTaskRepo) FindPage(ctx context.Context, offset, limit int) ([]*models.Task, int, error) {
	tx, err := r.DB.BeginTxx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.GetContext(ctx, &total, "SELECT COUNT(*) FROM tasks"); err != nil {
		log.Printf("Failed to count tasks: %v", err)
		return nil, 0, fmt.Errorf("could not count tasks: %w", err)
	}

	tasks := []*models.Task{}
	query := tx.Rebind(selectTask + newestFirst + " LIMIT ? OFFSET ?")
	if err := tx.SelectContext(ctx, &tasks, query, limit, offset); err != nil {
		log.Printf("Failed to query task page: %v", err)
		return nil, 0, fmt.Errorf("could not query tasks: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("could not commit transaction: %w", err)
	}
	for _, t := range tasks {
		normalize(t)
	}
	return tasks, total, nil
}

// FindByID は指定されたIDのタスクを取得します。
func (r *SQLTaskRepo) FindByID(ctx context.Context, id int64) (*models.Task, error) {
	var t models.Task
	err := r.DB.GetContext(ctx, &t, r.DB.Rebind(selectTask+" WHERE id = ?"), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		log.Printf("Failed to query task by ID: %v", err)
		return nil, fmt.Errorf("could not query task: %w", err)
	}
	normalize(&t)
	return &t, nil
}

// Update は行ロックを取ったうえでfnを適用し、結果を書き込みます。
func (r *SQLTaskRepo) Update(ctx context.Context, id int64, fn func(t *models.Task) error) (*models.Task, error) {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	var t models.Task
	if err := tx.GetContext(ctx, &t, tx.Rebind(selectTask+" WHERE id = ? FOR UPDATE"), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		log.Printf("Failed to lock task for update: %v", err)
		return nil, fmt.Errorf("could not query task: %w", err)
	}
	normalize(&t)

	if err := fn(&t); err != nil {
		return nil, err
	}

	query := tx.Rebind("UPDATE tasks SET title = ?, description = ?, completed = ?, updated_at = ? WHERE id = ?")
	if _, err := tx.ExecContext(ctx, query, t.Title, t.Description, t.Completed, t.UpdatedAt, id); err != nil {
		log.Printf("Failed to update task: %v", err)
		return nil, fmt.Errorf("could not update task: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("could not commit transaction: %w", err)
	}
	return &t, nil
}

// Delete は指定されたIDのタスクを削除します。
func (r *SQLTaskRepo) Delete(ctx context.Context, id int64) error {
	result, err := r.DB.ExecContext(ctx, r.DB.Rebind("DELETE FROM tasks WHERE id = ?"), id)
	if err != nil {
		log.Printf("Failed to delete task: %v", err)
		return fmt.Errorf("could not delete task: %w", err)
	}

	// 削除された行数を確認
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// Ping はデータベース接続を確認します。
func (r *SQLTaskRepo) Ping(ctx context.Context) error {
	return r.DB.PingContext(ctx)
}

func normalize(t *models.Task) {
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
}
