// Package modelsはTaskとそのシリアライズ表現を定義します。
package models

import (
	"time"
)

// Task はタスクのデータベース構造体を表します。
// dbタグ: sqlxでのスキャン用
// JSONタグ: APIレスポンス用 (descriptionは未設定ならnull)
type Task struct {
	ID          int64     `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	Description *string   `db:"description" json:"description"`
	Completed   bool      `db:"completed" json:"completed"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// DescriptionText は説明文を文字列で返します。未設定なら空文字です。
func (t *Task) DescriptionText() string {
	if t.Description == nil {
		return ""
	}
	return *t.Description
}

// Edited は作成後に更新されていればtrueを返します。
func (t *Task) Edited() bool {
	return t.UpdatedAt.After(t.CreatedAt)
}

// TaskInput は作成時の入力値です。
// validateタグはvalidationパッケージで使用します。
type TaskInput struct {
	Title       string `json:"title" validate:"notblank,utf8,max=100"`
	Description string `json:"description" validate:"utf8,max=500"`
	Completed   bool   `json:"completed"`
}

// TaskPatch は部分更新の入力値です。
// Setがfalseのフィールドは変更されません。
type TaskPatch struct {
	Title       Optional[string] `json:"title"`
	Description Optional[string] `json:"description"`
	Completed   Optional[bool]   `json:"completed"`
}

// Apply は指定されたフィールドだけをTaskに反映します。検証済みであることが前提です。
func (p TaskPatch) Apply(t *Task) {
	if p.Title.Set {
		t.Title = p.Title.Value
	}
	if p.Description.Set {
		t.Description = DescriptionPtr(p.Description.Value)
	}
	if p.Completed.Set {
		t.Completed = p.Completed.Value
	}
}

// DescriptionPtr は空の説明文をnilに正規化します。
func DescriptionPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
