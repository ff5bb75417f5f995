package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskPatchDecodingDistinguishesAbsentAndNull(t *testing.T) {
	var p TaskPatch
	require.NoError(t, json.Unmarshal([]byte(`{"description": null, "completed": true}`), &p))

	assert.False(t, p.Title.Set, "title was absent")
	assert.True(t, p.Description.Set)
	assert.True(t, p.Description.Null)
	assert.True(t, p.Completed.Set)
	assert.False(t, p.Completed.Null)
	assert.True(t, p.Completed.Value)
}

func TestTaskPatchDecodingRejectsWrongType(t *testing.T) {
	var p TaskPatch
	assert.Error(t, json.Unmarshal([]byte(`{"completed": "yes"}`), &p))
}

func TestTaskPatchApply(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	task := &Task{ID: 7, Title: "old", Description: DescriptionPtr("keep"), CreatedAt: created, UpdatedAt: created}

	TaskPatch{Completed: Some(true)}.Apply(task)
	assert.Equal(t, "old", task.Title)
	assert.Equal(t, "keep", task.DescriptionText())
	assert.True(t, task.Completed)

	TaskPatch{Title: Some("new"), Description: Null[string]()}.Apply(task)
	assert.Equal(t, "new", task.Title)
	assert.Nil(t, task.Description)
	assert.Equal(t, created, task.CreatedAt)
}

func TestTaskJSON(t *testing.T) {
	ts := time.Date(2024, 5, 6, 7, 8, 9, 123456000, time.UTC)
	task := Task{ID: 1, Title: "Test Task", CreatedAt: ts, UpdatedAt: ts}

	data, err := json.Marshal(task)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id": 1,
		"title": "Test Task",
		"description": null,
		"completed": false,
		"created_at": "2024-05-06T07:08:09.123456Z",
		"updated_at": "2024-05-06T07:08:09.123456Z"
	}`, string(data))
}

func TestPage(t *testing.T) {
	empty := &Page{Number: 1, PerPage: 10}
	assert.Equal(t, 1, empty.Pages())
	assert.False(t, empty.HasPrev())
	assert.False(t, empty.HasNext())

	p := &Page{Number: 2, PerPage: 10, Total: 25}
	assert.Equal(t, 3, p.Pages())
	assert.True(t, p.HasPrev())
	assert.True(t, p.HasNext())
	assert.Equal(t, 1, p.PrevNum())
	assert.Equal(t, 3, p.NextNum())
	assert.Equal(t, []int{1, 2, 3}, p.PageNumbers())

	long := &Page{Number: 10, PerPage: 1, Total: 20}
	assert.Equal(t, []int{1, 2, 0, 8, 9, 10, 11, 12, 0, 19, 20}, long.PageNumbers())
}
