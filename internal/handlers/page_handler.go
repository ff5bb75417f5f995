package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"mini-task-manager/internal/models"
	"mini-task-manager/internal/repositories"
	"mini-task-manager/internal/services"
	"mini-task-manager/internal/session"
	"mini-task-manager/internal/validation"
)

// フラッシュメッセージ
const (
	FlashAdded    = "Task added successfully!"
	FlashUpdated  = "Task updated successfully!"
	FlashDeleted  = "Task deleted successfully!"
	FlashComplete = "Task completed successfully!"
	FlashReopened = "Task reopened successfully!"
)

// taskForm はHTMLフォームの送信内容です。
type taskForm struct {
	Title       string `form:"title"`
	Description string `form:"description"`
	Completed   string `form:"completed"`
}

// checked はチェックボックスの値を解釈します。
func (f taskForm) checked() bool {
	switch strings.ToLower(f.Completed) {
	case "y", "yes", "on", "true", "1":
		return true
	}
	return false
}

// formView はフォームの表示内容とフィールドごとのエラーです。
type formView struct {
	Title       string
	Description string
	Completed   bool
	Errors      map[string][]string
}

func formFromTask(t *models.Task) formView {
	return formView{Title: t.Title, Description: t.DescriptionText(), Completed: t.Completed}
}

func (f taskForm) view(verr *validation.ValidationError) formView {
	v := formView{Title: f.Title, Description: f.Description, Completed: f.checked()}
	if verr != nil {
		v.Errors = verr.Fields
	}
	return v
}

// PageHandler はHTML画面のハンドラーを管理します。
type PageHandler struct {
	taskService *services.TaskService
	sessions    *session.Manager
}

// NewPageHandler は新しいPageHandlerを作成します。
func NewPageHandler(taskService *services.TaskService, sessions *session.Manager) *PageHandler {
	return &PageHandler{taskService: taskService, sessions: sessions}
}

// IndexHandler はタスク一覧をページ単位で表示します。
func (h *PageHandler) IndexHandler(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	result, err := h.taskService.ListTasks(c.Request.Context(), page, h.taskService.PerPage())
	if err != nil {
		log.Printf("Failed to list tasks: %v", err)
		RenderError(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.render(c, http.StatusOK, "index.html", "Home", gin.H{"Page": result})
}

// AddFormHandler は追加フォームを表示します。
func (h *PageHandler) AddFormHandler(c *gin.Context) {
	h.render(c, http.StatusOK, "add.html", "Add Task", gin.H{"Form": formView{}, "Action": "/add"})
}

// AddTaskHandler はフォームの内容でタスクを作成します。
func (h *PageHandler) AddTaskHandler(c *gin.Context) {
	var form taskForm
	if err := c.ShouldBind(&form); err != nil {
		RenderError(c, http.StatusBadRequest, "Invalid form submission")
		return
	}

	in := models.TaskInput{Title: form.Title, Description: form.Description, Completed: form.checked()}
	if _, err := h.taskService.CreateTask(c.Request.Context(), in); err != nil {
		if verr, ok := validation.AsValidationError(err); ok {
			h.render(c, http.StatusOK, "add.html", "Add Task", gin.H{"Form": form.view(verr), "Action": "/add"})
			return
		}
		log.Printf("Failed to create task: %v", err)
		RenderError(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.redirectWithFlash(c, FlashAdded)
}

// EditFormHandler は既存の値を入れた編集フォームを表示します。
func (h *PageHandler) EditFormHandler(c *gin.Context) {
	id, ok := taskIDParam(c)
	if !ok {
		RenderError(c, http.StatusNotFound, "Page not found")
		return
	}

	task, err := h.taskService.GetTask(c.Request.Context(), id)
	if err != nil {
		h.handleTaskError(c, err, "Failed to fetch task")
		return
	}
	h.render(c, http.StatusOK, "edit.html", "Edit Task", gin.H{"Form": formFromTask(task), "Action": editPath(id)})
}

// EditTaskHandler はフォームの内容でタスクを更新します。
func (h *PageHandler) EditTaskHandler(c *gin.Context) {
	id, ok := taskIDParam(c)
	if !ok {
		RenderError(c, http.StatusNotFound, "Page not found")
		return
	}

	var form taskForm
	if err := c.ShouldBind(&form); err != nil {
		RenderError(c, http.StatusBadRequest, "Invalid form submission")
		return
	}

	// フォームは全フィールドを送信するので、すべて指定された更新として扱う
	patch := models.TaskPatch{
		Title:       models.Some(form.Title),
		Description: models.Some(form.Description),
		Completed:   models.Some(form.checked()),
	}
	if _, err := h.taskService.UpdateTask(c.Request.Context(), id, patch); err != nil {
		if verr, ok := validation.AsValidationError(err); ok {
			h.render(c, http.StatusOK, "edit.html", "Edit Task", gin.H{"Form": form.view(verr), "Action": editPath(id)})
			return
		}
		h.handleTaskError(c, err, "Failed to update task")
		return
	}
	h.redirectWithFlash(c, FlashUpdated)
}

// DeleteTaskHandler はタスクを削除します。
func (h *PageHandler) DeleteTaskHandler(c *gin.Context) {
	id, ok := taskIDParam(c)
	if !ok {
		RenderError(c, http.StatusNotFound, "Page not found")
		return
	}

	if err := h.taskService.DeleteTask(c.Request.Context(), id); err != nil {
		h.handleTaskError(c, err, "Failed to delete task")
		return
	}
	h.redirectWithFlash(c, FlashDeleted)
}

// ToggleTaskHandler は完了状態を切り替えます。
func (h *PageHandler) ToggleTaskHandler(c *gin.Context) {
	id, ok := taskIDParam(c)
	if !ok {
		RenderError(c, http.StatusNotFound, "Page not found")
		return
	}

	task, err := h.taskService.ToggleCompleted(c.Request.Context(), id)
	if err != nil {
		h.handleTaskError(c, err, "Failed to toggle task")
		return
	}
	if task.Completed {
		h.redirectWithFlash(c, FlashComplete)
	} else {
		h.redirectWithFlash(c, FlashReopened)
	}
}

func (h *PageHandler) handleTaskError(c *gin.Context, err error, action string) {
	if errors.Is(err, repositories.ErrTaskNotFound) {
		RenderError(c, http.StatusNotFound, "Page not found")
		return
	}
	log.Printf("%s: %v", action, err)
	RenderError(c, http.StatusInternalServerError, "Internal server error")
}

// redirectWithFlash はフラッシュメッセージを保存して一覧へリダイレクトします。
func (h *PageHandler) redirectWithFlash(c *gin.Context, message string) {
	session.Get(c).AddFlash("success", message)
	if err := h.sessions.Save(c); err != nil {
		log.Printf("Failed to save session: %v", err)
	}
	c.Redirect(http.StatusSeeOther, "/")
}

// render は共通のテンプレート変数を設定して描画します。表示したフラッシュは消費されます。
func (h *PageHandler) render(c *gin.Context, status int, name, title string, data gin.H) {
	sess := session.Get(c)
	flashes := sess.PopFlashes()
	if len(flashes) > 0 {
		if err := h.sessions.Save(c); err != nil {
			log.Printf("Failed to save session: %v", err)
		}
	}
	data["Title"] = title
	data["Flashes"] = flashes
	data["CSRFToken"] = sess.CSRF
	data["CurrentYear"] = time.Now().Year()
	c.HTML(status, name, data)
}

// RenderError はエラーページを描画します。
func RenderError(c *gin.Context, status int, message string) {
	c.HTML(status, "error.html", gin.H{
		"Title":       fmt.Sprintf("Error %d", status),
		"Status":      status,
		"Message":     message,
		"CurrentYear": time.Now().Year(),
	})
}

func editPath(id int64) string {
	return fmt.Sprintf("/edit/%d", id)
}
