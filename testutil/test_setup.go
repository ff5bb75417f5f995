package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"

	"mini-task-manager/internal/config"
	"mini-task-manager/internal/database"
	"mini-task-manager/internal/models"
	"mini-task-manager/internal/repositories"
	"mini-task-manager/internal/routes"
	"mini-task-manager/internal/session"
)

// TestConfig はテスト用の設定を返します。
func TestConfig() *config.Config {
	cfg := config.Default()
	cfg.SecretKey = "test-secret-key"
	cfg.TasksPerPage = 10
	return cfg
}

// SetupTestRouter はインメモリリポジトリを使ったテスト用のGinルーターをセットアップします。
func SetupTestRouter(t *testing.T) (*gin.Engine, *MemoryTaskRepo) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	repo := NewMemoryTaskRepo()
	router, err := routes.NewRouter(repo, TestConfig())
	require.NoError(t, err)
	return router, repo
}

// SetupTestDB はテスト用のデータベース接続を確立し、tasksテーブルを空にします。
// TEST_DB_HOST が設定されていない場合はテストをスキップします。
func SetupTestDB(t *testing.T) (*sqlx.DB, *repositories.SQLTaskRepo) {
	t.Helper()
	_ = godotenv.Load("../../.env")

	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		t.Skip("TEST_DB_HOST is not set; skipping database test")
	}
	cfg := config.Database{
		Driver: os.Getenv("TEST_DB_DRIVER"),
		User:   os.Getenv("TEST_DB_USER"),
		Pass:   os.Getenv("TEST_DB_PASS"),
		Host:   host,
		Port:   os.Getenv("TEST_DB_PORT"),
		Name:   os.Getenv("TEST_DB_NAME"),
	}
	if cfg.Driver == "" {
		cfg.Driver = repositories.DriverMySQL
	}

	db, err := database.InitDB(cfg)
	if err != nil {
		t.Fatalf("Failed to connect test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec("DROP TABLE IF EXISTS tasks"); err != nil {
		t.Fatalf("Failed to drop tasks table: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, repositories.Migrate(ctx, db))
	log.Println("Successfully set up test database!")

	return db, repositories.NewSQLTaskRepo(db)
}

// FixedClock は呼ばれるたびにstepずつ進む時計です。
func FixedClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := current
		current = current.Add(step)
		return now
	}
}

// TaskResponse はAPIの {success, message, task} 形式のレスポンスです。
type TaskResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Error   string              `json:"error"`
	Errors  map[string][]string `json:"errors"`
	Task    *models.Task        `json:"task"`
}

// DoJSON はJSONボディ付きのリクエストを送ります。bodyがnilならボディなしです。
func DoJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

// CreateTestTask はAPI経由でタスクを作成します。
func CreateTestTask(t *testing.T, router http.Handler, title, description string, completed bool) *models.Task {
	t.Helper()
	resp := DoJSON(t, router, http.MethodPost, "/api/tasks", map[string]any{
		"title":       title,
		"description": description,
		"completed":   completed,
	})
	require.Equal(t, http.StatusCreated, resp.Code, "タスク作成に失敗しました: %s", resp.Body.String())

	var created TaskResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))
	require.NotNil(t, created.Task)
	return created.Task
}

// Browser はCookieとCSRFトークンを保持してHTML画面を操作します。
type Browser struct {
	t       *testing.T
	router  http.Handler
	cookies map[string]*http.Cookie
	csrf    string
}

// NewBrowser は新しいBrowserを作成します。
func NewBrowser(t *testing.T, router http.Handler) *Browser {
	return &Browser{t: t, router: router, cookies: make(map[string]*http.Cookie)}
}

// Do はCookieを付けてリクエストを送り、Set-Cookieを記録します。
func (b *Browser) Do(req *http.Request) *httptest.ResponseRecorder {
	b.t.Helper()
	for _, c := range b.cookies {
		req.AddCookie(c)
	}
	resp := httptest.NewRecorder()
	b.router.ServeHTTP(resp, req)
	for _, c := range resp.Result().Cookies() {
		b.cookies[c.Name] = c
	}
	return resp
}

// Get はGETリクエストを送ります。
func (b *Browser) Get(path string) *httptest.ResponseRecorder {
	b.t.Helper()
	return b.Do(httptest.NewRequest(http.MethodGet, path, nil))
}

// CSRFToken は画面からCSRFトークンを取得します。
func (b *Browser) CSRFToken() string {
	b.t.Helper()
	if b.csrf == "" {
		resp := b.Get("/add")
		require.Equal(b.t, http.StatusOK, resp.Code)
		token, ok := Document(b.t, resp).Find("input[name=csrf_token]").First().Attr("value")
		require.True(b.t, ok, "csrf_token input not found")
		b.csrf = token
	}
	return b.csrf
}

// PostForm はCSRFトークンを付けてフォームを送信します。
func (b *Browser) PostForm(path string, values url.Values) *httptest.ResponseRecorder {
	b.t.Helper()
	if values == nil {
		values = url.Values{}
	}
	if _, ok := values[session.CSRFFieldName]; !ok {
		values.Set(session.CSRFFieldName, b.CSRFToken())
	}
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.Do(req)
}

// Document はレスポンスボディをgoqueryでパースします。
func Document(t *testing.T, resp *httptest.ResponseRecorder) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body.Bytes()))
	require.NoError(t, err)
	return doc
}
