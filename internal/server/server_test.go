package server_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/pulsefeed/pulsefeed/internal/accounts"
	"github.com/pulsefeed/pulsefeed/internal/library"
	"github.com/pulsefeed/pulsefeed/internal/notifications"
	"github.com/pulsefeed/pulsefeed/internal/posts"
	"github.com/pulsefeed/pulsefeed/internal/server"
	"github.com/pulsefeed/pulsefeed/pkg/models"
)

func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.AuthToken{},
		&models.Follow{},
		&models.Tag{},
		&models.Post{},
		&models.Comment{},
		&models.Like{},
		&models.Notification{},
		&models.Book{},
		&models.BookReview{},
		&models.ReadingList{},
	))

	notificationSvc, err := notifications.NewService(logger, db, nil)
	assert.NoError(t, err)
	accountsSvc, err := accounts.NewService(logger, db, nil, notificationSvc, accounts.Options{BcryptCost: 4})
	assert.NoError(t, err)
	postsSvc, err := posts.NewService(logger, db, notificationSvc)
	assert.NoError(t, err)
	librarySvc, err := library.NewService(logger, db)
	assert.NoError(t, err)

	srv := server.NewServer(logger, nil, accountsSvc, postsSvc, notificationSvc, librarySvc, nil, nil)
	return srv.Router(), db
}

func doJSON(t *testing.T, router *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		assert.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Token "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func registerUser(t *testing.T, router *gin.Engine, username string) (string, string) {
	w := doJSON(t, router, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username":         username,
		"email":            username + "@example.com",
		"password":         "str0ngpass",
		"password_confirm": "str0ngpass",
	})
	assert.Equal(t, http.StatusCreated, w.Code)

	var resp models.LoginResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Token, resp.User.ID.String()
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t)
	w := doJSON(t, router, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPublicReads(t *testing.T) {
	router, _ := newTestRouter(t)

	// Post and book reads are open to anonymous clients
	w := doJSON(t, router, http.MethodGet, "/api/v1/posts", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/books", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// A presented token is still validated even on a read
	w = doJSON(t, router, http.MethodGet, "/api/v1/posts", "0000000000000000000000000000000000000000", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthRequired(t *testing.T) {
	router, _ := newTestRouter(t)

	// Writes and personal views stay behind authentication
	w := doJSON(t, router, http.MethodPost, "/api/v1/posts", "", gin.H{"title": "t", "content": "c"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/posts/feed", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/users", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/notifications", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/books", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRegisterLoginLogout(t *testing.T) {
	router, _ := newTestRouter(t)
	token, _ := registerUser(t, router, "alice")

	// Bearer scheme is accepted too
	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/auth/logout", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/users/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRegisterValidationStatus(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username":         "bob",
		"email":            "bob@example.com",
		"password":         "str0ngpass",
		"password_confirm": "different1",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPostLifecycleOverHTTP(t *testing.T) {
	router, _ := newTestRouter(t)
	aliceToken, _ := registerUser(t, router, "alice")
	bobToken, _ := registerUser(t, router, "bob")

	w := doJSON(t, router, http.MethodPost, "/api/v1/posts", aliceToken, gin.H{
		"title":   "hello",
		"content": "first post",
	})
	assert.Equal(t, http.StatusCreated, w.Code)
	var post models.Post
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &post))

	// Non-author update is forbidden
	w = doJSON(t, router, http.MethodPut, "/api/v1/posts/"+post.ID.String(), bobToken, gin.H{"title": "hijack"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Double like is a conflict
	w = doJSON(t, router, http.MethodPost, "/api/v1/posts/"+post.ID.String()+"/like", bobToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = doJSON(t, router, http.MethodPost, "/api/v1/posts/"+post.ID.String()+"/like", bobToken, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Missing post is not found
	w = doJSON(t, router, http.MethodGet, "/api/v1/posts/00000000-0000-0000-0000-000000000001", aliceToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Alice has a like notification
	w = doJSON(t, router, http.MethodGet, "/api/v1/notifications/unread-count", aliceToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var counts map[string]int64
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &counts))
	assert.Equal(t, int64(1), counts["unread_count"])

	w = doJSON(t, router, http.MethodDelete, "/api/v1/posts/"+post.ID.String(), aliceToken, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestPaginationEnvelope(t *testing.T) {
	router, _ := newTestRouter(t)
	token, _ := registerUser(t, router, "alice")

	for i := 0; i < 15; i++ {
		w := doJSON(t, router, http.MethodPost, "/api/v1/posts", token, gin.H{
			"title":   fmt.Sprintf("post %d", i),
			"content": "c",
		})
		assert.Equal(t, http.StatusCreated, w.Code)
	}

	w := doJSON(t, router, http.MethodGet, "/api/v1/posts?page=1&page_size=10", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var env struct {
		Count    int64             `json:"count"`
		Next     *string           `json:"next"`
		Previous *string           `json:"previous"`
		Results  []json.RawMessage `json:"results"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, int64(15), env.Count)
	assert.NotNil(t, env.Next)
	assert.Nil(t, env.Previous)
	assert.Len(t, env.Results, 10)
}

func TestBookRoleEnforcement(t *testing.T) {
	router, db := newTestRouter(t)
	memberToken, _ := registerUser(t, router, "member1")
	librarianToken, librarianID := registerUser(t, router, "shelver")
	assert.NoError(t, db.Model(&models.User{}).Where("id = ?", librarianID).Update("role", "librarian").Error)

	book := gin.H{
		"title":            "Effective Go",
		"author":           "Gopher",
		"isbn":             "9780000000021",
		"publication_date": "2012-03-01",
	}

	// Members cannot manage the shelf
	w := doJSON(t, router, http.MethodPost, "/api/v1/books", memberToken, book)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/books", librarianToken, book)
	assert.Equal(t, http.StatusCreated, w.Code)
	var created models.Book
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	// Everyone can read the shelf
	w = doJSON(t, router, http.MethodGet, "/api/v1/books/"+created.ID.String(), memberToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Members review; a second review is a conflict
	w = doJSON(t, router, http.MethodPost, "/api/v1/books/"+created.ID.String()+"/reviews", memberToken, gin.H{
		"rating":      5,
		"review_text": "great",
	})
	assert.Equal(t, http.StatusCreated, w.Code)
	w = doJSON(t, router, http.MethodPost, "/api/v1/books/"+created.ID.String()+"/reviews", memberToken, gin.H{
		"rating":      3,
		"review_text": "again",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPrivateReadingListHidden(t *testing.T) {
	router, _ := newTestRouter(t)
	aliceToken, _ := registerUser(t, router, "alice")
	bobToken, _ := registerUser(t, router, "bob")

	w := doJSON(t, router, http.MethodPost, "/api/v1/reading-lists", aliceToken, gin.H{
		"name": "secret picks",
	})
	assert.Equal(t, http.StatusCreated, w.Code)
	var list models.ReadingList
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))

	w = doJSON(t, router, http.MethodGet, "/api/v1/reading-lists/"+list.ID.String(), aliceToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Private lists are invisible to other users
	w = doJSON(t, router, http.MethodGet, "/api/v1/reading-lists/"+list.ID.String(), bobToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFollowAndFeedOverHTTP(t *testing.T) {
	router, _ := newTestRouter(t)
	aliceToken, _ := registerUser(t, router, "alice")
	bobToken, bobID := registerUser(t, router, "bob")

	w := doJSON(t, router, http.MethodPost, "/api/v1/posts", bobToken, gin.H{
		"title":   "from bob",
		"content": "c",
	})
	assert.Equal(t, http.StatusCreated, w.Code)

	// Empty feed before following
	w = doJSON(t, router, http.MethodGet, "/api/v1/posts/feed", aliceToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var env struct {
		Count int64 `json:"count"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, int64(0), env.Count)

	w = doJSON(t, router, http.MethodPost, "/api/v1/users/"+bobID+"/follow", aliceToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/posts/feed", aliceToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, int64(1), env.Count)

	// Self-follow is a bad request
	var me models.Profile
	w = doJSON(t, router, http.MethodGet, "/api/v1/users/me", aliceToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	w = doJSON(t, router, http.MethodPost, "/api/v1/users/"+me.User.ID.String()+"/follow", aliceToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
