package controllers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/leafwise/plantid-community/middleware"
	"github.com/leafwise/plantid-community/models"
)

func forumRouter(db *gorm.DB) *gin.Engine {
	ctl := NewForumController(db)

	router := gin.New()
	router.GET("/api/v1/forum/categories", ctl.ListCategories)
	router.GET("/api/v1/forum/threads", ctl.ListThreads)
	router.GET("/api/v1/forum/threads/:id", ctl.GetThread)
	router.GET("/api/v1/forum/threads/:id/stats", ctl.ThreadStats)

	protected := router.Group("", middleware.AuthRequired())
	protected.POST("/api/v1/forum/threads", ctl.CreateThread)
	protected.PATCH("/api/v1/forum/threads/:id", ctl.UpdateThread)
	protected.DELETE("/api/v1/forum/threads/:id", ctl.DeleteThread)
	protected.POST("/api/v1/forum/threads/:id/posts", ctl.CreatePost)
	protected.DELETE("/api/v1/forum/posts/:postID", ctl.DeletePost)
	protected.POST("/api/v1/forum/posts/:postID/reactions", ctl.ToggleReaction)
	return router
}

func seedCategory(t *testing.T, db *gorm.DB) models.Category {
	t.Helper()
	category := models.Category{Name: "General", Slug: "general"}
	require.NoError(t, db.Create(&category).Error)
	return category
}

func TestThreadLifecycle(t *testing.T) {
	db := setupTest(t)
	router := forumRouter(db)
	category := seedCategory(t, db)
	author := createUser(t, db, "author")
	token := tokenFor(t, author)

	// Create
	w := performJSON(router, "POST", "/api/v1/forum/threads", gin.H{
		"category_id": category.ID,
		"title":       "What is eating my monstera?",
		"content":     "Holes in the leaves <script>bad()</script> overnight.",
	}, token)
	requireStatus(t, w, http.StatusOK)

	var created struct {
		Thread models.Thread `json:"thread"`
	}
	decodeData(t, w, &created)
	assert.NotContains(t, created.Thread.Content, "<script>")

	threadPath := fmt.Sprintf("/api/v1/forum/threads/%d", created.Thread.ID)

	// Read
	w = performJSON(router, "GET", threadPath, nil, "")
	requireStatus(t, w, http.StatusOK)

	// Update by author
	w = performJSON(router, "PATCH", threadPath, gin.H{"title": "What is eating my monstera leaves?"}, token)
	requireStatus(t, w, http.StatusOK)

	// Update by someone else is forbidden
	stranger := createUser(t, db, "stranger")
	w = performJSON(router, "PATCH", threadPath, gin.H{"title": "hijacked"}, tokenFor(t, stranger))
	requireStatus(t, w, http.StatusForbidden)

	// Delete
	w = performJSON(router, "DELETE", threadPath, nil, token)
	requireStatus(t, w, http.StatusOK)

	w = performJSON(router, "GET", threadPath, nil, "")
	requireStatus(t, w, http.StatusNotFound)
}

func TestCreateThreadRequiresAuthAndValidCategory(t *testing.T) {
	db := setupTest(t)
	router := forumRouter(db)
	seedCategory(t, db)
	user := createUser(t, db, "poster")

	w := performJSON(router, "POST", "/api/v1/forum/threads", gin.H{
		"category_id": 1,
		"title":       "No token here",
		"content":     "body",
	}, "")
	requireStatus(t, w, http.StatusUnauthorized)

	w = performJSON(router, "POST", "/api/v1/forum/threads", gin.H{
		"category_id": 999,
		"title":       "Bad category",
		"content":     "body",
	}, tokenFor(t, user))
	requireStatus(t, w, http.StatusBadRequest)
}

func TestListThreadsFiltersByCategory(t *testing.T) {
	db := setupTest(t)
	router := forumRouter(db)
	general := seedCategory(t, db)
	care := models.Category{Name: "Plant Care", Slug: "plant-care"}
	require.NoError(t, db.Create(&care).Error)
	user := createUser(t, db, "lister")

	for i, categoryID := range []uint{general.ID, general.ID, care.ID} {
		thread := models.Thread{
			UserID:     user.ID,
			CategoryID: categoryID,
			Title:      fmt.Sprintf("Thread %d", i),
			Content:    "content",
		}
		require.NoError(t, db.Create(&thread).Error)
	}

	w := performJSON(router, "GET", "/api/v1/forum/threads?category=plant-care", nil, "")
	requireStatus(t, w, http.StatusOK)

	var data struct {
		Threads    []models.Thread `json:"threads"`
		Pagination struct {
			Total int64 `json:"total"`
		} `json:"pagination"`
	}
	decodeData(t, w, &data)
	assert.Equal(t, int64(1), data.Pagination.Total)
	require.Len(t, data.Threads, 1)
	assert.Equal(t, care.ID, data.Threads[0].CategoryID)

	w = performJSON(router, "GET", "/api/v1/forum/threads?category=nope", nil, "")
	requireStatus(t, w, http.StatusNotFound)
}

func TestPostsAndLockedThreads(t *testing.T) {
	db := setupTest(t)
	router := forumRouter(db)
	category := seedCategory(t, db)
	user := createUser(t, db, "replier")
	token := tokenFor(t, user)

	thread := models.Thread{UserID: user.ID, CategoryID: category.ID, Title: "Open thread", Content: "c"}
	require.NoError(t, db.Create(&thread).Error)

	postPath := fmt.Sprintf("/api/v1/forum/threads/%d/posts", thread.ID)
	w := performJSON(router, "POST", postPath, gin.H{"content": "A reply"}, token)
	requireStatus(t, w, http.StatusOK)

	require.NoError(t, db.Model(&thread).Update("locked", true).Error)
	w = performJSON(router, "POST", postPath, gin.H{"content": "Too late"}, token)
	requireStatus(t, w, http.StatusForbidden)

	var replies int64
	db.Model(&models.Post{}).Where("thread_id = ?", thread.ID).Count(&replies)
	assert.Equal(t, int64(1), replies)
}

func TestReactionToggle(t *testing.T) {
	db := setupTest(t)
	router := forumRouter(db)
	category := seedCategory(t, db)
	user := createUser(t, db, "reactor")
	token := tokenFor(t, user)

	thread := models.Thread{UserID: user.ID, CategoryID: category.ID, Title: "T", Content: "c"}
	require.NoError(t, db.Create(&thread).Error)
	post := models.Post{ThreadID: thread.ID, UserID: user.ID, Content: "p"}
	require.NoError(t, db.Create(&post).Error)

	path := fmt.Sprintf("/api/v1/forum/posts/%d/reactions", post.ID)

	// First toggle adds.
	w := performJSON(router, "POST", path, gin.H{"kind": "helpful"}, token)
	requireStatus(t, w, http.StatusOK)
	var data struct {
		Reacted bool `json:"reacted"`
	}
	decodeData(t, w, &data)
	assert.True(t, data.Reacted)

	// Second toggle of the same kind removes.
	w = performJSON(router, "POST", path, gin.H{"kind": "helpful"}, token)
	requireStatus(t, w, http.StatusOK)
	decodeData(t, w, &data)
	assert.False(t, data.Reacted)

	// Unknown kinds are rejected.
	w = performJSON(router, "POST", path, gin.H{"kind": "angry"}, token)
	requireStatus(t, w, http.StatusBadRequest)
}

func TestDeleteThreadCascades(t *testing.T) {
	db := setupTest(t)
	router := forumRouter(db)
	category := seedCategory(t, db)
	user := createUser(t, db, "owner")
	token := tokenFor(t, user)

	thread := models.Thread{UserID: user.ID, CategoryID: category.ID, Title: "Doomed", Content: "c"}
	require.NoError(t, db.Create(&thread).Error)
	post := models.Post{ThreadID: thread.ID, UserID: user.ID, Content: "p"}
	require.NoError(t, db.Create(&post).Error)
	reaction := models.Reaction{PostID: post.ID, UserID: user.ID, Kind: "like"}
	require.NoError(t, db.Create(&reaction).Error)

	w := performJSON(router, "DELETE", fmt.Sprintf("/api/v1/forum/threads/%d", thread.ID), nil, token)
	requireStatus(t, w, http.StatusOK)

	var posts, reactions int64
	db.Model(&models.Post{}).Where("thread_id = ?", thread.ID).Count(&posts)
	db.Model(&models.Reaction{}).Where("post_id = ?", post.ID).Count(&reactions)
	assert.Zero(t, posts)
	assert.Zero(t, reactions)
}

func TestThreadStats(t *testing.T) {
	db := setupTest(t)
	router := forumRouter(db)
	category := seedCategory(t, db)
	author := createUser(t, db, "op")
	replierOne := createUser(t, db, "replier1")
	replierTwo := createUser(t, db, "replier2")

	thread := models.Thread{UserID: author.ID, CategoryID: category.ID, Title: "Busy thread", Content: "c"}
	require.NoError(t, db.Create(&thread).Error)

	for _, uid := range []uint{replierOne.ID, replierTwo.ID, replierOne.ID} {
		require.NoError(t, db.Create(&models.Post{ThreadID: thread.ID, UserID: uid, Content: "r"}).Error)
	}

	w := performJSON(router, "GET", fmt.Sprintf("/api/v1/forum/threads/%d/stats", thread.ID), nil, "")
	requireStatus(t, w, http.StatusOK)

	var data struct {
		Replies      int64 `json:"replies"`
		Participants int   `json:"participants"`
		Views        int64 `json:"views"`
	}
	decodeData(t, w, &data)
	assert.Equal(t, int64(3), data.Replies)
	assert.Equal(t, 3, data.Participants) // author + two distinct repliers
	assert.Zero(t, data.Views)
}

func TestAdminCanModerate(t *testing.T) {
	db := setupTest(t)
	router := forumRouter(db)
	category := seedCategory(t, db)
	author := createUser(t, db, "regular")
	admin := createUser(t, db, "admin")

	thread := models.Thread{UserID: author.ID, CategoryID: category.ID, Title: "Needs pin", Content: "c"}
	require.NoError(t, db.Create(&thread).Error)

	path := fmt.Sprintf("/api/v1/forum/threads/%d", thread.ID)
	w := performJSON(router, "PATCH", path, gin.H{"pinned": true, "locked": true}, tokenFor(t, admin))
	requireStatus(t, w, http.StatusOK)

	var stored models.Thread
	require.NoError(t, db.First(&stored, thread.ID).Error)
	assert.True(t, stored.Pinned)
	assert.True(t, stored.Locked)
}
