package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/leafwise/plantid-community/middleware"
	"github.com/leafwise/plantid-community/models"
	"github.com/leafwise/plantid-community/utils"
)

// ForumController handles categories, threads, posts and reactions.
type ForumController struct {
	db *gorm.DB
}

// NewForumController creates a ForumController.
func NewForumController(db *gorm.DB) *ForumController {
	return &ForumController{db: db}
}

const (
	forumCachePrefix = "cache:forum:"
	forumListTTL     = 5 * time.Minute
)

// ListCategories returns all forum categories.
func (f *ForumController) ListCategories(ctx *gin.Context) {
	if b, ok := utils.CacheGetBytes(forumCachePrefix + "categories"); ok {
		ctx.Data(http.StatusOK, "application/json", b)
		return
	}

	var categories []models.Category
	if err := f.db.Order("id asc").Find(&categories).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50020, "failed to list categories")
		return
	}

	payload := gin.H{"categories": categories}
	utils.CacheSetJSON(forumCachePrefix+"categories", wrapForCache(payload), time.Hour)
	utils.Success(ctx, payload)
}

// ListThreads returns paginated threads, optionally filtered by category slug
// or a title search term. Pinned threads sort first, then by latest activity.
// Search responses are not cached since the term space is unbounded.
func (f *ForumController) ListThreads(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	category := strings.TrimSpace(ctx.Query("category"))
	search := strings.TrimSpace(ctx.Query("q"))

	cacheKey := ""
	if search == "" {
		cacheKey = forumCachePrefix + "threads:" + category + ":" + ctx.Query("page") + ":" + ctx.Query("page_size")
		if b, ok := utils.CacheGetBytes(cacheKey); ok {
			ctx.Data(http.StatusOK, "application/json", b)
			return
		}
	}

	query := f.db.Model(&models.Thread{})
	if category != "" {
		var cat models.Category
		if err := f.db.Where("slug = ?", category).First(&cat).Error; err != nil {
			utils.Error(ctx, http.StatusNotFound, 40420, "category not found")
			return
		}
		query = query.Where("category_id = ?", cat.ID)
	}
	if search != "" {
		query = query.Where("title "+likeOperator(f.db)+" ?", "%"+search+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50021, "failed to count threads")
		return
	}

	var threads []models.Thread
	err := query.
		Preload("User").
		Preload("Category").
		Order("pinned desc, updated_at desc").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&threads).Error
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50022, "failed to list threads")
		return
	}

	payload := gin.H{"threads": threads, "pagination": paginationMeta(page, pageSize, total)}
	if cacheKey != "" {
		utils.CacheSetJSON(cacheKey, wrapForCache(payload), forumListTTL)
	}
	utils.Success(ctx, payload)
}

// GetThread returns a thread with its posts and reaction counts.
func (f *ForumController) GetThread(ctx *gin.Context) {
	id := ctx.Param("id")

	var thread models.Thread
	err := f.db.
		Preload("User").
		Preload("Category").
		Preload("Posts", func(db *gorm.DB) *gorm.DB { return db.Order("created_at asc") }).
		Preload("Posts.User").
		Preload("Posts.Reactions").
		First(&thread, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			utils.Error(ctx, http.StatusNotFound, 40421, "thread not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50023, "failed to get thread")
		return
	}

	utils.Success(ctx, gin.H{"thread": thread})
}

// CreateThread creates a thread. Content HTML is sanitized.
func (f *ForumController) CreateThread(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var req struct {
		CategoryID uint   `json:"category_id" binding:"required"`
		Title      string `json:"title" binding:"required,min=3,max=200"`
		Content    string `json:"content" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}

	var category models.Category
	if err := f.db.First(&category, req.CategoryID).Error; err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40021, "unknown category")
		return
	}

	thread := models.Thread{
		UserID:     userID,
		CategoryID: req.CategoryID,
		Title:      strings.TrimSpace(req.Title),
		Content:    utils.Sanitize(req.Content),
	}
	if err := f.db.Create(&thread).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50024, "failed to create thread")
		return
	}

	utils.InvalidateByPrefix(forumCachePrefix + "threads:")
	utils.Success(ctx, gin.H{"thread": thread})
}

// UpdateThread lets the author edit title/content; admins may also pin or lock.
func (f *ForumController) UpdateThread(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var thread models.Thread
	if err := f.db.First(&thread, ctx.Param("id")).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40421, "thread not found")
		return
	}

	isAdmin := middleware.IsAdmin(getUsername(ctx))
	if thread.UserID != userID && !isAdmin {
		utils.Error(ctx, http.StatusForbidden, 40320, "not the thread author")
		return
	}

	var req struct {
		Title   *string `json:"title"`
		Content *string `json:"content"`
		Pinned  *bool   `json:"pinned"`
		Locked  *bool   `json:"locked"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40022, "invalid request payload")
		return
	}

	updates := map[string]interface{}{}
	if req.Title != nil && strings.TrimSpace(*req.Title) != "" {
		updates["title"] = strings.TrimSpace(*req.Title)
	}
	if req.Content != nil {
		updates["content"] = utils.Sanitize(*req.Content)
	}
	if isAdmin {
		if req.Pinned != nil {
			updates["pinned"] = *req.Pinned
		}
		if req.Locked != nil {
			updates["locked"] = *req.Locked
		}
	}
	if len(updates) == 0 {
		utils.Error(ctx, http.StatusBadRequest, 40023, "nothing to update")
		return
	}

	if err := f.db.Model(&thread).Updates(updates).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50025, "failed to update thread")
		return
	}

	utils.InvalidateByPrefix(forumCachePrefix + "threads:")
	utils.Success(ctx, gin.H{"thread": thread})
}

// DeleteThread removes a thread; posts and reactions go with it.
func (f *ForumController) DeleteThread(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var thread models.Thread
	if err := f.db.First(&thread, ctx.Param("id")).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40421, "thread not found")
		return
	}

	if thread.UserID != userID && !middleware.IsAdmin(getUsername(ctx)) {
		utils.Error(ctx, http.StatusForbidden, 40320, "not the thread author")
		return
	}

	err := f.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id IN (?)",
			tx.Model(&models.Post{}).Select("id").Where("thread_id = ?", thread.ID),
		).Delete(&models.Reaction{}).Error; err != nil {
			return err
		}
		if err := tx.Where("thread_id = ?", thread.ID).Delete(&models.Post{}).Error; err != nil {
			return err
		}
		return tx.Delete(&thread).Error
	})
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50026, "failed to delete thread")
		return
	}

	utils.InvalidateByPrefix(forumCachePrefix + "threads:")
	utils.Success(ctx, gin.H{"message": "thread deleted"})
}

// CreatePost replies to a thread. Locked threads reject new posts.
func (f *ForumController) CreatePost(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var thread models.Thread
	if err := f.db.First(&thread, ctx.Param("id")).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40421, "thread not found")
		return
	}
	if thread.Locked {
		utils.Error(ctx, http.StatusForbidden, 40321, "thread is locked")
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40024, "invalid request payload")
		return
	}

	post := models.Post{
		ThreadID: thread.ID,
		UserID:   userID,
		Content:  utils.Sanitize(req.Content),
	}
	if err := f.db.Create(&post).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50027, "failed to create post")
		return
	}

	// Replies bump the thread in activity-ordered listings.
	f.db.Model(&thread).UpdateColumn("updated_at", time.Now())

	utils.InvalidateByPrefix(forumCachePrefix + "threads:")
	utils.Success(ctx, gin.H{"post": post})
}

// DeletePost removes a reply; author or admin only.
func (f *ForumController) DeletePost(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var post models.Post
	if err := f.db.First(&post, ctx.Param("postID")).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40422, "post not found")
		return
	}

	if post.UserID != userID && !middleware.IsAdmin(getUsername(ctx)) {
		utils.Error(ctx, http.StatusForbidden, 40322, "not the post author")
		return
	}

	err := f.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", post.ID).Delete(&models.Reaction{}).Error; err != nil {
			return err
		}
		return tx.Delete(&post).Error
	})
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50028, "failed to delete post")
		return
	}

	utils.Success(ctx, gin.H{"message": "post deleted"})
}

// ToggleReaction adds a reaction of the given kind, or removes it if the
// same user already reacted with that kind.
func (f *ForumController) ToggleReaction(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var req struct {
		Kind string `json:"kind" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40025, "invalid request payload")
		return
	}
	kind := strings.ToLower(strings.TrimSpace(req.Kind))
	if !models.ValidReactionKind(kind) {
		utils.Error(ctx, http.StatusBadRequest, 40026, "unknown reaction kind")
		return
	}

	var post models.Post
	if err := f.db.First(&post, ctx.Param("postID")).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40422, "post not found")
		return
	}

	var existing models.Reaction
	err := f.db.Where("post_id = ? AND user_id = ? AND kind = ?", post.ID, userID, kind).First(&existing).Error
	switch {
	case err == nil:
		if err := f.db.Delete(&existing).Error; err != nil {
			utils.Error(ctx, http.StatusInternalServerError, 50029, "failed to remove reaction")
			return
		}
		utils.Success(ctx, gin.H{"reacted": false, "kind": kind})
	case err == gorm.ErrRecordNotFound:
		reaction := models.Reaction{PostID: post.ID, UserID: userID, Kind: kind}
		if err := f.db.Create(&reaction).Error; err != nil {
			utils.Error(ctx, http.StatusInternalServerError, 50030, "failed to add reaction")
			return
		}
		utils.Success(ctx, gin.H{"reacted": true, "kind": kind})
	default:
		utils.Error(ctx, http.StatusInternalServerError, 50031, "failed to toggle reaction")
	}
}

// ThreadStats returns view counts and reply totals for a thread.
func (f *ForumController) ThreadStats(ctx *gin.Context) {
	id := ctx.Param("id")

	var thread models.Thread
	if err := f.db.First(&thread, id).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40421, "thread not found")
		return
	}

	var replies int64
	f.db.Model(&models.Post{}).Where("thread_id = ?", thread.ID).Count(&replies)

	var posterIDs []uint
	f.db.Model(&models.Post{}).Where("thread_id = ?", thread.ID).Pluck("user_id", &posterIDs)
	participants := len(utils.UniqueUint(append(posterIDs, thread.UserID)))

	var views int64
	path := "/api/v1/forum/threads/" + id
	f.db.Model(&models.PageView{}).Where("path = ?", path).Select("COALESCE(SUM(count), 0)").Scan(&views)

	utils.Success(ctx, gin.H{
		"thread_id":    thread.ID,
		"replies":      replies,
		"participants": participants,
		"views":        views,
	})
}
