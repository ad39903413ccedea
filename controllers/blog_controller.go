package controllers

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/leafwise/plantid-community/models"
	"github.com/leafwise/plantid-community/utils"
)

// BlogController serves the editorial blog. Reads are public, writes are
// restricted to administrators at the routing layer.
type BlogController struct {
	db *gorm.DB
}

// NewBlogController creates a BlogController.
func NewBlogController(db *gorm.DB) *BlogController {
	return &BlogController{db: db}
}

const blogCachePrefix = "cache:blog:"

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// ListPosts returns published posts newest first.
func (b *BlogController) ListPosts(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))

	cacheKey := blogCachePrefix + "list:" + ctx.Query("page") + ":" + ctx.Query("page_size")
	if raw, ok := utils.CacheGetBytes(cacheKey); ok {
		ctx.Data(http.StatusOK, "application/json", raw)
		return
	}

	query := b.db.Model(&models.BlogPost{}).Where("published = ?", true)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50040, "failed to count posts")
		return
	}

	var posts []models.BlogPost
	err := query.
		Preload("Author").
		Order("published_at desc").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&posts).Error
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50041, "failed to list posts")
		return
	}

	// Listing shows intros only; blocks are fetched on the detail endpoint.
	summaries := make([]gin.H, 0, len(posts))
	for _, p := range posts {
		summaries = append(summaries, gin.H{
			"id":           p.ID,
			"slug":         p.Slug,
			"title":        p.Title,
			"intro":        p.Intro,
			"author":       gin.H{"id": p.Author.ID, "username": p.Author.Username},
			"published_at": p.PublishedAt,
		})
	}

	payload := gin.H{"posts": summaries, "pagination": paginationMeta(page, pageSize, total)}
	utils.CacheSetJSON(cacheKey, wrapForCache(payload), 5*time.Minute)
	utils.Success(ctx, payload)
}

// GetPost returns a published post by slug, blocks included.
func (b *BlogController) GetPost(ctx *gin.Context) {
	slug := ctx.Param("slug")

	cacheKey := blogCachePrefix + "post:" + slug
	if raw, ok := utils.CacheGetBytes(cacheKey); ok {
		ctx.Data(http.StatusOK, "application/json", raw)
		return
	}

	var post models.BlogPost
	err := b.db.Preload("Author").Where("slug = ? AND published = ?", slug, true).First(&post).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			utils.Error(ctx, http.StatusNotFound, 40430, "post not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50042, "failed to get post")
		return
	}

	payload := gin.H{"post": post}
	utils.CacheSetJSON(cacheKey, wrapForCache(payload), 10*time.Minute)
	utils.Success(ctx, payload)
}

type blogPostRequest struct {
	Slug      string         `json:"slug" binding:"required"`
	Title     string         `json:"title" binding:"required,min=3,max=200"`
	Intro     string         `json:"intro"`
	Blocks    []models.Block `json:"blocks" binding:"required"`
	Published bool           `json:"published"`
}

func validateBlocks(blocks []models.Block) (models.BlockList, string) {
	if len(blocks) == 0 {
		return nil, "post needs at least one block"
	}
	out := make(models.BlockList, 0, len(blocks))
	for _, blk := range blocks {
		kind := strings.ToLower(strings.TrimSpace(blk.Type))
		if !models.ValidBlockType(kind) {
			return nil, "unknown block type: " + blk.Type
		}
		value := blk.Value
		switch kind {
		case "heading", "paragraph", "quote":
			value = utils.Sanitize(value)
		case "image":
			value = strings.TrimSpace(value)
		}
		if value == "" {
			return nil, "empty value in " + kind + " block"
		}
		out = append(out, models.Block{Type: kind, Value: value})
	}
	return out, ""
}

// CreatePost creates a blog post. Admin only.
func (b *BlogController) CreatePost(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var req blogPostRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40030, "invalid request payload")
		return
	}

	slug := strings.ToLower(strings.TrimSpace(req.Slug))
	if !slugPattern.MatchString(slug) {
		utils.Error(ctx, http.StatusBadRequest, 40031, "slug must be lowercase words separated by hyphens")
		return
	}

	blocks, problem := validateBlocks(req.Blocks)
	if problem != "" {
		utils.Error(ctx, http.StatusBadRequest, 40032, problem)
		return
	}

	var existing models.BlogPost
	if err := b.db.Where("slug = ?", slug).First(&existing).Error; err == nil {
		utils.Error(ctx, http.StatusConflict, 40930, "slug already in use")
		return
	}

	post := models.BlogPost{
		AuthorID:  userID,
		Slug:      slug,
		Title:     strings.TrimSpace(req.Title),
		Intro:     utils.Sanitize(req.Intro),
		Blocks:    blocks,
		Published: req.Published,
	}
	if req.Published {
		now := time.Now()
		post.PublishedAt = &now
	}
	if err := b.db.Create(&post).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50043, "failed to create post")
		return
	}

	utils.InvalidateByPrefix(blogCachePrefix)
	utils.Success(ctx, gin.H{"post": post})
}

// UpdatePost updates an existing post by slug. Admin only.
func (b *BlogController) UpdatePost(ctx *gin.Context) {
	var post models.BlogPost
	if err := b.db.Where("slug = ?", ctx.Param("slug")).First(&post).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40430, "post not found")
		return
	}

	var req struct {
		Title     *string         `json:"title"`
		Intro     *string         `json:"intro"`
		Blocks    *[]models.Block `json:"blocks"`
		Published *bool           `json:"published"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40033, "invalid request payload")
		return
	}

	updates := map[string]interface{}{}
	if req.Title != nil && strings.TrimSpace(*req.Title) != "" {
		updates["title"] = strings.TrimSpace(*req.Title)
	}
	if req.Intro != nil {
		updates["intro"] = utils.Sanitize(*req.Intro)
	}
	if req.Blocks != nil {
		blocks, problem := validateBlocks(*req.Blocks)
		if problem != "" {
			utils.Error(ctx, http.StatusBadRequest, 40032, problem)
			return
		}
		updates["blocks"] = blocks
	}
	if req.Published != nil {
		updates["published"] = *req.Published
		if *req.Published && post.PublishedAt == nil {
			now := time.Now()
			updates["published_at"] = &now
		}
	}
	if len(updates) == 0 {
		utils.Error(ctx, http.StatusBadRequest, 40034, "nothing to update")
		return
	}

	if err := b.db.Model(&post).Updates(updates).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50044, "failed to update post")
		return
	}

	utils.InvalidateByPrefix(blogCachePrefix)
	utils.Success(ctx, gin.H{"post": post})
}

// DeletePost removes a post by slug. Admin only.
func (b *BlogController) DeletePost(ctx *gin.Context) {
	var post models.BlogPost
	if err := b.db.Where("slug = ?", ctx.Param("slug")).First(&post).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40430, "post not found")
		return
	}

	if err := b.db.Delete(&post).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50045, "failed to delete post")
		return
	}

	utils.InvalidateByPrefix(blogCachePrefix)
	utils.Success(ctx, gin.H{"message": "post deleted"})
}
