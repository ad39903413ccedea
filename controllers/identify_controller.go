package controllers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/leafwise/plantid-community/config"
	"github.com/leafwise/plantid-community/middleware"
	"github.com/leafwise/plantid-community/models"
	"github.com/leafwise/plantid-community/services"
	"github.com/leafwise/plantid-community/utils"
)

// PlantIdentifier is the slice of the identification engine the controller
// needs. Tests substitute a stub.
type PlantIdentifier interface {
	Identify(ctx context.Context, in services.IdentifyInput) (*services.MergedResult, error)
	ProviderCount() int
}

// IdentifyController accepts plant photos, runs them through the providers
// (or the image-hash cache) and records the attempt.
type IdentifyController struct {
	db         *gorm.DB
	identifier PlantIdentifier
}

// NewIdentifyController creates an IdentifyController.
func NewIdentifyController(db *gorm.DB, identifier PlantIdentifier) *IdentifyController {
	return &IdentifyController{db: db, identifier: identifier}
}

var allowedImageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// Identify handles POST /identify: multipart form with an "image" file,
// optional "organs" hints and an "include_health" flag.
func (ic *IdentifyController) Identify(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	cfg := config.Get()
	if ic.identifier == nil || ic.identifier.ProviderCount() == 0 {
		utils.Error(ctx, http.StatusServiceUnavailable, 50340, "identification is not configured")
		return
	}

	fileHeader, err := ctx.FormFile("image")
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40040, "image file is required")
		return
	}
	if fileHeader.Size > cfg.MaxImageBytes {
		utils.Error(ctx, http.StatusRequestEntityTooLarge, 41340, "image exceeds the size limit")
		return
	}
	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if !allowedImageExts[ext] {
		utils.Error(ctx, http.StatusBadRequest, 40041, "unsupported image format")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40042, "failed to read image")
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(io.LimitReader(file, cfg.MaxImageBytes+1))
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40042, "failed to read image")
		return
	}
	if int64(len(raw)) > cfg.MaxImageBytes {
		utils.Error(ctx, http.StatusRequestEntityTooLarge, 41340, "image exceeds the size limit")
		return
	}
	if len(raw) == 0 {
		utils.Error(ctx, http.StatusBadRequest, 40043, "empty image")
		return
	}

	organs := parseOrgans(ctx.PostFormArray("organs"), ctx.PostForm("organs"))
	includeHealth := strings.EqualFold(ctx.PostForm("include_health"), "true") || ctx.PostForm("include_health") == "1"

	imageHash := services.HashImage(raw)
	cacheKey := services.ResultCacheKey(cfg.IdentifySchemaVersion, imageHash, includeHealth)

	if cached, hit := services.CachedResult(cacheKey); hit {
		request := ic.persistRequest(userID, imageHash, organs, includeHealth, cached, models.IdentificationCached, true)
		utils.Success(ctx, gin.H{"request": request, "result": cached, "from_cache": true})
		return
	}

	result, err := ic.identifier.Identify(ctx.Request.Context(), services.IdentifyInput{
		Image:         raw,
		Organs:        organs,
		IncludeHealth: includeHealth,
	})
	if err != nil {
		if errors.Is(err, services.ErrAllProvidersFailed) {
			ic.persistRequest(userID, imageHash, organs, includeHealth, nil, models.IdentificationFailed, false)
			utils.Error(ctx, http.StatusBadGateway, 50240, "all identification providers failed")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50041, "identification failed unexpectedly")
		return
	}

	status := models.IdentificationCompleted
	if result.Partial {
		status = models.IdentificationPartial
	}

	request := ic.persistRequest(userID, imageHash, organs, includeHealth, result, status, false)
	ic.storeImage(request, ext, raw)

	ttl := time.Duration(cfg.IdentifyCacheTTLHours) * time.Hour
	services.StoreResult(cacheKey, result, ttl)

	utils.Success(ctx, gin.H{"request": request, "result": result, "from_cache": false})
}

// persistRequest writes the request row plus merged results, upserting the
// species catalog along the way. Persistence failures are logged, never
// surfaced: the user already has their answer.
func (ic *IdentifyController) persistRequest(userID uint, imageHash string, organs []string, includeHealth bool, result *services.MergedResult, status string, fromCache bool) *models.IdentificationRequest {
	cfg := config.Get()

	providers := ""
	if result != nil {
		providers = strings.Join(result.Providers, ",")
	}

	request := models.IdentificationRequest{
		PublicID:      uuid.NewString(),
		UserID:        userID,
		ImageHash:     imageHash,
		Organs:        strings.Join(organs, ","),
		IncludeHealth: includeHealth,
		Status:        status,
		Providers:     providers,
		FromCache:     fromCache,
		ExpireAt:      time.Now().Add(time.Duration(cfg.ImageRetentionDays) * 24 * time.Hour),
	}
	if err := ic.db.Create(&request).Error; err != nil {
		utils.Sugar.Errorw("failed to persist identification request", "error", err, "user_id", userID)
		return &request
	}

	if result == nil {
		return &request
	}

	for _, s := range result.Suggestions {
		speciesID := ic.upsertSpecies(s)
		row := models.IdentificationResult{
			RequestID:      request.ID,
			SpeciesID:      speciesID,
			ScientificName: s.ScientificName,
			Probability:    s.Probability,
			Source:         s.Source,
		}
		if err := ic.db.Create(&row).Error; err != nil {
			utils.Sugar.Errorw("failed to persist identification result", "error", err, "request_id", request.ID)
			continue
		}
		request.Results = append(request.Results, row)
	}

	if result.Health != nil {
		for _, d := range result.Health.Diseases {
			ic.upsertDisease(d)
		}
	}

	return &request
}

// upsertDisease grows the disease reference from health assessments.
func (ic *IdentifyController) upsertDisease(d services.DiseaseSuggestion) {
	name := strings.ToLower(strings.TrimSpace(d.Name))
	if name == "" {
		return
	}

	var disease models.PlantDisease
	err := ic.db.Where("name = ?", name).First(&disease).Error
	if err == gorm.ErrRecordNotFound {
		disease = models.PlantDisease{Name: name, Description: d.Description}
		if err := ic.db.Create(&disease).Error; err != nil {
			utils.Sugar.Warnw("failed to create disease", "error", err, "name", name)
		}
		return
	}
	if err == nil && disease.Description == "" && d.Description != "" {
		_ = ic.db.Model(&disease).Update("description", d.Description).Error
	}
}

// upsertSpecies keeps the species catalog growing from provider answers.
// Existing rows only gain detail, they are never overwritten.
func (ic *IdentifyController) upsertSpecies(s services.Suggestion) *uint {
	name := strings.TrimSpace(s.ScientificName)
	if name == "" {
		return nil
	}

	var species models.PlantSpecies
	err := ic.db.Where("scientific_name = ?", name).First(&species).Error
	if err == gorm.ErrRecordNotFound {
		species = models.PlantSpecies{
			ScientificName: name,
			CommonNames:    strings.Join(s.CommonNames, ","),
			Family:         s.Family,
			Genus:          s.Genus,
			Description:    s.Description,
			WikiURL:        s.WikiURL,
		}
		if err := ic.db.Create(&species).Error; err != nil {
			utils.Sugar.Warnw("failed to create species", "error", err, "name", name)
			return nil
		}
		return &species.ID
	}
	if err != nil {
		return nil
	}

	updates := map[string]interface{}{}
	if species.CommonNames == "" && len(s.CommonNames) > 0 {
		updates["common_names"] = strings.Join(s.CommonNames, ",")
	}
	if species.Family == "" && s.Family != "" {
		updates["family"] = s.Family
	}
	if species.Genus == "" && s.Genus != "" {
		updates["genus"] = s.Genus
	}
	if species.Description == "" && s.Description != "" {
		updates["description"] = s.Description
	}
	if species.WikiURL == "" && s.WikiURL != "" {
		updates["wiki_url"] = s.WikiURL
	}
	if len(updates) > 0 {
		_ = ic.db.Model(&species).Updates(updates).Error
	}
	return &species.ID
}

// storeImage writes the uploaded photo under the retention directory and
// records its public URL. Failing to store the image does not fail the
// request.
func (ic *IdentifyController) storeImage(request *models.IdentificationRequest, ext string, raw []byte) {
	cfg := config.Get()
	if cfg.UploadDir == "" {
		return
	}
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		utils.Sugar.Warnw("failed to create upload dir", "error", err)
		return
	}

	filename := request.PublicID + ext
	fullPath := filepath.Join(cfg.UploadDir, filename)
	if err := os.WriteFile(fullPath, raw, 0o644); err != nil {
		utils.Sugar.Warnw("failed to store identification image", "error", err)
		return
	}

	request.ImagePath = fullPath
	request.ImageURL = "/static/uploads/" + filename
	_ = ic.db.Model(request).Updates(map[string]interface{}{
		"image_path": request.ImagePath,
		"image_url":  request.ImageURL,
	}).Error
}

// History lists the authenticated user's identification requests.
func (ic *IdentifyController) History(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))

	query := ic.db.Model(&models.IdentificationRequest{}).Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50042, "failed to count history")
		return
	}

	var requests []models.IdentificationRequest
	err := query.
		Preload("Results").
		Preload("Results.Species").
		Order("created_at desc").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&requests).Error
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50043, "failed to list history")
		return
	}

	utils.Success(ctx, gin.H{"requests": requests, "pagination": paginationMeta(page, pageSize, total)})
}

// GetRequest returns a single identification request by public ID.
// Only the owner or an admin may read it.
func (ic *IdentifyController) GetRequest(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	publicID := ctx.Param("publicID")
	if _, err := uuid.Parse(publicID); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40044, "invalid request id")
		return
	}

	var request models.IdentificationRequest
	err := ic.db.
		Preload("Results").
		Preload("Results.Species").
		Where("public_id = ?", publicID).
		First(&request).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			utils.Error(ctx, http.StatusNotFound, 40440, "request not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50044, "failed to get request")
		return
	}

	if request.UserID != userID && !middleware.IsAdmin(getUsername(ctx)) {
		utils.Error(ctx, http.StatusForbidden, 40340, "not your identification request")
		return
	}

	utils.Success(ctx, gin.H{"request": request})
}

// parseOrgans merges repeated form fields and comma separated values into a
// normalized, deduplicated hint list.
func parseOrgans(values []string, single string) []string {
	if len(values) == 0 && single != "" {
		values = []string{single}
	}
	seen := map[string]bool{}
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			organ := strings.ToLower(strings.TrimSpace(part))
			if organ == "" || seen[organ] {
				continue
			}
			seen[organ] = true
			out = append(out, organ)
		}
	}
	return out
}
