package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/leafwise/plantid-community/models"
	"github.com/leafwise/plantid-community/utils"
)

// SpeciesController serves the species and disease catalogs built up from
// provider answers and editorial curation.
type SpeciesController struct {
	db *gorm.DB
}

// NewSpeciesController creates a SpeciesController.
func NewSpeciesController(db *gorm.DB) *SpeciesController {
	return &SpeciesController{db: db}
}

const speciesCachePrefix = "cache:species:"

// Search finds species by scientific or common name.
func (s *SpeciesController) Search(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	term := strings.TrimSpace(ctx.Query("q"))
	family := strings.TrimSpace(ctx.Query("family"))

	query := s.db.Model(&models.PlantSpecies{})
	if term != "" {
		// Served by the trigram GIN indexes in production.
		pattern := "%" + term + "%"
		op := likeOperator(s.db)
		query = query.Where("scientific_name "+op+" ? OR common_names "+op+" ?", pattern, pattern)
	}
	if family != "" {
		query = query.Where("family = ?", family)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50050, "failed to count species")
		return
	}

	var species []models.PlantSpecies
	err := query.
		Order("scientific_name asc").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&species).Error
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50051, "failed to search species")
		return
	}

	utils.Success(ctx, gin.H{"species": species, "pagination": paginationMeta(page, pageSize, total)})
}

// Get returns a single species by ID, cached.
func (s *SpeciesController) Get(ctx *gin.Context) {
	id := ctx.Param("id")

	cacheKey := speciesCachePrefix + id
	if raw, ok := utils.CacheGetBytes(cacheKey); ok {
		ctx.Data(http.StatusOK, "application/json", raw)
		return
	}

	var species models.PlantSpecies
	if err := s.db.First(&species, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			utils.Error(ctx, http.StatusNotFound, 40450, "species not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50052, "failed to get species")
		return
	}

	var identifications int64
	s.db.Model(&models.IdentificationResult{}).Where("species_id = ?", species.ID).Count(&identifications)

	payload := gin.H{"species": species, "identification_count": identifications}
	utils.CacheSetJSON(cacheKey, wrapForCache(payload), time.Hour)
	utils.Success(ctx, payload)
}

// ListDiseases returns the known plant diseases.
func (s *SpeciesController) ListDiseases(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	term := strings.TrimSpace(ctx.Query("q"))

	query := s.db.Model(&models.PlantDisease{})
	if term != "" {
		query = query.Where("name "+likeOperator(s.db)+" ?", "%"+term+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50053, "failed to count diseases")
		return
	}

	var diseases []models.PlantDisease
	err := query.
		Order("name asc").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&diseases).Error
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50054, "failed to list diseases")
		return
	}

	utils.Success(ctx, gin.H{"diseases": diseases, "pagination": paginationMeta(page, pageSize, total)})
}
