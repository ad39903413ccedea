package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/leafwise/plantid-community/models"
	"github.com/leafwise/plantid-community/utils"
)

// StatsController exposes site-wide aggregate numbers.
type StatsController struct {
	db *gorm.DB
}

// NewStatsController creates a StatsController.
func NewStatsController(db *gorm.DB) *StatsController {
	return &StatsController{db: db}
}

// Overview returns community-wide counters, cached for a minute.
func (s *StatsController) Overview(ctx *gin.Context) {
	const cacheKey = "cache:stats:overview"
	if raw, ok := utils.CacheGetBytes(cacheKey); ok {
		ctx.Data(http.StatusOK, "application/json", raw)
		return
	}

	var users, threads, posts, species, identifications int64
	s.db.Model(&models.User{}).Count(&users)
	s.db.Model(&models.Thread{}).Count(&threads)
	s.db.Model(&models.Post{}).Count(&posts)
	s.db.Model(&models.PlantSpecies{}).Count(&species)
	s.db.Model(&models.IdentificationRequest{}).Count(&identifications)

	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	var viewsToday int64
	s.db.Model(&models.PageView{}).Where("date = ?", today).Select("COALESCE(SUM(count), 0)").Scan(&viewsToday)

	payload := gin.H{
		"users":           users,
		"threads":         threads,
		"posts":           posts,
		"species":         species,
		"identifications": identifications,
		"views_today":     viewsToday,
	}
	utils.CacheSetJSON(cacheKey, wrapForCache(payload), time.Minute)
	utils.Success(ctx, payload)
}

// DailyViews returns per-day page view totals for the last N days (default 7,
// capped at 90).
func (s *StatsController) DailyViews(ctx *gin.Context) {
	days := 7
	if v := ctx.Query("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			if n > 90 {
				n = 90
			}
			days = n
		}
	}

	since := time.Now().AddDate(0, 0, -days)
	localMidnight := time.Date(since.Year(), since.Month(), since.Day(), 0, 0, 0, 0, since.Location())

	type dailyRow struct {
		Date  time.Time `json:"date"`
		Views int64     `json:"views"`
	}
	var rows []dailyRow
	err := s.db.Model(&models.PageView{}).
		Select("date, SUM(count) as views").
		Where("date >= ?", localMidnight).
		Group("date").
		Order("date asc").
		Scan(&rows).Error
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50060, "failed to aggregate page views")
		return
	}

	utils.Success(ctx, gin.H{"days": days, "daily": rows})
}
