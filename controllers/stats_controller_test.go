package controllers

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/leafwise/plantid-community/models"
)

func statsRouter(db *gorm.DB) *gin.Engine {
	ctl := NewStatsController(db)

	router := gin.New()
	router.GET("/api/v1/stats/overview", ctl.Overview)
	router.GET("/api/v1/stats/daily-views", ctl.DailyViews)
	return router
}

func TestStatsOverview(t *testing.T) {
	db := setupTest(t)
	router := statsRouter(db)

	user := createUser(t, db, "statuser")
	category := models.Category{Name: "General", Slug: "general"}
	require.NoError(t, db.Create(&category).Error)
	thread := models.Thread{UserID: user.ID, CategoryID: category.ID, Title: "T", Content: "c"}
	require.NoError(t, db.Create(&thread).Error)
	require.NoError(t, db.Create(&models.Post{ThreadID: thread.ID, UserID: user.ID, Content: "p"}).Error)

	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	require.NoError(t, db.Create(&models.PageView{Date: today, Path: "/api/v1/forum/threads/1", Count: 4}).Error)

	w := performJSON(router, "GET", "/api/v1/stats/overview", nil, "")
	requireStatus(t, w, http.StatusOK)

	var data struct {
		Users      int64 `json:"users"`
		Threads    int64 `json:"threads"`
		Posts      int64 `json:"posts"`
		ViewsToday int64 `json:"views_today"`
	}
	decodeData(t, w, &data)
	assert.Equal(t, int64(1), data.Users)
	assert.Equal(t, int64(1), data.Threads)
	assert.Equal(t, int64(1), data.Posts)
	assert.Equal(t, int64(4), data.ViewsToday)
}

func TestStatsDailyViews(t *testing.T) {
	db := setupTest(t)
	router := statsRouter(db)

	now := time.Now()
	day := func(offset int) time.Time {
		d := now.AddDate(0, 0, offset)
		return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
	}

	// Two paths today, one yesterday, one outside the 7-day window.
	require.NoError(t, db.Create(&models.PageView{Date: day(0), Path: "/a", Count: 3}).Error)
	require.NoError(t, db.Create(&models.PageView{Date: day(0), Path: "/b", Count: 2}).Error)
	require.NoError(t, db.Create(&models.PageView{Date: day(-1), Path: "/a", Count: 1}).Error)
	require.NoError(t, db.Create(&models.PageView{Date: day(-30), Path: "/a", Count: 9}).Error)

	w := performJSON(router, "GET", "/api/v1/stats/daily-views", nil, "")
	requireStatus(t, w, http.StatusOK)

	var data struct {
		Days  int `json:"days"`
		Daily []struct {
			Views int64 `json:"views"`
		} `json:"daily"`
	}
	decodeData(t, w, &data)
	assert.Equal(t, 7, data.Days)
	require.Len(t, data.Daily, 2)
	assert.Equal(t, int64(1), data.Daily[0].Views) // yesterday
	assert.Equal(t, int64(5), data.Daily[1].Views) // today, both paths summed
}
