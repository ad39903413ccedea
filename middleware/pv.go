package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/leafwise/plantid-community/models"
)

// viewedPrefixes are the content detail paths worth counting. Everything
// else (health, stats, list endpoints, writes) would only skew the numbers.
var viewedPrefixes = []string{
	"/api/v1/forum/threads/",
	"/api/v1/blog/posts/",
	"/api/v1/species/",
}

// PageViewRecorder records successful GET views of content detail pages,
// aggregated per day and path.
func PageViewRecorder(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method != "GET" {
			return
		}
		status := c.Writer.Status()
		if status < 200 || status >= 400 {
			return
		}

		path := c.Request.URL.Path
		tracked := false
		for _, prefix := range viewedPrefixes {
			if strings.HasPrefix(path, prefix) && len(path) > len(prefix) {
				tracked = true
				break
			}
		}
		if !tracked || strings.HasSuffix(path, "/stats") {
			return
		}

		// Local midnight aligns with the DATE column.
		now := time.Now().In(time.Local)
		localMidnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

		// Atomic upsert to avoid duplicate key errors under concurrency
		_ = db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "date"}, {Name: "path"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"count": gorm.Expr("count + 1"), "updated_at": time.Now()}),
		}).Create(&models.PageView{Date: localMidnight, Path: path, Count: 1}).Error
	}
}
