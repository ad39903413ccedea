package utils

import (
	"os"
	"time"

	"github.com/leafwise/plantid-community/config"
	"github.com/leafwise/plantid-community/models"
)

// StartImageSweeper launches a background loop that removes identification
// images past their retention deadline. The request rows stay; only the
// stored image file and its path are cleared. Best-effort.
func StartImageSweeper(interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			sweepExpiredImages()
		}
	}()
}

func sweepExpiredImages() {
	db := config.DB()
	var expired []models.IdentificationRequest
	if err := db.Where("expire_at <= ? AND image_path <> ''", time.Now()).
		Limit(500).Find(&expired).Error; err != nil {
		if Sugar != nil {
			Sugar.Warnf("image sweep query failed: %v", err)
		}
		return
	}
	for _, req := range expired {
		if err := os.Remove(req.ImagePath); err != nil && !os.IsNotExist(err) {
			if Sugar != nil {
				Sugar.Warnf("image sweep remove failed path=%s err=%v", req.ImagePath, err)
			}
			continue
		}
		if err := db.Model(&models.IdentificationRequest{}).
			Where("id = ?", req.ID).
			Updates(map[string]interface{}{"image_path": "", "image_url": ""}).Error; err != nil {
			if Sugar != nil {
				Sugar.Warnf("image sweep update failed id=%d err=%v", req.ID, err)
			}
		}
	}
	if len(expired) > 0 && Sugar != nil {
		Sugar.Infof("image sweep removed %d expired identification images", len(expired))
	}
}
