package utils

import (
	"os"
	"time"

	"github.com/ideahub/ideahub/config"
	"github.com/ideahub/ideahub/models"
)

// StartUploadCleaner launches a background goroutine that periodically deletes
// expired uploaded files recorded in the database. Best-effort; failures are
// logged and retried on the next tick.
func StartUploadCleaner(interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		for {
			// Sleep first to avoid racing right at startup
			time.Sleep(interval)
			db := config.DB()
			if db == nil {
				continue
			}
			if !config.Get().UploadsSelfDestructEnabled {
				continue
			}
			var items []models.UploadedFile
			if err := db.Where("expire_at <= ?", time.Now()).Limit(100).Find(&items).Error; err != nil {
				Sugar.Warnf("upload cleaner query failed: %v", err)
				continue
			}
			for _, it := range items {
				if it.FilePath != "" {
					_ = os.Remove(it.FilePath)
				}
				// Remove the row even if file deletion failed
				if err := db.Delete(&models.UploadedFile{}, it.ID).Error; err != nil {
					Sugar.Warnf("upload cleaner delete row failed: %v", err)
				}
			}
		}
	}()
}
