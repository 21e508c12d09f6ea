package logging

import (
	"log/slog"
	"time"

	"github.com/gvargas9/smartterapist/internal/models"
	"gorm.io/gorm"
)

const logRetention = 30 * 24 * time.Hour

// StartCleanup prunes system_logs rows past the retention window, once
// at startup and then daily, until done is closed.
func StartCleanup(db *gorm.DB, done chan struct{}) {
	go func() {
		sweep(db)
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sweep(db)
			case <-done:
				return
			}
		}
	}()
}

func sweep(db *gorm.DB) {
	cutoff := time.Now().Add(-logRetention)
	result := db.Where("timestamp < ?", cutoff).Delete(&models.SystemLog{})
	if result.Error != nil {
		slog.Error("log retention sweep failed", "error", result.Error)
		return
	}
	if result.RowsAffected > 0 {
		slog.Info("log retention sweep removed rows", "deleted", result.RowsAffected)
	}
}
