package database

import (
	"fmt"

	"github.com/pulsefeed/pulsefeed/pkg/models"
	"gorm.io/gorm"
)

// Migrate applies the schema for all application models
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.AuthToken{},
		&models.Follow{},
		&models.Tag{},
		&models.Post{},
		&models.Comment{},
		&models.Like{},
		&models.Notification{},
		&models.Book{},
		&models.BookReview{},
		&models.ReadingList{},
	); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
