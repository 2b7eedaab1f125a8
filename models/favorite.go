package models

import "time"

// Favorite marks an image a user has starred. The pair is the primary key.
type Favorite struct {
	UserID    int64     `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	ImageID   int64     `gorm:"primaryKey;autoIncrement:false;index" json:"image_id"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

// TableName explicitly sets the table name for GORM.
func (Favorite) TableName() string {
	return "favorites"
}
