package models

import "time"

// Album represents a user's album in the database using GORM.
// It corresponds to the 'albums' table. Path mirrors the on-disk directory
// relative to the users root, e.g. "user_7/Vacation/Day1".
type Album struct {
	ID           int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       int64      `gorm:"not null;index" json:"user_id"`
	Name         string     `gorm:"not null" json:"name"`
	Path         string     `gorm:"not null" json:"path"`
	IsPublic     bool       `gorm:"not null;default:false" json:"is_public"`
	Description  *string    `gorm:"" json:"description,omitempty"`    // Nullable
	CoverImageID *int64     `gorm:"" json:"cover_image_id,omitempty"` // Nullable, must belong to this album
	ParentID     *int64     `gorm:"index" json:"parent_id,omitempty"` // Nullable, nil = top-level
	CreatedAt    time.Time  `gorm:"not null" json:"created_at"`
	DeletedAt    *time.Time `gorm:"index" json:"deleted_at,omitempty"` // soft delete marker, filtered explicitly
}

// TableName explicitly sets the table name for GORM.
func (Album) TableName() string {
	return "albums"
}

// IsDeleted reports whether the album has been soft-deleted.
func (a *Album) IsDeleted() bool {
	return a.DeletedAt != nil
}
