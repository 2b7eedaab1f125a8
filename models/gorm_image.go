package models

import "time"

type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

// Image represents a media item (photo or video) in the database using GORM.
// It corresponds to the 'images' table.
type Image struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AlbumID     int64     `gorm:"not null;index" json:"album_id"`
	Filename    string    `gorm:"not null" json:"filename"` // relative to the users root for new rows
	MediaType   MediaType `gorm:"type:text;not null;default:image" json:"media_type"`
	MimeType    *string   `gorm:"" json:"mime_type,omitempty"`
	IsPublic    bool      `gorm:"not null;default:false" json:"is_public"`
	Rotation    int       `gorm:"not null;default:0" json:"rotation"` // degrees clockwise, [0,360)
	Description *string   `gorm:"" json:"description,omitempty"`
	UploadedAt  time.Time `gorm:"not null" json:"uploaded_at"`

	DeletedAt          *time.Time `gorm:"index" json:"deleted_at,omitempty"`
	TrashOriginalPath  *string    `gorm:"" json:"trash_original_path,omitempty"`
	TrashThumbnailPath *string    `gorm:"" json:"trash_thumbnail_path,omitempty"`
	TrashExpiry        *time.Time `gorm:"index" json:"trash_expiry,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (Image) TableName() string {
	return "images"
}

// InTrash reports whether the image still has files waiting in the trash area.
func (i *Image) InTrash() bool {
	return i.DeletedAt != nil && (i.TrashOriginalPath != nil || i.TrashThumbnailPath != nil)
}

// NormalizeRotation reduces any angle into [0,360).
func NormalizeRotation(degrees int) int {
	return ((degrees % 360) + 360) % 360
}
