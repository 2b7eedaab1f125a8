package repository

import (
	"github.com/camden-git/mediagallery/models"
)

// UserRepository defines the methods for user data operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id int64) (*models.User, error)
	GetByUsername(username string) (*models.User, error)
	Update(user *models.User) error
	ListAll() ([]models.User, error)

	// SoftDelete hides the account; HardDelete reaps it together with its
	// albums, images and favorites.
	SoftDelete(id int64) error
	HardDelete(id int64) error
}
