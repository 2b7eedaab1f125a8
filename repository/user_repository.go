package repository

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/camden-git/mediagallery/models"
)

type GormUserRepository struct {
	db *gorm.DB
}

func NewGormUserRepository(db *gorm.DB) UserRepository {
	return &GormUserRepository{db: db}
}

func (r *GormUserRepository) Create(user *models.User) error {
	return r.db.Create(user).Error
}

func (r *GormUserRepository) GetByID(id int64) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *GormUserRepository) GetByUsername(username string) (*models.User, error) {
	var user models.User
	if err := r.db.Where("username = ?", username).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *GormUserRepository) Update(user *models.User) error {
	return r.db.Save(user).Error
}

// ListAll returns the users that are not soft-deleted.
func (r *GormUserRepository) ListAll() ([]models.User, error) {
	var users []models.User
	err := r.db.Order("id ASC").Find(&users).Error
	return users, err
}

func (r *GormUserRepository) SoftDelete(id int64) error {
	result := r.db.Delete(&models.User{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete user %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// HardDelete removes the user row and every catalog row hanging off it.
// Files on disk are the caller's job.
func (r *GormUserRepository) HardDelete(id int64) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		albumIDs := tx.Model(&models.Album{}).Select("id").Where("user_id = ?", id)
		imageIDs := tx.Model(&models.Image{}).Select("id").Where("album_id IN (?)", albumIDs)

		if err := tx.Where("user_id = ? OR image_id IN (?)", id, imageIDs).Delete(&models.Favorite{}).Error; err != nil {
			return fmt.Errorf("failed to delete favorites of user %d: %w", id, err)
		}
		if err := tx.Where("album_id IN (?)", albumIDs).Delete(&models.Image{}).Error; err != nil {
			return fmt.Errorf("failed to delete images of user %d: %w", id, err)
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.Album{}).Error; err != nil {
			return fmt.Errorf("failed to delete albums of user %d: %w", id, err)
		}
		if err := tx.Unscoped().Delete(&models.User{}, id).Error; err != nil {
			return fmt.Errorf("failed to delete user %d: %w", id, err)
		}
		return nil
	})
}
