package services

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/camden-git/mediagallery/database"
	"github.com/camden-git/mediagallery/media"
	"github.com/camden-git/mediagallery/metrics"
	"github.com/camden-git/mediagallery/repository"
)

// AccountService removes user accounts.
type AccountService struct {
	store *database.Store
	users repository.UserRepository
	env   MediaEnv
}

func NewAccountService(store *database.Store, users repository.UserRepository, env MediaEnv) *AccountService {
	return &AccountService{store: store, users: users, env: env}
}

type AccountDeletionReport struct {
	UserID        int64    `json:"user_id"`
	Hard          bool     `json:"hard"`
	AlbumsDeleted int64    `json:"albums_deleted"`
	ImagesDeleted int64    `json:"images_deleted"`
	Errors        []string `json:"errors,omitempty"`
}

// DeleteAccount hides a user with everything they own; their favorites are
// kept. With hard set the files are removed from every tree and the rows,
// favorites included, are reaped.
func (s *AccountService) DeleteAccount(ctx context.Context, userID int64, hard bool) (AccountDeletionReport, error) {
	// a soft-deleted account can still be reaped
	exists, err := s.store.UserExists(ctx, userID, hard)
	if err != nil {
		return AccountDeletionReport{}, err
	}
	if !exists {
		return AccountDeletionReport{}, fmt.Errorf("%w: user %d", ErrNotFound, userID)
	}
	report := AccountDeletionReport{UserID: userID, Hard: hard}

	if !hard {
		err := s.store.WithTx(ctx, func(tx *database.Store) error {
			var err error
			if report.ImagesDeleted, err = tx.SoftDeleteImagesByUser(ctx, userID); err != nil {
				return err
			}
			if report.AlbumsDeleted, err = tx.SoftDeleteAlbumsByUser(ctx, userID); err != nil {
				return err
			}
			_, err = tx.SoftDeleteUser(ctx, userID)
			return err
		})
		if err != nil {
			return AccountDeletionReport{}, fmt.Errorf("failed to delete account %d: %w", userID, err)
		}
		log.Printf("accounts: user %d soft deleted (%d albums, %d images)", userID, report.AlbumsDeleted, report.ImagesDeleted)
		return report, nil
	}

	records, err := s.store.ListImageRecordsByUser(ctx, userID)
	if err != nil {
		return AccountDeletionReport{}, err
	}
	for _, rec := range records {
		for _, p := range []*string{rec.TrashOriginalPath, rec.TrashThumbnailPath} {
			if p == nil {
				continue
			}
			if err := s.env.removeFile(*p, "account_delete"); err != nil {
				report.Errors = append(report.Errors, err.Error())
			}
		}
	}
	albums, err := s.store.ListAlbumsByUser(ctx, userID)
	if err != nil {
		return AccountDeletionReport{}, err
	}
	report.AlbumsDeleted = int64(len(albums))
	report.ImagesDeleted = int64(len(records))

	layout := s.env.Layout
	prefix := media.UserPrefix(userID)
	for _, dir := range []string{
		layout.UserDir(userID),
		layout.UserThumbDir(userID),
		filepath.Join(layout.TrashUsersRoot, prefix),
		filepath.Join(layout.TrashThumbsRoot, prefix),
	} {
		if err := s.env.Files.RemoveTree(dir); err != nil {
			metrics.FilesystemErrors.WithLabelValues("account_delete").Inc()
			report.Errors = append(report.Errors, err.Error())
		}
	}

	if err := s.users.HardDelete(userID); err != nil {
		return AccountDeletionReport{}, err
	}
	log.Printf("accounts: user %d hard deleted (%d albums, %d images, %d filesystem errors)",
		userID, report.AlbumsDeleted, report.ImagesDeleted, len(report.Errors))
	return report, nil
}
