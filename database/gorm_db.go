package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/camden-git/mediagallery/models"
)

const defaultBusyTimeoutMs = 5000

// DSN adds the pragmas every connection in the pool needs.
func DSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return fmt.Sprintf("%s?_busy_timeout=%d&_journal_mode=WAL&_foreign_keys=on", path, defaultBusyTimeoutMs)
}

// InitGormDB initializes and returns a GORM database instance
func InitGormDB(dataSourceName string, logLevel logger.LogLevel) (*gorm.DB, error) {
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // io writer
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)

	db, err := gorm.Open(sqlite.Open(DSN(dataSourceName)), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database using GORM: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB from GORM: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Println("GORM Database initialized successfully at", dataSourceName)
	return db, nil
}

// catalogIndexes are the uniqueness rules GORM tags cannot express.
// Album names are unique per owner and parent across live and deleted rows,
// with top-level albums sharing parent key 0. Paths and image filenames are
// only unique while live.
var catalogIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_albums_owner_parent_name ON albums(user_id, IFNULL(parent_id, 0), name)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_albums_owner_path_live ON albums(user_id, path) WHERE deleted_at IS NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_images_filename_live ON images(filename) WHERE deleted_at IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_images_trash_expiry ON images(trash_expiry) WHERE trash_expiry IS NOT NULL`,
}

// AutoMigrateModels migrates the catalog tables and creates the partial and
// expression indexes on top of them.
func AutoMigrateModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Album{},
		&models.Image{},
		&models.Favorite{},
	)
	if err != nil {
		return fmt.Errorf("GORM AutoMigrate failed: %w", err)
	}
	for _, stmt := range catalogIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create catalog index: %w", err)
		}
	}
	log.Println("GORM AutoMigrate completed successfully.")
	return nil
}

// SchemaInfo records optional columns, detected once at startup so older
// catalogs keep working.
type SchemaInfo struct {
	HasTrashColumns bool
	HasAlbumParents bool
}

// FullSchema is what AutoMigrateModels produces.
var FullSchema = SchemaInfo{HasTrashColumns: true, HasAlbumParents: true}

func DetectSchema(ctx context.Context, db *sql.DB) (SchemaInfo, error) {
	imageCols, err := tableColumns(ctx, db, TableImages)
	if err != nil {
		return SchemaInfo{}, err
	}
	albumCols, err := tableColumns(ctx, db, TableAlbums)
	if err != nil {
		return SchemaInfo{}, err
	}
	info := SchemaInfo{
		HasTrashColumns: imageCols["trash_original_path"] && imageCols["trash_thumbnail_path"] && imageCols["trash_expiry"],
		HasAlbumParents: albumCols["parent_id"],
	}
	log.Printf("database: schema capabilities: trash=%t album_parents=%t", info.HasTrashColumns, info.HasAlbumParents)
	return info, nil
}

func tableColumns(ctx context.Context, db *sql.DB, table Table) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s: %w", table, err)
		}
		cols[name] = true
	}
	return cols, rows.Err()
}
