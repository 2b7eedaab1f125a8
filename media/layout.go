package media

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

const FavoritesDirName = "favorites"

// Layout maps album paths and stored filenames to absolute locations. It only
// builds strings; callers create parent directories before writing.
type Layout struct {
	UsersRoot       string
	ThumbsRoot      string
	TrashUsersRoot  string
	TrashThumbsRoot string
	ThumbURLPrefix  string
}

// UserPrefix is the top-level directory of a user's tree, relative to the users root.
func UserPrefix(userID int64) string {
	return fmt.Sprintf("user_%d", userID)
}

func trimAlbumPath(albumPath string) string {
	return strings.Trim(filepath.ToSlash(albumPath), "/")
}

// userPrefixOf returns the "user_<id>" segment an album path starts with.
func userPrefixOf(albumPath string) string {
	p := trimAlbumPath(albumPath)
	if i := strings.IndexByte(p, '/'); i >= 0 {
		p = p[:i]
	}
	if !strings.HasPrefix(p, "user_") {
		return ""
	}
	return p
}

// RelativeName returns the users-root-relative name of a stored file. New rows
// already store this form; legacy rows hold a bare filename which is resolved
// inside the album directory.
func (l Layout) RelativeName(albumPath, filename string) string {
	name := path.Clean(filepath.ToSlash(filename))
	if prefix := userPrefixOf(albumPath); prefix != "" && strings.HasPrefix(name, prefix+"/") {
		return name
	}
	return path.Join(trimAlbumPath(albumPath), path.Base(name))
}

func (l Layout) OriginalPath(albumPath, filename string) string {
	return filepath.Join(l.UsersRoot, filepath.FromSlash(l.RelativeName(albumPath, filename)))
}

func (l Layout) ThumbnailPath(albumPath, filename string) string {
	return filepath.Join(l.ThumbsRoot, filepath.FromSlash(trimAlbumPath(albumPath)), path.Base(filepath.ToSlash(filename)))
}

// AltThumbnailPath is where a thumbnail lands when it mirrors the file's own
// relative name instead of the album path. Both schemes exist on disk.
func (l Layout) AltThumbnailPath(albumPath, filename string) string {
	return filepath.Join(l.ThumbsRoot, filepath.FromSlash(l.RelativeName(albumPath, filename)))
}

func (l Layout) TrashOriginalPath(relName string) string {
	return filepath.Join(l.TrashUsersRoot, filepath.FromSlash(path.Clean("/" + filepath.ToSlash(relName))))
}

func (l Layout) TrashThumbnailPath(albumPath, filename string) string {
	return filepath.Join(l.TrashThumbsRoot, filepath.FromSlash(trimAlbumPath(albumPath)), path.Base(filepath.ToSlash(filename)))
}

func (l Layout) AlbumDir(albumPath string) string {
	return filepath.Join(l.UsersRoot, filepath.FromSlash(trimAlbumPath(albumPath)))
}

func (l Layout) AlbumThumbDir(albumPath string) string {
	return filepath.Join(l.ThumbsRoot, filepath.FromSlash(trimAlbumPath(albumPath)))
}

func (l Layout) UserDir(userID int64) string {
	return filepath.Join(l.UsersRoot, UserPrefix(userID))
}

func (l Layout) UserThumbDir(userID int64) string {
	return filepath.Join(l.ThumbsRoot, UserPrefix(userID))
}

func (l Layout) FavoritesDir(userID int64) string {
	return filepath.Join(l.UserDir(userID), FavoritesDirName)
}

// RelativeToUsersRoot converts an absolute path under the users root into the
// slash-separated form stored in the catalog.
func (l Layout) RelativeToUsersRoot(absPath string) (string, error) {
	rel, err := filepath.Rel(l.UsersRoot, absPath)
	if err != nil {
		return "", fmt.Errorf("failed to relativize %s: %w", absPath, err)
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("path %s is outside the users root", absPath)
	}
	return rel, nil
}

// ThumbnailURL is the public URL of a thumbnail served by the asset server.
func (l Layout) ThumbnailURL(albumPath, filename string) string {
	segments := strings.Split(trimAlbumPath(albumPath), "/")
	segments = append(segments, path.Base(filepath.ToSlash(filename)))
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return l.ThumbURLPrefix + strings.Join(segments, "/")
}
