package database

import (
	"sort"
	"strings"

	"github.com/facette/natsort"

	"github.com/camden-git/mediagallery/models"
)

const (
	SortFilenameAsc = "filename_asc"
	SortFilenameNat = "filename_nat"
	SortDateDesc    = "date_desc"
	SortDateAsc     = "date_asc"
)

const DefaultSortOrder = SortFilenameNat

// IsValidSortOrder checks if a string is a valid sort order constant
func IsValidSortOrder(order string) bool {
	switch order {
	case SortFilenameAsc, SortDateDesc, SortDateAsc, SortFilenameNat:
		return true
	default:
		return false
	}
}

// orderByClause maps a sort order to SQL. Natural order has no SQL form and
// is applied after the rows are read.
func orderByClause(order string) []string {
	switch order {
	case SortDateDesc:
		return []string{"uploaded_at DESC", "id DESC"}
	case SortDateAsc:
		return []string{"uploaded_at ASC", "id ASC"}
	default:
		return []string{"filename ASC", "id ASC"}
	}
}

// SortImagesNatural orders images so "img2" sorts before "img10".
func SortImagesNatural(images []models.Image) {
	sort.SliceStable(images, func(i, j int) bool {
		a, b := strings.ToLower(images[i].Filename), strings.ToLower(images[j].Filename)
		if a == b {
			return images[i].ID < images[j].ID
		}
		return natsort.Compare(a, b)
	})
}
