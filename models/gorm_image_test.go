package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeRotation(t *testing.T) {
	for d := -1080; d <= 1080; d += 15 {
		got := NormalizeRotation(d)
		assert.GreaterOrEqual(t, got, 0)
		assert.Less(t, got, 360)
		assert.Zero(t, (got-d)%360, "rotation %d normalised to %d", d, got)
	}
	assert.Equal(t, 270, NormalizeRotation(-90))
	assert.Equal(t, 90, NormalizeRotation(450))
	assert.Equal(t, 0, NormalizeRotation(0))
}

func TestImageInTrash(t *testing.T) {
	img := Image{}
	assert.False(t, img.InTrash())

	p := "/trash/users/user_1/a.jpg"
	img.TrashOriginalPath = &p
	assert.False(t, img.InTrash())

	img.DeletedAt = &img.UploadedAt
	assert.True(t, img.InTrash())
}
