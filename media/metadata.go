package media

import (
	"fmt"
	"image"
	"log"
	"os"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
)

// helper to safely get and convert a rational tag (like Aperture, FocalLength)
func getRational(exifData *exif.Exif, tagName exif.FieldName) *float64 {
	tag, err := exifData.Get(tagName)
	if err != nil || tag == nil {
		return nil
	}
	num, den, err := tag.Rat2(0)
	if err != nil || den == 0 {
		valInt, errInt := tag.Int(0)
		if errInt == nil {
			fVal := float64(valInt)
			return &fVal
		}
		return nil
	}
	val := float64(num) / float64(den)
	return &val
}

func getInt(exifData *exif.Exif, tagName exif.FieldName) *int {
	tag, err := exifData.Get(tagName)
	if err != nil || tag == nil {
		return nil
	}
	val, err := tag.Int(0)
	if err != nil {
		return nil
	}
	return &val
}

// getString trims the NUL padding cameras leave on ASCII tags
func getString(exifData *exif.Exif, tagName exif.FieldName) *string {
	tag, err := exifData.Get(tagName)
	if err != nil || tag == nil {
		return nil
	}
	val, err := tag.StringVal()
	if err != nil {
		val = tag.String()
	}
	val = strings.TrimSpace(strings.TrimRight(val, "\x00"))
	if val == "" {
		return nil
	}
	return &val
}

func getShutterSpeed(exifData *exif.Exif) *string {
	tag, err := exifData.Get(exif.ExposureTime)
	if err != nil || tag == nil {
		return nil
	}
	num, den, err := tag.Rat2(0)
	if err != nil || den == 0 {
		return nil
	}

	if num == 1 && den > 1 {
		s := fmt.Sprintf("1/%d", den)
		return &s
	}
	val := float64(num) / float64(den)
	var s string
	if val >= 1.0 {
		s = fmt.Sprintf("%.1fs", val)
	} else {
		s = fmt.Sprintf("%.4fs", val)
	}
	return &s
}

// FormatCoordinates renders a signed decimal position with hemisphere letters.
func FormatCoordinates(lat, long float64) string {
	latRef, longRef := "N", "E"
	if lat < 0 {
		latRef, lat = "S", -lat
	}
	if long < 0 {
		longRef, long = "W", -long
	}
	return fmt.Sprintf("%.6f°%s, %.6f°%s", lat, latRef, long, longRef)
}

// GetImageMetadata extracts dimensions and EXIF details. It never fails: any
// field it cannot read is left nil. TakenAt falls back to the file's
// modification time.
func GetImageMetadata(filePath string) *Metadata {
	meta := &Metadata{}

	info, statErr := os.Stat(filePath)
	defer func() {
		if meta.TakenAt == nil && statErr == nil {
			ts := info.ModTime().Unix()
			meta.TakenAt = &ts
		}
	}()

	file, err := os.Open(filePath)
	if err != nil {
		log.Printf("metadata: Could not open %s: %v", filePath, err)
		return meta
	}
	defer file.Close()

	if config, _, err := image.DecodeConfig(file); err == nil {
		w, h := config.Width, config.Height
		meta.Width = &w
		meta.Height = &h
	} else {
		log.Printf("metadata: Warning - Could not decode config for dimensions of %s: %v", filePath, err)
	}

	if _, err := file.Seek(0, 0); err != nil {
		return meta
	}

	exifData, err := exif.Decode(file)
	if err != nil {
		// not necessarily a problem, many files carry no EXIF
		return meta
	}

	meta.Aperture = getRational(exifData, exif.FNumber)
	meta.ShutterSpeed = getShutterSpeed(exifData)
	meta.ISO = getInt(exifData, exif.ISOSpeedRatings)
	meta.FocalLength = getRational(exifData, exif.FocalLength)
	meta.LensModel = getString(exifData, exif.LensModel)
	meta.CameraMake = getString(exifData, exif.Make)
	meta.CameraModel = getString(exifData, exif.Model)

	if dt, err := exifData.DateTime(); err == nil {
		ts := dt.Unix()
		meta.TakenAt = &ts
	}

	// LatLong combines the DMS rationals with the N/S and E/W refs
	if lat, long, err := exifData.LatLong(); err == nil {
		formatted := FormatCoordinates(lat, long)
		meta.Latitude = &lat
		meta.Longitude = &long
		meta.GPSFormatted = &formatted
	}

	return meta
}
