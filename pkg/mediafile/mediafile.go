// Package mediafile recognizes camera trap images and videos by their file extension
package mediafile

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
)

type Type string

const (
	TypeImage Type = "image"
	TypeVideo Type = "video"
)

var ImageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".tif", ".tiff"}
var VideoExtensions = []string{".mp4", ".avi", ".mov", ".mkv", ".wmv"}

func ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

func IsImage(path string) bool {
	return slices.Contains(ImageExtensions, ext(path))
}

func IsVideo(path string) bool {
	return slices.Contains(VideoExtensions, ext(path))
}

// Classify returns the media type of the file, or false if it is neither an image nor a video
func Classify(path string) (Type, bool) {
	switch {
	case IsImage(path):
		return TypeImage, true
	case IsVideo(path):
		return TypeVideo, true
	}
	return "", false
}

// List returns the full paths of all images and videos directly inside dir, sorted by name.
// Sub-directories are not searched.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	files := []string{}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if _, ok := Classify(e.Name()); ok {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	// os.ReadDir is already sorted by filename, but we make it explicit
	slices.Sort(files)
	return files, nil
}
