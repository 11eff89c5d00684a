package device

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var videoExts = map[string]bool{
	".mp4": true, ".mov": true, ".m4v": true, ".3gp": true,
	".mkv": true, ".avi": true, ".webm": true, ".mts": true,
}

var photoExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".heic": true, ".heif": true,
	".gif": true, ".webp": true, ".dng": true, ".raw": true, ".bmp": true,
	".tif": true, ".tiff": true,
}

// ClassifyName derives the media type from a file name. Anything that is not a
// known video extension counts as a photo.
func ClassifyName(name string) MediaType {
	if videoExts[strings.ToLower(filepath.Ext(name))] {
		return MediaVideo
	}
	return MediaPhoto
}

// IsMediaName reports whether name has a photo or video extension
func IsMediaName(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return videoExts[ext] || photoExts[ext]
}

// ClassifyFile classifies a locally readable file. Known extensions win;
// otherwise the content is sniffed. ok is false when the file is neither an
// image nor a video.
func ClassifyFile(path string) (MediaType, bool) {
	if IsMediaName(path) {
		return ClassifyName(path), true
	}
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return MediaPhoto, false
	}
	for m := mt; m != nil; m = m.Parent() {
		switch {
		case strings.HasPrefix(m.String(), "video/"):
			return MediaVideo, true
		case strings.HasPrefix(m.String(), "image/"):
			return MediaPhoto, true
		}
	}
	return MediaPhoto, false
}
