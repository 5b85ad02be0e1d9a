package images

import (
	"path/filepath"
	"strings"
)

// ImageFormat represents supported image formats
type ImageFormat string

const (
	// FormatJPEG is the JPEG image format.
	FormatJPEG ImageFormat = "jpeg"
	// FormatPNG is the PNG image format.
	FormatPNG ImageFormat = "png"
	// FormatBMP is the BMP image format.
	FormatBMP ImageFormat = "bmp"
	// FormatGIF is the GIF image format.
	FormatGIF ImageFormat = "gif"
	// FormatTIFF is the TIFF image format.
	FormatTIFF ImageFormat = "tiff"
	// FormatWEBP is the WebP image format.
	FormatWEBP ImageFormat = "webp"
	// FormatUnknown is returned for files that are not images.
	FormatUnknown ImageFormat = ""
)

// Extensions are the file extensions treated as images.
var Extensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".gif", ".tif", ".tiff", ".webp"}

// FormatFromPath returns the image format for a file name, based on its extension.
func FormatFromPath(path string) ImageFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return FormatJPEG
	case ".png":
		return FormatPNG
	case ".bmp":
		return FormatBMP
	case ".gif":
		return FormatGIF
	case ".tif", ".tiff":
		return FormatTIFF
	case ".webp":
		return FormatWEBP
	default:
		return FormatUnknown
	}
}

// IsImageFile reports whether path has one of the given extensions. With no
// extensions, Extensions is used.
func IsImageFile(path string, extensions ...string) bool {
	if len(extensions) == 0 {
		return FormatFromPath(path) != FormatUnknown
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range extensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}
