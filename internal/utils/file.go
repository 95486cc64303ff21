package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
)

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(dir string) error {
	if dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

// GetFileExtension returns the file extension without the dot
func GetFileExtension(filename string) string {
	ext := filepath.Ext(filename)
	if len(ext) > 0 {
		return strings.ToLower(ext[1:])
	}
	return ""
}

// BaseName returns the file name without directory and extension
func BaseName(filename string) string {
	base := filepath.Base(filename)
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// IsImageFile checks if a file has an image extension
func IsImageFile(filename string) bool {
	switch GetFileExtension(filename) {
	case "jpg", "jpeg", "png", "gif", "bmp", "tiff", "tif", "webp":
		return true
	}
	return false
}

// CroppedName is the download name of a crop: "cropped-" plus the original
// file name, extension included.
func CroppedName(original string) string {
	name := SanitizeFilename(filepath.Base(original))
	if name == "" || name == "." {
		name = "image.png"
	}
	return "cropped-" + name
}

// PreviewName is the download name of a selection preview, always PNG
func PreviewName(original string) string {
	base := SanitizeFilename(BaseName(original))
	if base == "" {
		base = "image"
	}
	return "preview-" + base + ".png"
}

// IconName is the download name of a single icon size
func IconName(size int) string {
	return fmt.Sprintf("icon-%dx%d.png", size, size)
}

// NoBackgroundName is the download name of a background-removed image
func NoBackgroundName(original string) string {
	base := SanitizeFilename(BaseName(original))
	if base == "" {
		base = "image"
	}
	return "nobg-" + base + ".png"
}

// ConvertedName replaces the extension of original with format
func ConvertedName(original, format string) string {
	base := SanitizeFilename(BaseName(original))
	if base == "" {
		base = "converted"
	}
	return base + "." + strings.ToLower(strings.TrimPrefix(format, "."))
}

// FileExists checks if a file exists and is not a directory
func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// WriteFile writes data into dir/name, creating dir when needed, and returns the path
func WriteFile(dir, name string, data []byte) (string, error) {
	if err := EnsureDir(dir); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// SanitizeFilename removes or replaces invalid characters in filenames
func SanitizeFilename(filename string) string {
	invalid := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}
	result := filename
	for _, char := range invalid {
		result = strings.ReplaceAll(result, char, "_")
	}
	return strings.Trim(result, " .")
}

// FormatFileSize formats a byte count in human-readable IEC form
func FormatFileSize(size int64) string {
	if size < 0 {
		size = 0
	}
	return humanize.IBytes(uint64(size))
}
