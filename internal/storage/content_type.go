package storage

import (
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// DetectContentType determines the MIME type of a file.
//
// Detection priority:
// 1. providedType, if non-empty
// 2. the file extension via mime.TypeByExtension
// 3. sniffing the first 512 bytes of data, if data is non-nil
// 4. "application/octet-stream"
func DetectContentType(providedType, filename string, data io.Reader) string {
	if providedType != "" {
		return providedType
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if contentType := mime.TypeByExtension(ext); contentType != "" {
		return contentType
	}

	if data != nil {
		buffer := make([]byte, 512)
		n, err := io.ReadFull(data, buffer)
		if err == nil || err == io.EOF || err == io.ErrUnexpectedEOF {
			return http.DetectContentType(buffer[:n])
		}
	}

	return "application/octet-stream"
}

// AllowedUploadTypes are the MIME types accepted for organization uploads.
var AllowedUploadTypes = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
	"text/plain":    true,
	"text/csv":      true,
	"text/markdown": true,
	"image/jpeg":    true,
	"image/png":     true,
	"image/webp":    true,
}

// baseType strips parameters like charset and lowercases.
func baseType(contentType string) string {
	t := strings.Split(contentType, ";")[0]
	return strings.TrimSpace(strings.ToLower(t))
}

// IsAllowedUploadType checks if a content type may be uploaded.
func IsAllowedUploadType(contentType string) bool {
	return AllowedUploadTypes[baseType(contentType)]
}

// IsImage returns true if the content type is any image format.
func IsImage(contentType string) bool {
	return strings.HasPrefix(baseType(contentType), "image/")
}

// IsText returns true for plain-text formats that can be fed to a model
// without extraction.
func IsText(contentType string) bool {
	return strings.HasPrefix(baseType(contentType), "text/")
}
