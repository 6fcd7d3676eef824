package validation

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/username/taxfolio/portfolio/src/logger"
)

// AllowedStatementContentTypes lists the client-declared MIME types accepted
// for broker statement uploads (DEGIRO CSV, IBKR Flex XML).
var AllowedStatementContentTypes = map[string]bool{
	"text/csv":                 true,
	"application/csv":          true,
	"application/vnd.ms-excel": true, // Often used for CSV by older Excel
	"text/plain":               true,
	"text/xml":                 true,
	"application/xml":          true,
	"application/octet-stream": true,
}

var allowedDetectedStatementTypes = map[string]bool{
	"text/plain":               true,
	"text/csv":                 true,
	"text/xml":                 true,
	"application/xml":          true,
	"application/octet-stream": true,
}

// ValidateStatementContentType checks the Content-Type declared for an
// uploaded statement file.
func ValidateStatementContentType(contentType string) error {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !AllowedStatementContentTypes[strings.ToLower(mediaType)] {
		logger.L.Warn("Disallowed client-declared statement Content-Type", "contentType", contentType)
		return fmt.Errorf("client-declared file type '%s' is not allowed for statement upload", contentType)
	}
	return nil
}

// ValidateStatementContent sniffs the first 512 bytes of file and rewinds it.
// It returns the detected content type.
func ValidateStatementContent(file io.ReadSeeker) (string, error) {
	if file == nil {
		return "", fmt.Errorf("file is nil")
	}

	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read file for content type checking: %w", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to reset file read pointer: %w", err)
	}
	if n == 0 {
		return "", fmt.Errorf("statement file is empty")
	}

	detected := strings.ToLower(strings.Split(http.DetectContentType(buffer[:n]), ";")[0])
	if !allowedDetectedStatementTypes[detected] {
		logger.L.Warn("Disallowed detected statement content type", "detectedContentType", detected)
		return detected, fmt.Errorf("detected file content type '%s' is not a CSV or XML statement", detected)
	}
	logger.L.Debug("Statement content type validated", "detectedContentType", detected)
	return detected, nil
}
