package searchapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"

	"github.com/visualmatch/console/internal/domain"
)

// Multipart field names expected by POST /search
const (
	fieldFiles   = "files"
	fieldFilters = "filters"
)

// buildSearchBody encodes every file under the repeated "files" field and,
// when filters is non-nil, a single JSON "filters" field.
func buildSearchBody(files []domain.ImageFile, filters *domain.Filters) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for i, file := range files {
		if err := writeFilePart(writer, fieldFiles, file, i); err != nil {
			return nil, "", err
		}
	}

	if filters != nil {
		encoded, err := json.Marshal(filters)
		if err != nil {
			return nil, "", fmt.Errorf("encoding filters: %w", err)
		}
		if err := writer.WriteField(fieldFilters, string(encoded)); err != nil {
			return nil, "", fmt.Errorf("writing form field %s: %w", fieldFilters, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart writer: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}

// buildSingleFileBody encodes one file under fieldName
func buildSingleFileBody(fieldName string, file domain.ImageFile) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if err := writeFilePart(writer, fieldName, file, 0); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart writer: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}

func writeFilePart(writer *multipart.Writer, fieldName string, file domain.ImageFile, index int) error {
	name := file.Name
	if name == "" {
		name = fmt.Sprintf("image-%d", index+1)
	}
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, fieldName, name))
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("creating form file %s: %w", name, err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return fmt.Errorf("writing file content for %s: %w", name, err)
	}
	return nil
}
