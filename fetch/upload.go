package fetch

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"

	"github.com/pkg/errors"
)

// Upload is a single file sent as multipart/form-data.
type Upload struct {
	Field       string
	FileName    string
	ContentType string
	Content     io.Reader
	Fields      map[string]string
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func (u *Upload) encode() (io.Reader, string, error) {
	if u.Content == nil {
		return nil, "", errors.New("[Upload.encode] upload has no content")
	}
	field := u.Field
	if field == "" {
		field = "file"
	}
	contentType := u.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, value := range u.Fields {
		if err := w.WriteField(name, value); err != nil {
			return nil, "", errors.Wrap(err, "[Upload.encode] WriteField")
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(field), quoteEscaper.Replace(u.FileName)))
	header.Set("Content-Type", contentType)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", errors.Wrap(err, "[Upload.encode] CreatePart")
	}
	if _, err := io.Copy(part, u.Content); err != nil {
		return nil, "", errors.Wrap(err, "[Upload.encode] Copy")
	}
	if err := w.Close(); err != nil {
		return nil, "", errors.Wrap(err, "[Upload.encode] Close")
	}
	return &buf, w.FormDataContentType(), nil
}
