package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/vlad23451/syrup/internal/history"
)

type uploadResponse struct {
	FileID int64  `json:"file_id"`
	Name   string `json:"name"`
}

// UploadFile uploads a local file to the file collaborator and returns the
// attachment descriptor. The content type is sniffed from the file itself,
// never trusted from the extension.
func (c *Client) UploadFile(ctx context.Context, path string) (history.Attachment, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return history.Attachment{}, fmt.Errorf("rest: detect type of %s: %w", path, err)
	}
	f, err := os.Open(path)
	if err != nil {
		return history.Attachment{}, err
	}
	defer f.Close()

	name := filepath.Base(path)
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, escapeQuotes(name)))
	header.Set("Content-Type", mtype.String())
	part, err := writer.CreatePart(header)
	if err != nil {
		return history.Attachment{}, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return history.Attachment{}, fmt.Errorf("rest: read %s: %w", path, err)
	}
	if err := writer.Close(); err != nil {
		return history.Attachment{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files", &buf)
	if err != nil {
		return history.Attachment{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return history.Attachment{}, fmt.Errorf("rest: upload %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return history.Attachment{}, fmt.Errorf("rest: upload %s: status %d: %s", name, resp.StatusCode, body)
	}

	var ur uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&ur); err != nil {
		return history.Attachment{}, fmt.Errorf("rest: upload %s: bad response: %w", name, err)
	}
	c.logger.Debug("file uploaded",
		zap.String("name", name),
		zap.Int64("file_id", ur.FileID),
		zap.String("content_type", mtype.String()))
	return history.Attachment{FileID: ur.FileID, Name: name, Uploaded: true}, nil
}

func escapeQuotes(s string) string {
	r := strings.NewReplacer("\\", "\\\\", `"`, `\"`)
	return r.Replace(s)
}
