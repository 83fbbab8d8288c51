package wordpress

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"

	"github.com/njoerd114/wpmirror/internal/model"
)

// MediaResult reports the outcome of [Client.UploadMedia].
type MediaResult struct {
	// Status is the HTTP status of the upload request.
	Status    int
	MediaID   int
	SourceURL string

	// Attached is true once the descriptive attributes were stored.
	Attached bool
}

// Uploaded reports whether the file itself made it to the media library.
func (r MediaResult) Uploaded() bool { return r.MediaID != 0 }

// UploadMedia uploads the file at path to /media, then attaches attrs to the
// new media id with a second request.
//
// A phase one response that is not JSON or lacks an id is not an error: the
// returned result carries only Status and the caller decides whether to skip
// the asset. Transport failures and a failed phase two are errors.
func (c *Client) UploadMedia(ctx context.Context, path string, attrs model.MediaAttributes) (MediaResult, error) {
	body, contentType, err := multipartFile(path)
	if err != nil {
		return MediaResult{}, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/media", body)
	if err != nil {
		return MediaResult{}, err
	}
	req.Header.Set("Content-Type", contentType)

	status, _, respBody, err := c.do(req)
	if err != nil {
		return MediaResult{}, fmt.Errorf("uploading %q: %w", path, err)
	}

	res := MediaResult{Status: status}
	if !gjson.ValidBytes(respBody) {
		c.log.Warn("media upload returned malformed JSON", "file", path, "status", status)
		return res, nil
	}
	id := gjson.GetBytes(respBody, "id")
	if !id.Exists() || id.Int() == 0 {
		c.log.Warn("media upload returned no id", "file", path, "status", status,
			"code", gjson.GetBytes(respBody, "code").String())
		return res, nil
	}
	res.MediaID = int(id.Int())
	res.SourceURL = gjson.GetBytes(respBody, "source_url").String()
	c.log.Info("media uploaded", "file", filepath.Base(path), "id", res.MediaID)

	if attrs.Empty() {
		return res, nil
	}

	attrStatus, attrBody, err := c.sendJSON(ctx, http.MethodPost, fmt.Sprintf("/media/%d", res.MediaID), attrs)
	if err != nil {
		return res, fmt.Errorf("attaching attributes to media %d: %w", res.MediaID, err)
	}
	if attrStatus < 200 || attrStatus >= 300 {
		return res, statusError("attach media attributes", attrStatus, attrBody, nil)
	}
	if u := gjson.GetBytes(attrBody, "source_url"); u.Exists() {
		res.SourceURL = u.String()
	}
	res.Attached = true
	return res, nil
}

// multipartFile encodes path as a single "file" form part.
func multipartFile(path string) (io.Reader, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("opening media file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	name := filepath.Base(path)
	ctype := mime.TypeByExtension(filepath.Ext(name))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	h.Set("Content-Type", ctype)

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("creating form part: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("reading media file: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("closing form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
