// Package remote talks to the image-digitization service over HTTP
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/UnendingLoop/ImageDigitizer/internal/model"
	"github.com/UnendingLoop/ImageDigitizer/internal/mwlogger"
)

// UploadField is the multipart field carrying the uploaded file.
const UploadField = "file"

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return NewClientWithHTTP(baseURL, &http.Client{Timeout: timeout})
}

func NewClientWithHTTP(baseURL string, hc *http.Client) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// Upload sends the file as multipart form and returns the id assigned by the service.
func (c *Client) Upload(ctx context.Context, file model.SourceFile) (*model.UploadResult, error) {
	const op = "upload"

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, UploadField, file.Name))
	cType := file.ContentType
	if cType == "" {
		cType = "application/octet-stream"
	}
	header.Set("Content-Type", cType)

	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, &model.TransportError{Op: op, Err: err}
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, &model.TransportError{Op: op, Err: err}
	}
	if err := mw.Close(); err != nil {
		return nil, &model.TransportError{Op: op, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", &body)
	if err != nil {
		return nil, &model.TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var res model.UploadResult
	if err := c.doJSON(req, op, &res); err != nil {
		return nil, err
	}
	if res.ImageID == "" {
		return nil, &model.TransportError{Op: op, Err: fmt.Errorf("response has no image_id")}
	}
	return &res, nil
}

type listResponse struct {
	Images []json.RawMessage `json:"images"`
}

type imageRecord struct {
	ImageID    string `json:"image_id"`
	ImageURL   string `json:"image_url"`
	UploadTime string `json:"upload_time,omitempty"`
}

// ListImages returns gallery entries in service order (newest first).
//
// The service answers with objects {image_id, image_url, upload_time}. Older deployments
// answered with bare id strings; those are resolved one by one through /image/{id}/original
// and dropped when that fails.
func (c *Client) ListImages(ctx context.Context) ([]model.GalleryEntry, error) {
	const op = "list images"
	logger := mwlogger.LoggerFromContext(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/images", nil)
	if err != nil {
		return nil, &model.TransportError{Op: op, Err: err}
	}

	var res listResponse
	if err := c.doJSON(req, op, &res); err != nil {
		return nil, err
	}

	entries := make([]model.GalleryEntry, 0, len(res.Images))
	for _, raw := range res.Images {
		var rec imageRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			var id string
			if errID := json.Unmarshal(raw, &id); errID != nil || id == "" {
				logger.Warn().Str("entry", string(raw)).Msg("Skipping unreadable gallery entry")
				continue
			}
			logger.Warn().Str("image_id", id).Msg("Gallery listing returned a bare id, resolving original URL")
			entry, errRes := c.ResolveOriginal(ctx, id)
			if errRes != nil {
				logger.Error().Err(errRes).Str("image_id", id).Msg("Failed to resolve original URL, entry dropped")
				continue
			}
			entries = append(entries, entry)
			continue
		}
		if rec.ImageID == "" {
			continue
		}
		entries = append(entries, toEntry(rec))
	}
	return entries, nil
}

// ResolveOriginal fetches {image_id, image_url} for one image.
func (c *Client) ResolveOriginal(ctx context.Context, id string) (model.GalleryEntry, error) {
	const op = "resolve original"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/image/"+url.PathEscape(id)+"/original", nil)
	if err != nil {
		return model.GalleryEntry{}, &model.TransportError{Op: op, Err: err}
	}

	var rec imageRecord
	if err := c.doJSON(req, op, &rec); err != nil {
		return model.GalleryEntry{}, err
	}
	if rec.ImageID == "" {
		rec.ImageID = id
	}
	if rec.ImageURL == "" {
		return model.GalleryEntry{}, &model.TransportError{Op: op, Err: fmt.Errorf("response has no image_url")}
	}
	return toEntry(rec), nil
}

// VariantPath builds the request path with query parameters in the order the service documents.
func VariantPath(id string, kind model.VariantKind, p model.ProcessingParameters) string {
	var b strings.Builder
	b.WriteString("/image/")
	b.WriteString(url.PathEscape(id))
	b.WriteString("/")
	b.WriteString(string(kind))
	b.WriteString("?resolution=")
	b.WriteString(url.QueryEscape(string(p.Resolution)))
	b.WriteString("&bits_per_channel=")
	b.WriteString(strconv.Itoa(int(p.BitDepth)))
	if kind == model.KindCompressed {
		q := p.Quality
		if q <= 0 {
			q = model.DefaultQuality
		}
		b.WriteString("&quality=")
		b.WriteString(strconv.Itoa(q))
	}
	return b.String()
}

// Variant fetches the digitized or compressed rendition of an uploaded image.
func (c *Client) Variant(ctx context.Context, id string, kind model.VariantKind, p model.ProcessingParameters) (model.Blob, error) {
	op := "get " + string(kind)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+VariantPath(id, kind, p), nil)
	if err != nil {
		return model.Blob{}, &model.TransportError{Op: op, Err: err}
	}
	return c.doBlob(req, op)
}

// FetchURL downloads an arbitrary remote resource, e.g. the original image of a gallery entry.
func (c *Client) FetchURL(ctx context.Context, rawURL string) (model.Blob, error) {
	const op = "fetch original"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return model.Blob{}, &model.TransportError{Op: op, Err: err}
	}
	return c.doBlob(req, op)
}

func (c *Client) doJSON(req *http.Request, op string, out any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &model.TransportError{Op: op, Err: err}
	}
	defer closeBody(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		drain(resp.Body)
		return &model.TransportError{Op: op, Status: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &model.TransportError{Op: op, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

func (c *Client) doBlob(req *http.Request, op string) (model.Blob, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return model.Blob{}, &model.TransportError{Op: op, Err: err}
	}
	defer closeBody(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		drain(resp.Body)
		return model.Blob{}, &model.TransportError{Op: op, Status: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Blob{}, &model.TransportError{Op: op, Err: err}
	}
	cType := resp.Header.Get("Content-Type")
	if cType == "" {
		cType = http.DetectContentType(data)
	}
	return model.Blob{Data: data, ContentType: cType}, nil
}

func toEntry(rec imageRecord) model.GalleryEntry {
	entry := model.GalleryEntry{
		ID:          rec.ImageID,
		OriginalURL: rec.ImageURL,
		Title:       rec.ImageID,
	}
	if t, ok := parseUploadTime(rec.UploadTime); ok {
		entry.UploadedAt = &t
		entry.Title = "Uploaded " + t.Format("2006-01-02 15:04")
	}
	return entry
}

// upload_time comes without a zone and is stored in UTC.
var uploadTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func parseUploadTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range uploadTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func drain(r io.Reader) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r, 64<<10))
}

func closeBody(body io.ReadCloser) {
	if err := body.Close(); err != nil {
		log.Println("Client failed to close response body:", err)
	}
}
