package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"yotoup/internal/card"
	"yotoup/internal/services"
)

// SlotKind tags an upload slot response.
type SlotKind int

const (
	// SlotUpload means the bytes must be PUT to UploadURL.
	SlotUpload SlotKind = iota + 1
	// SlotExists means the service already holds these bytes.
	SlotExists
)

func (k SlotKind) String() string {
	switch k {
	case SlotUpload:
		return "upload"
	case SlotExists:
		return "exists"
	}
	return "unknown"
}

// SlotResult is a validated upload slot.
type SlotResult struct {
	Kind      SlotKind
	UploadURL string
	UploadID  string
}

type slotFields struct {
	UploadURL *string `json:"uploadUrl"`
	UploadID  *string `json:"uploadId"`
}

type slotResponse struct {
	Upload *slotFields `json:"upload"`
	slotFields
}

// RequestUploadSlot asks for an upload slot keyed by the file's SHA-256.
// A response without uploadUrl but with uploadId means the bytes already
// exist; a response without uploadId is rejected.
func (c *Client) RequestUploadSlot(ctx context.Context, sha256, filename string) (SlotResult, error) {
	query := url.Values{"sha256": {sha256}}
	if strings.TrimSpace(filename) != "" {
		query.Set("filename", filename)
	}
	var resp slotResponse
	if err := c.GetJSON(ctx, "/media/transcode/audio/uploadUrl", query, &resp); err != nil {
		return SlotResult{}, err
	}

	fields := resp.slotFields
	if resp.Upload != nil {
		fields = *resp.Upload
	}
	uploadURL := strings.TrimSpace(deref(fields.UploadURL))
	uploadID := strings.TrimSpace(deref(fields.UploadID))

	switch {
	case uploadID == "":
		return SlotResult{}, services.Wrap(services.ErrUploadSlot, "api", "upload slot", "response has no uploadId", nil)
	case uploadURL == "":
		return SlotResult{Kind: SlotExists, UploadID: uploadID}, nil
	default:
		return SlotResult{Kind: SlotUpload, UploadURL: uploadURL, UploadID: uploadID}, nil
	}
}

// TranscodeStatus is one poll of the transcode endpoint. Ready is false until
// the service reports a transcoded digest.
type TranscodeStatus struct {
	Ready  bool
	Result card.TranscodeResult
}

// TranscodeStatus polls the transcode state for an upload.
func (c *Client) TranscodeStatus(ctx context.Context, uploadID string, loudnorm bool) (TranscodeStatus, error) {
	var resp struct {
		Transcode *card.TranscodeResult `json:"transcode"`
	}
	path := "/media/upload/" + url.PathEscape(uploadID) + "/transcoded"
	query := url.Values{"loudnorm": {strconv.FormatBool(loudnorm)}}
	if err := c.GetJSON(ctx, path, query, &resp); err != nil {
		return TranscodeStatus{}, err
	}
	if resp.Transcode == nil || strings.TrimSpace(resp.Transcode.TranscodedSHA256) == "" {
		return TranscodeStatus{}, nil
	}
	return TranscodeStatus{Ready: true, Result: *resp.Transcode}, nil
}

const coverUploadPath = "/media/coverImage/user/me/upload"

// UploadCoverImage sends image bytes to the cover endpoint and returns the
// hosted URL to store in a card's metadata.cover.imageL.
func (c *Client) UploadCoverImage(ctx context.Context, contentType string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", services.Wrap(services.ErrValidation, "api", "cover upload", "image is empty", nil)
	}
	var resp struct {
		CoverImage *struct {
			MediaURL string `json:"mediaUrl"`
		} `json:"coverImage"`
		MediaURL string `json:"mediaUrl"`
	}
	query := url.Values{"autoconvert": {"true"}}
	if err := c.doJSON(ctx, http.MethodPost, coverUploadPath, query, rawBody{contentType: contentType, data: data}, &resp, false); err != nil {
		return "", err
	}
	mediaURL := resp.MediaURL
	if resp.CoverImage != nil && strings.TrimSpace(resp.CoverImage.MediaURL) != "" {
		mediaURL = resp.CoverImage.MediaURL
	}
	if mediaURL = strings.TrimSpace(mediaURL); mediaURL == "" {
		return "", services.Wrap(services.ErrUpload, "api", "cover upload", "response has no mediaUrl", nil)
	}
	return mediaURL, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
