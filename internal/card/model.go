package card

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Track types accepted by the content service.
const (
	TrackTypeAudio  = "audio"
	TrackTypeStream = "stream"
)

// URLScheme prefixes every content-addressed track reference.
const URLScheme = "yoto:#"

// DefaultFormat is the track format assumed when the transcoder omits one.
const DefaultFormat = "mp3"

// Channels holds a channel layout the service may report either as a word
// ("stereo", "mono") or as a count. Counts round-trip as JSON numbers.
type Channels string

// UnmarshalJSON accepts strings, numbers, and null.
func (c *Channels) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Channels(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("channels: %w", err)
	}
	*c = Channels(n.String())
	return nil
}

// MarshalJSON writes numeric layouts as numbers and everything else as strings.
func (c Channels) MarshalJSON() ([]byte, error) {
	if _, err := strconv.Atoi(string(c)); err == nil {
		return []byte(c), nil
	}
	return json.Marshal(string(c))
}

// Display carries the 16x16 pixel icon reference shown on the player.
type Display struct {
	Icon16x16 string `json:"icon16x16,omitempty"`
}

// Track is one content-addressed audio reference.
type Track struct {
	Key                  string   `json:"key"`
	Title                string   `json:"title"`
	TrackURL             string   `json:"trackUrl"`
	Type                 string   `json:"type"`
	Format               string   `json:"format,omitempty"`
	OverlayLabel         string   `json:"overlayLabel,omitempty"`
	OverlayLabelOverride string   `json:"overlayLabelOverride,omitempty"`
	Duration             float64  `json:"duration,omitempty"`
	FileSize             int64    `json:"fileSize,omitempty"`
	Channels             Channels `json:"channels,omitempty"`
	Display              *Display `json:"display,omitempty"`
	UID                  string   `json:"uid,omitempty"`
	Ambient              *Ambient `json:"ambient,omitempty"`
	HasStreams           bool     `json:"hasStreams,omitempty"`
}

// Ambient is the optional light colour shown while a track or chapter plays.
type Ambient struct {
	DefaultTrackDisplay string `json:"defaultTrackDisplay,omitempty"`
}

// Chapter groups one or more tracks.
type Chapter struct {
	Key                  string   `json:"key"`
	Title                string   `json:"title"`
	OverlayLabel         string   `json:"overlayLabel,omitempty"`
	OverlayLabelOverride string   `json:"overlayLabelOverride,omitempty"`
	Tracks               []Track  `json:"tracks"`
	Display              *Display `json:"display,omitempty"`
	Duration             float64  `json:"duration,omitempty"`
	FileSize             int64    `json:"fileSize,omitempty"`
	Hidden               bool     `json:"hidden,omitempty"`
	Ambient              *Ambient `json:"ambient,omitempty"`
	DefaultTrackDisplay  string   `json:"defaultTrackDisplay,omitempty"`
	DefaultTrackAmbient  string   `json:"defaultTrackAmbient,omitempty"`
}

// PlaybackConfig holds card-level player settings.
type PlaybackConfig struct {
	OnlineOnly                bool `json:"onlineOnly,omitempty"`
	ResumeTimeout             int  `json:"resumeTimeout,omitempty"`
	SystemActivity            bool `json:"systemActivity,omitempty"`
	TrackNumberOverlayTimeout int  `json:"trackNumberOverlayTimeout,omitempty"`
}

// Content is the playable body of a card.
type Content struct {
	Chapters     []Chapter       `json:"chapters"`
	Config       *PlaybackConfig `json:"config,omitempty"`
	PlaybackType string          `json:"playbackType,omitempty"`
	Activity     string          `json:"activity,omitempty"`
	Version      string          `json:"version,omitempty"`
	Restricted   bool            `json:"restricted,omitempty"`
}

// Cover references the card artwork.
type Cover struct {
	ImageL string `json:"imageL,omitempty"`
}

// Media holds aggregate playback totals across all chapters.
type Media struct {
	Duration         float64 `json:"duration,omitempty"`
	FileSize         int64   `json:"fileSize,omitempty"`
	ReadableDuration string  `json:"readableDuration,omitempty"`
	ReadableFileSize float64 `json:"readableFileSize,omitempty"`
	HasStreams       bool    `json:"hasStreams,omitempty"`
}

// Metadata is descriptive card information.
type Metadata struct {
	Description string   `json:"description,omitempty"`
	Author      string   `json:"author,omitempty"`
	Category    string   `json:"category,omitempty"`
	Cover       *Cover   `json:"cover,omitempty"`
	Media       *Media   `json:"media,omitempty"`
	Genre       []string `json:"genre,omitempty"`
	Languages   []string `json:"languages,omitempty"`
	MinAge      int      `json:"minAge,omitempty"`
	MaxAge      int      `json:"maxAge,omitempty"`
	Note        string   `json:"note,omitempty"`
}

// Card is the top-level playable document. CardID is assigned by the service
// on first create.
type Card struct {
	CardID    string    `json:"cardId,omitempty"`
	Title     string    `json:"title"`
	Metadata  *Metadata `json:"metadata,omitempty"`
	Content   Content   `json:"content"`
	Tags      []string  `json:"tags,omitempty"`
	Slug      string    `json:"slug,omitempty"`
	CreatedAt string    `json:"createdAt,omitempty"`
	UpdatedAt string    `json:"updatedAt,omitempty"`
	UserID    string    `json:"userId,omitempty"`
}

// TrackCount returns the number of tracks across all chapters.
func (c *Card) TrackCount() int {
	total := 0
	for _, ch := range c.Content.Chapters {
		total += len(ch.Tracks)
	}
	return total
}

// SetCover points metadata.cover.imageL at url, creating the metadata as
// needed and leaving the rest of it untouched.
func (c *Card) SetCover(url string) {
	if c.Metadata == nil {
		c.Metadata = &Metadata{}
	}
	if c.Metadata.Cover == nil {
		c.Metadata.Cover = &Cover{}
	}
	c.Metadata.Cover.ImageL = url
}

// Clone returns a deep copy through the JSON encoding.
func (c *Card) Clone() (*Card, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	var out Card
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TranscodeInfo describes the transcoded audio.
type TranscodeInfo struct {
	Duration float64  `json:"duration"`
	FileSize int64    `json:"fileSize"`
	Channels Channels `json:"channels"`
	Format   string   `json:"format"`
	Metadata struct {
		Title string `json:"title"`
	} `json:"metadata"`
}

// TranscodeResult is the server's record of a finished transcode.
type TranscodeResult struct {
	TranscodedSHA256 string        `json:"transcodedSha256"`
	Info             TranscodeInfo `json:"transcodedInfo"`
}

// TrackURL returns the content-addressed reference for the transcoded audio.
func (r TranscodeResult) TrackURL() string {
	return URLScheme + r.TranscodedSHA256
}
