package card

import (
	"fmt"
	"strconv"
	"strings"

	"yotoup/internal/config"
	"yotoup/internal/services"
)

// DefaultIcon is the display icon used when none is supplied.
const DefaultIcon = "yoto:#aUm9i3ex3qqAMYBv-i-O-pYMKuMJGICtR3Vhf289u2Q"

// Options controls document assembly.
type Options struct {
	// Mode is config.ModePerFileChapter or config.ModeSingleChapterManyTracks.
	Mode string
	// BatchTitle names the synthesized chapter in single-chapter mode.
	BatchTitle string
	// ChapterOffset is the number of chapters already on the card being appended to.
	ChapterOffset int
	// TrackOffset is the number of tracks already on that card. Track keys
	// continue from it so they stay unique across the card.
	TrackOffset int
	Icon        string
}

// Key formats a 1-based position as a two-digit key.
func Key(n int) string {
	return fmt.Sprintf("%02d", n)
}

// Label formats a 1-based position as an overlay label.
func Label(n int) string {
	return strconv.Itoa(n)
}

// Assemble turns ordered transcode results into chapters. titles[i], when
// non-blank, overrides the transcoder title for results[i]. The output depends
// only on the inputs.
func Assemble(results []TranscodeResult, titles []string, opts Options) ([]Chapter, error) {
	if len(results) == 0 {
		return nil, services.Wrap(services.ErrValidation, "assemble", "chapters", "no transcode results", nil)
	}
	if opts.ChapterOffset < 0 || opts.TrackOffset < 0 {
		return nil, services.Wrap(services.ErrValidation, "assemble", "chapters", "offsets must not be negative", nil)
	}
	for i, res := range results {
		if strings.TrimSpace(res.TranscodedSHA256) == "" {
			return nil, services.Wrap(services.ErrValidation, "assemble", "chapters",
				fmt.Sprintf("result %d has no transcoded digest", i+1), nil)
		}
	}
	icon := strings.TrimSpace(opts.Icon)
	if icon == "" {
		icon = DefaultIcon
	}

	switch strings.ToLower(strings.TrimSpace(opts.Mode)) {
	case "", config.ModePerFileChapter:
		return perFileChapters(results, titles, opts, icon), nil
	case config.ModeSingleChapterManyTracks:
		return []Chapter{singleChapter(results, titles, opts, icon)}, nil
	default:
		return nil, services.Wrap(services.ErrValidation, "assemble", "chapters",
			fmt.Sprintf("unknown mode %q", opts.Mode), nil)
	}
}

func perFileChapters(results []TranscodeResult, titles []string, opts Options, icon string) []Chapter {
	chapters := make([]Chapter, 0, len(results))
	for i, res := range results {
		n := opts.ChapterOffset + i + 1
		title := resolveTitle(titles, i, res, fmt.Sprintf("Chapter %d", n))
		track := newTrack(res, title, opts.TrackOffset+i+1, icon)
		track.OverlayLabel = Label(n)
		chapters = append(chapters, Chapter{
			Key:          Key(n),
			Title:        title,
			OverlayLabel: Label(n),
			Tracks:       []Track{track},
			Display:      &Display{Icon16x16: icon},
			Duration:     track.Duration,
			FileSize:     track.FileSize,
		})
	}
	return chapters
}

func singleChapter(results []TranscodeResult, titles []string, opts Options, icon string) Chapter {
	n := opts.ChapterOffset + 1
	chapter := Chapter{
		Key:          Key(n),
		Title:        strings.TrimSpace(opts.BatchTitle),
		OverlayLabel: Label(n),
		Tracks:       make([]Track, 0, len(results)),
		Display:      &Display{Icon16x16: icon},
	}
	if chapter.Title == "" {
		chapter.Title = fmt.Sprintf("Chapter %d", n)
	}
	for i, res := range results {
		title := resolveTitle(titles, i, res, fmt.Sprintf("Track %d", i+1))
		track := newTrack(res, title, opts.TrackOffset+i+1, icon)
		track.OverlayLabel = Label(i + 1)
		chapter.Tracks = append(chapter.Tracks, track)
		chapter.Duration += track.Duration
		chapter.FileSize += track.FileSize
	}
	return chapter
}

func newTrack(res TranscodeResult, title string, position int, icon string) Track {
	format := strings.TrimSpace(res.Info.Format)
	if format == "" {
		format = DefaultFormat
	}
	return Track{
		Key:          Key(position),
		Title:        title,
		TrackURL:     res.TrackURL(),
		Type:         TrackTypeAudio,
		Format:       format,
		OverlayLabel: Label(position),
		Duration:     res.Info.Duration,
		FileSize:     res.Info.FileSize,
		Channels:     res.Info.Channels,
		Display:      &Display{Icon16x16: icon},
	}
}

func resolveTitle(titles []string, i int, res TranscodeResult, fallback string) string {
	if i < len(titles) {
		if t := strings.TrimSpace(titles[i]); t != "" {
			return t
		}
	}
	if t := strings.TrimSpace(res.Info.Metadata.Title); t != "" {
		return t
	}
	return fallback
}

// NewCard builds an unsaved card holding chapters.
func NewCard(title string, chapters []Chapter) *Card {
	c := &Card{
		Title:    strings.TrimSpace(title),
		Metadata: &Metadata{},
		Content:  Content{Chapters: chapters},
	}
	UpdateMediaTotals(c)
	return c
}

// AppendChapters adds chapters assembled with ChapterOffset equal to the
// card's current chapter count.
func AppendChapters(c *Card, chapters []Chapter) {
	c.Content.Chapters = append(c.Content.Chapters, chapters...)
	UpdateMediaTotals(c)
}

// UpdateMediaTotals recomputes chapter and card duration and size sums from
// the tracks.
func UpdateMediaTotals(c *Card) {
	var duration float64
	var size int64
	for i := range c.Content.Chapters {
		ch := &c.Content.Chapters[i]
		ch.Duration, ch.FileSize = 0, 0
		for _, tr := range ch.Tracks {
			ch.Duration += tr.Duration
			ch.FileSize += tr.FileSize
		}
		duration += ch.Duration
		size += ch.FileSize
	}
	if c.Metadata == nil {
		c.Metadata = &Metadata{}
	}
	if c.Metadata.Media == nil {
		c.Metadata.Media = &Media{}
	}
	c.Metadata.Media.Duration = duration
	c.Metadata.Media.FileSize = size
}
