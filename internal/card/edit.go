package card

import (
	"errors"
	"fmt"
	"strings"

	"yotoup/internal/services"
)

// RelabelOptions controls track numbering.
type RelabelOptions struct {
	// ResetPerChapter restarts track keys and overlay labels at 1 in every
	// chapter. Otherwise both run sequentially across the whole card.
	ResetPerChapter bool
}

// MergeChapters collapses every chapter into one holding all tracks in order.
// A blank title keeps the first chapter's title.
func MergeChapters(c *Card, title string) error {
	if c.TrackCount() == 0 {
		return services.Wrap(services.ErrValidation, "edit", "merge", "card has no tracks", nil)
	}
	first := c.Content.Chapters[0]
	merged := Chapter{
		Title:   strings.TrimSpace(title),
		Display: first.Display,
		Tracks:  make([]Track, 0, c.TrackCount()),
	}
	if merged.Title == "" {
		merged.Title = first.Title
	}
	for _, ch := range c.Content.Chapters {
		merged.Tracks = append(merged.Tracks, ch.Tracks...)
	}
	c.Content.Chapters = []Chapter{merged}
	Relabel(c, RelabelOptions{})
	return nil
}

// SplitChapters breaks any chapter with more than maxTracks tracks into parts
// titled "<title> (Part n)". Chapters at or under the limit are kept whole.
func SplitChapters(c *Card, maxTracks int) error {
	if maxTracks < 1 {
		return services.Wrap(services.ErrValidation, "edit", "split",
			fmt.Sprintf("max tracks per chapter must be at least 1, got %d", maxTracks), nil)
	}
	var out []Chapter
	for _, ch := range c.Content.Chapters {
		if len(ch.Tracks) <= maxTracks {
			out = append(out, ch)
			continue
		}
		part := 1
		for start := 0; start < len(ch.Tracks); start += maxTracks {
			end := min(start+maxTracks, len(ch.Tracks))
			piece := ch
			piece.Title = fmt.Sprintf("%s (Part %d)", ch.Title, part)
			piece.Tracks = append([]Track(nil), ch.Tracks[start:end]...)
			out = append(out, piece)
			part++
		}
	}
	c.Content.Chapters = out
	Relabel(c, RelabelOptions{})
	return nil
}

// ExpandTracks gives every track its own chapter named after the track.
func ExpandTracks(c *Card) error {
	if c.TrackCount() == 0 {
		return services.Wrap(services.ErrValidation, "edit", "expand", "card has no tracks", nil)
	}
	out := make([]Chapter, 0, c.TrackCount())
	for _, ch := range c.Content.Chapters {
		for _, tr := range ch.Tracks {
			display := tr.Display
			if display == nil {
				display = ch.Display
			}
			title := tr.Title
			if strings.TrimSpace(title) == "" {
				title = ch.Title
			}
			out = append(out, Chapter{
				Title:   title,
				Display: display,
				Tracks:  []Track{tr},
			})
		}
	}
	c.Content.Chapters = out
	Relabel(c, RelabelOptions{})
	return nil
}

// Relabel rewrites chapter keys and overlay labels to 01../1.. and numbers
// tracks as opts says. Totals are recomputed.
func Relabel(c *Card, opts RelabelOptions) {
	global := 0
	for i := range c.Content.Chapters {
		ch := &c.Content.Chapters[i]
		ch.Key = Key(i + 1)
		ch.OverlayLabel = Label(i + 1)
		for j := range ch.Tracks {
			global++
			tr := &ch.Tracks[j]
			if opts.ResetPerChapter {
				tr.Key, tr.OverlayLabel = Key(j+1), Label(j+1)
			} else {
				tr.Key, tr.OverlayLabel = Key(global), Label(global)
			}
		}
	}
	UpdateMediaTotals(c)
}

// Validate checks the structure the content service requires.
func Validate(c *Card) error {
	if c == nil {
		return services.Wrap(services.ErrValidation, "validate", "card", "card is nil", nil)
	}
	var errs []error
	if strings.TrimSpace(c.Title) == "" {
		errs = append(errs, errors.New("title is required"))
	}
	if len(c.Content.Chapters) == 0 {
		errs = append(errs, errors.New("at least one chapter is required"))
	}
	for i, ch := range c.Content.Chapters {
		if strings.TrimSpace(ch.Key) == "" {
			errs = append(errs, fmt.Errorf("chapter %d: key is required", i+1))
		}
		if len(ch.Tracks) == 0 {
			errs = append(errs, fmt.Errorf("chapter %d: no tracks", i+1))
		}
		for j, tr := range ch.Tracks {
			if strings.TrimSpace(tr.Key) == "" {
				errs = append(errs, fmt.Errorf("chapter %d track %d: key is required", i+1, j+1))
			}
			if strings.TrimSpace(tr.TrackURL) == "" {
				errs = append(errs, fmt.Errorf("chapter %d track %d: trackUrl is required", i+1, j+1))
			}
			if tr.Type != TrackTypeAudio && tr.Type != TrackTypeStream {
				errs = append(errs, fmt.Errorf("chapter %d track %d: unsupported type %q", i+1, j+1, tr.Type))
			}
		}
	}
	if len(errs) > 0 {
		return services.Wrap(services.ErrValidation, "validate", "card", "invalid document", errors.Join(errs...))
	}
	return nil
}
