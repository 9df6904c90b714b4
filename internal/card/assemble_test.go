package card

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yotoup/internal/config"
	"yotoup/internal/services"
)

func result(sha, title string, duration float64, size int64) TranscodeResult {
	r := TranscodeResult{TranscodedSHA256: sha}
	r.Info.Duration = duration
	r.Info.FileSize = size
	r.Info.Channels = "stereo"
	r.Info.Format = "aac"
	r.Info.Metadata.Title = title
	return r
}

func threeResults() []TranscodeResult {
	return []TranscodeResult{
		result("aaa", "meta a", 10, 100),
		result("bbb", "meta b", 20, 200),
		result("ccc", "meta c", 30, 300),
	}
}

func TestAssemblePerFileChapter(t *testing.T) {
	chapters, err := Assemble(threeResults(), []string{"Intro", "Story", "Outro"}, Options{Mode: config.ModePerFileChapter})
	require.NoError(t, err)
	require.Len(t, chapters, 3)

	wantTitles := []string{"Intro", "Story", "Outro"}
	wantSHA := []string{"aaa", "bbb", "ccc"}
	for i, ch := range chapters {
		assert.Equal(t, Key(i+1), ch.Key)
		assert.Equal(t, Label(i+1), ch.OverlayLabel)
		assert.Equal(t, wantTitles[i], ch.Title)
		require.Len(t, ch.Tracks, 1)
		tr := ch.Tracks[0]
		assert.Equal(t, Key(i+1), tr.Key)
		assert.Equal(t, "yoto:#"+wantSHA[i], tr.TrackURL)
		assert.Equal(t, TrackTypeAudio, tr.Type)
		assert.Equal(t, "aac", tr.Format)
		assert.Equal(t, DefaultIcon, tr.Display.Icon16x16)
		assert.Equal(t, tr.Duration, ch.Duration)
	}
	assert.Equal(t, []string{"01", "02", "03"}, []string{chapters[0].Key, chapters[1].Key, chapters[2].Key})
}

func TestAssembleAppliesChapterOffset(t *testing.T) {
	chapters, err := Assemble(threeResults(), nil, Options{Mode: config.ModePerFileChapter, ChapterOffset: 4})
	require.NoError(t, err)
	assert.Equal(t, "05", chapters[0].Key)
	assert.Equal(t, "7", chapters[2].OverlayLabel)
	assert.Equal(t, "meta a", chapters[0].Title, "transcoder title is the fallback")
}

func TestAssembleContinuesTrackKeys(t *testing.T) {
	chapters, err := Assemble(threeResults(), nil, Options{Mode: config.ModePerFileChapter, ChapterOffset: 2, TrackOffset: 5})
	require.NoError(t, err)
	assert.Equal(t, []string{"06", "07", "08"}, []string{chapters[0].Tracks[0].Key, chapters[1].Tracks[0].Key, chapters[2].Tracks[0].Key})

	single, err := Assemble(threeResults(), nil, Options{Mode: config.ModeSingleChapterManyTracks, ChapterOffset: 2, TrackOffset: 5})
	require.NoError(t, err)
	require.Len(t, single[0].Tracks, 3)
	assert.Equal(t, "06", single[0].Tracks[0].Key)
	assert.Equal(t, "1", single[0].Tracks[0].OverlayLabel)

	_, err = Assemble(threeResults(), nil, Options{TrackOffset: -1})
	require.ErrorIs(t, err, services.ErrValidation)
}

func TestAssembleSingleChapterManyTracks(t *testing.T) {
	chapters, err := Assemble(threeResults(), []string{"One", "", "Three"}, Options{
		Mode:       config.ModeSingleChapterManyTracks,
		BatchTitle: "Bedtime",
		Icon:       "yoto:#custom",
	})
	require.NoError(t, err)
	require.Len(t, chapters, 1)

	ch := chapters[0]
	assert.Equal(t, "01", ch.Key)
	assert.Equal(t, "Bedtime", ch.Title)
	require.Len(t, ch.Tracks, 3)
	assert.Equal(t, []string{"One", "meta b", "Three"}, []string{ch.Tracks[0].Title, ch.Tracks[1].Title, ch.Tracks[2].Title})
	for i, tr := range ch.Tracks {
		assert.Equal(t, Key(i+1), tr.Key)
		assert.Equal(t, Label(i+1), tr.OverlayLabel)
		assert.Equal(t, "yoto:#custom", tr.Display.Icon16x16)
	}
	assert.InDelta(t, 60.0, ch.Duration, 0.001)
	assert.Equal(t, int64(600), ch.FileSize)
}

func TestAssembleIsDeterministic(t *testing.T) {
	opts := Options{Mode: config.ModePerFileChapter}
	first, err := Assemble(threeResults(), []string{"Intro", "Story", "Outro"}, opts)
	require.NoError(t, err)
	second, err := Assemble(threeResults(), []string{"Intro", "Story", "Outro"}, opts)
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
}

func TestAssembleRejectsBadInput(t *testing.T) {
	_, err := Assemble(nil, nil, Options{})
	require.ErrorIs(t, err, services.ErrValidation)

	_, err = Assemble([]TranscodeResult{{}}, nil, Options{})
	require.ErrorIs(t, err, services.ErrValidation)

	_, err = Assemble(threeResults(), nil, Options{Mode: "shuffle"})
	require.ErrorIs(t, err, services.ErrValidation)
}

func TestNewCardComputesTotals(t *testing.T) {
	chapters, err := Assemble(threeResults(), nil, Options{})
	require.NoError(t, err)
	c := NewCard(" Stories ", chapters)

	assert.Equal(t, "Stories", c.Title)
	require.NotNil(t, c.Metadata.Media)
	assert.InDelta(t, 60.0, c.Metadata.Media.Duration, 0.001)
	assert.Equal(t, int64(600), c.Metadata.Media.FileSize)
	require.NoError(t, Validate(c))
}

func TestAppendChaptersContinuesNumbering(t *testing.T) {
	chapters, err := Assemble(threeResults(), nil, Options{})
	require.NoError(t, err)
	c := NewCard("Stories", chapters)

	more, err := Assemble([]TranscodeResult{result("ddd", "meta d", 5, 50)}, []string{"Encore"}, Options{ChapterOffset: len(c.Content.Chapters)})
	require.NoError(t, err)
	AppendChapters(c, more)

	require.Len(t, c.Content.Chapters, 4)
	assert.Equal(t, "04", c.Content.Chapters[3].Key)
	assert.Equal(t, int64(650), c.Metadata.Media.FileSize)
}

func TestChannelsJSON(t *testing.T) {
	var tr Track
	require.NoError(t, json.Unmarshal([]byte(`{"channels":2}`), &tr))
	assert.Equal(t, Channels("2"), tr.Channels)

	out, err := json.Marshal(Track{Channels: "2"})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"channels":2`)

	out, err = json.Marshal(Track{Channels: "mono"})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"channels":"mono"`)

	out, err = json.Marshal(Track{})
	require.NoError(t, err)
	assert.NotContains(t, string(out), "channels")
}
