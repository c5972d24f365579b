package params

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromPath_IdentityWhenNoOptions(t *testing.T) {
	p, err := FromPath("t.mp3", url.Values{})
	require.NoError(t, err)
	assert.Equal(t, "t.mp3", p.Key)
	assert.Nil(t, p.Format)
	assert.Nil(t, p.Volume)
}

func TestFromPath_RecognisedFields(t *testing.T) {
	q := url.Values{
		"format":      {"wav"},
		"sample_rate": {"44100"},
		"channels":    {"2"},
		"speed":       {"1.5"},
		"volume":      {"0.8"},
		"reverse":     {"true"},
	}
	p, err := FromPath("t.mp3", q)
	require.NoError(t, err)
	require.NotNil(t, p.Format)
	assert.Equal(t, "wav", *p.Format)
	require.NotNil(t, p.SampleRate)
	assert.Equal(t, 44100, *p.SampleRate)
	require.NotNil(t, p.Channels)
	assert.Equal(t, 2, *p.Channels)
	require.NotNil(t, p.Speed)
	assert.Equal(t, 1.5, *p.Speed)
	require.NotNil(t, p.Volume)
	assert.Equal(t, 0.8, *p.Volume)
	require.NotNil(t, p.Reverse)
	assert.True(t, *p.Reverse)
}

func TestFromPath_TagFilterOptionPrefixes(t *testing.T) {
	q := url.Values{
		"tag_artist":  {"Radiohead"},
		"filter_foo":  {"custom=1"},
		"option_bar":  {"-movflags"},
		"unknown_key": {"ignored"},
	}
	p, err := FromPath("t.mp3", q)
	require.NoError(t, err)
	assert.Equal(t, "Radiohead", p.Tags["artist"])
	assert.Equal(t, []string{"custom=1"}, p.CustomFilters)
	assert.Equal(t, []string{"-movflags"}, p.CustomOptions)
}

func TestFromPath_SampleRateOutOfRange(t *testing.T) {
	_, err := FromPath("t.mp3", url.Values{"sample_rate": {"1000"}})
	require.Error(t, err)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "sample_rate", pe.Field)
}

func TestFromPath_ChannelsOutOfRange(t *testing.T) {
	_, err := FromPath("t.mp3", url.Values{"channels": {"9"}})
	require.Error(t, err)
}

func TestFromPath_SpeedMustBePositive(t *testing.T) {
	_, err := FromPath("t.mp3", url.Values{"speed": {"0"}})
	require.Error(t, err)
	_, err = FromPath("t.mp3", url.Values{"speed": {"-1"}})
	require.Error(t, err)
}

func TestFromPath_UnparseableFormatFallsBackToMp3(t *testing.T) {
	p, err := FromPath("t.mp3", url.Values{"format": {"garbage"}})
	require.NoError(t, err)
	require.NotNil(t, p.Format)
	assert.Equal(t, "mp3", *p.Format)
}

func TestFromPath_NonFiniteFloatRejected(t *testing.T) {
	_, err := FromPath("t.mp3", url.Values{"volume": {"NaN"}})
	require.Error(t, err)
	_, err = FromPath("t.mp3", url.Values{"lowpass": {"Inf"}})
	require.Error(t, err)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p, err := FromPath("t.mp3", url.Values{"format": {"wav"}, "volume": {"0.8"}})
	require.NoError(t, err)

	encoded, err := p.Encode()
	require.NoError(t, err)

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	decoded.Key = p.Key

	assert.Equal(t, p, decoded)
}

func TestFromPath_EncodedBaseOverlaidByExplicit(t *testing.T) {
	base := &Params{Key: "ignored", Format: strPtr("wav"), Volume: func() *float64 { v := 0.5; return &v }()}
	encoded, err := base.Encode()
	require.NoError(t, err)

	q := url.Values{"encoded": {encoded}, "format": {"flac"}}
	p, err := FromPath("t.mp3", q)
	require.NoError(t, err)

	assert.Equal(t, "t.mp3", p.Key, "key always comes from the path, never the encoded blob")
	require.NotNil(t, p.Format)
	assert.Equal(t, "flac", *p.Format, "explicit query field overlays the encoded base")
	require.NotNil(t, p.Volume)
	assert.Equal(t, 0.5, *p.Volume, "fields absent from the overlay keep the base's value")
}

func TestMergeWith_TagsMergeKeyWiseWithOverlayWinning(t *testing.T) {
	base := &Params{Key: "t.mp3", Tags: map[string]string{"artist": "A", "album": "Old"}}
	overlay := &Params{Tags: map[string]string{"album": "New", "genre": "Rock"}}

	merged := base.MergeWith(overlay)

	assert.Equal(t, "A", merged.Tags["artist"])
	assert.Equal(t, "New", merged.Tags["album"])
	assert.Equal(t, "Rock", merged.Tags["genre"])
}

func TestMergeWith_SequenceFieldsReplaceWholesale(t *testing.T) {
	base := &Params{Key: "t.mp3", CustomFilters: []string{"a", "b"}}
	overlay := &Params{CustomFilters: []string{"c"}}

	merged := base.MergeWith(overlay)

	assert.Equal(t, []string{"c"}, merged.CustomFilters)
}

func TestMergeWith_UnsetOverlayFieldsLeaveBaseUnchanged(t *testing.T) {
	v := 0.8
	base := &Params{Key: "t.mp3", Volume: &v}
	overlay := &Params{}

	merged := base.MergeWith(overlay)

	require.NotNil(t, merged.Volume)
	assert.Equal(t, v, *merged.Volume)
}

func TestEchoPresetExpansion(t *testing.T) {
	p, err := FromPath("t.mp3", url.Values{"echo": {"light"}})
	require.NoError(t, err)
	require.NotNil(t, p.Echo)
	assert.Equal(t, "0.6:0.3:1000:0.3", *p.Echo)
}

func TestEchoExplicitTupleUnaffected(t *testing.T) {
	p, err := FromPath("t.mp3", url.Values{"echo": {"0.6:0.3:1000:0.3"}})
	require.NoError(t, err)
	require.NotNil(t, p.Echo)
	assert.Equal(t, "0.6:0.3:1000:0.3", *p.Echo)
}

func TestToQuery_RendersSetFieldsOnly(t *testing.T) {
	p, err := FromPath("t.mp3", url.Values{"format": {"wav"}, "channels": {"2"}})
	require.NoError(t, err)

	q := p.ToQuery()
	assert.Equal(t, "wav", q.Get("format"))
	assert.Equal(t, "2", q.Get("channels"))
	assert.Empty(t, q.Get("bit_rate"))
}
