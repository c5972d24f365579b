package pipeline

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonaylor89/freqmoda/pkg/params"
)

func mustParse(t *testing.T, q url.Values) *params.Params {
	t.Helper()
	p, err := params.FromPath("t.mp3", q)
	require.NoError(t, err)
	return p
}

func TestBuildFilterChain_EmptyWhenNoOptions(t *testing.T) {
	p := mustParse(t, nil)
	assert.Empty(t, BuildFilterChain(p))
}

func TestBuildFilterChain_IdentityValuesOmitted(t *testing.T) {
	p := mustParse(t, url.Values{"speed": {"1.0"}, "volume": {"1.0"}, "reverse": {"false"}})
	assert.Empty(t, BuildFilterChain(p))
}

func TestBuildFilterChain_FixedOrder(t *testing.T) {
	p := mustParse(t, url.Values{
		"volume":    {"0.8"},
		"lowpass":   {"4000"},
		"fade_in":   {"2"},
		"fade_out":  {"3"},
		"speed":     {"1.5"},
		"treble":    {"2"},
		"highpass":  {"200"},
	})
	chain := BuildFilterChain(p)
	stages := strings.Split(chain, ",")

	idx := func(prefix string) int {
		for i, s := range stages {
			if strings.HasPrefix(s, prefix) {
				return i
			}
		}
		return -1
	}

	// atempo -> volume -> lowpass -> highpass -> treble -> afade(in) -> afade(out)
	assert.Less(t, idx("atempo"), idx("volume"))
	assert.Less(t, idx("volume"), idx("lowpass"))
	assert.Less(t, idx("lowpass"), idx("highpass"))
	assert.Less(t, idx("highpass"), idx("treble"))
	assert.Less(t, idx("treble"), idx("afade=t=in"))
	assert.Less(t, idx("afade=t=in"), idx("afade=t=out"))
}

func TestBuildFilterChain_CustomFiltersAppendedLast(t *testing.T) {
	p := mustParse(t, url.Values{"volume": {"0.8"}, "filter_x": {"volume=2.0"}})
	chain := BuildFilterChain(p)
	stages := strings.Split(chain, ",")
	require.Len(t, stages, 2)
	assert.True(t, strings.HasPrefix(stages[0], "volume="))
	assert.Equal(t, "volume=2.0", stages[1])
}

func TestAtempoStages_WithinRangeIsSingleStage(t *testing.T) {
	p := mustParse(t, url.Values{"speed": {"1.8"}})
	chain := BuildFilterChain(p)
	assert.Equal(t, "atempo=1.800", chain)
}

func TestAtempoStages_AboveRangeSplitsIntoMultiple(t *testing.T) {
	p := mustParse(t, url.Values{"speed": {"3.0"}})
	chain := BuildFilterChain(p)
	stages := strings.Split(chain, ",")
	assert.Greater(t, len(stages), 1)
	for _, s := range stages {
		assert.True(t, strings.HasPrefix(s, "atempo="))
	}
}

func TestAtempoStages_BelowRangeSplitsIntoMultiple(t *testing.T) {
	p := mustParse(t, url.Values{"speed": {"0.3"}})
	chain := BuildFilterChain(p)
	stages := strings.Split(chain, ",")
	assert.Greater(t, len(stages), 1)
}

func TestNewOutputFormat_DefaultsToMp3(t *testing.T) {
	p := mustParse(t, nil)
	of := NewOutputFormat(p)
	assert.Equal(t, "mp3", of.Format)
	assert.Equal(t, "libmp3lame", of.Codec)
	assert.Equal(t, int64(192_000), of.BitRate)
}

func TestNewOutputFormat_ExplicitFormatSelectsCodec(t *testing.T) {
	p := mustParse(t, url.Values{"format": {"flac"}})
	of := NewOutputFormat(p)
	assert.Equal(t, "flac", of.Format)
	assert.Equal(t, "flac", of.Codec)
}

func TestNewOutputFormat_ExplicitCodecOverridesDefault(t *testing.T) {
	p := mustParse(t, url.Values{"format": {"ogg"}, "codec": {"libopus"}})
	of := NewOutputFormat(p)
	assert.Equal(t, "ogg", of.Format)
	assert.Equal(t, "libopus", of.Codec)
}

func TestOutputFormat_Extension(t *testing.T) {
	p := mustParse(t, url.Values{"format": {"wav"}})
	of := NewOutputFormat(p)
	assert.Equal(t, "wav", of.Extension())
}

func TestBuildFilterChain_NormalizeDefaultLevel(t *testing.T) {
	p := mustParse(t, url.Values{"normalize": {"true"}})
	chain := BuildFilterChain(p)
	assert.Equal(t, "loudnorm=I=-16.0", chain)
}
