package fingerprint

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonaylor89/freqmoda/pkg/params"
)

func mustParse(t *testing.T, key string, q url.Values) *params.Params {
	t.Helper()
	p, err := params.FromPath(key, q)
	require.NoError(t, err)
	return p
}

func TestOf_DeterministicForIdenticalParams(t *testing.T) {
	p1 := mustParse(t, "t.mp3", url.Values{"format": {"wav"}, "volume": {"0.8"}})
	p2 := mustParse(t, "t.mp3", url.Values{"format": {"wav"}, "volume": {"0.8"}})

	assert.Equal(t, Of(p1), Of(p2))
}

func TestOf_DiffersWhenFieldsDiffer(t *testing.T) {
	p1 := mustParse(t, "t.mp3", url.Values{"volume": {"0.8"}})
	p2 := mustParse(t, "t.mp3", url.Values{"volume": {"0.9"}})

	assert.NotEqual(t, Of(p1), Of(p2))
}

func TestOf_FieldOrderIndependentOfConstructionOrder(t *testing.T) {
	p1 := mustParse(t, "t.mp3", url.Values{"format": {"wav"}, "channels": {"2"}, "volume": {"0.5"}})
	p2 := mustParse(t, "t.mp3", url.Values{"volume": {"0.5"}, "channels": {"2"}, "format": {"wav"}})

	assert.Equal(t, Of(p1), Of(p2), "canonical encoding walks fields in fixed order regardless of map iteration order")
}

func TestOf_PresetCollapsesWithCanonicalTuple(t *testing.T) {
	preset := mustParse(t, "t.mp3", url.Values{"echo": {"light"}})
	tuple := mustParse(t, "t.mp3", url.Values{"echo": {"0.6:0.3:1000:0.3"}})

	assert.Equal(t, Of(preset), Of(tuple), "invariant 4: preset and its canonical expansion must fingerprint identically")
}

func TestOf_UnsetFieldsOmittedFromEncoding(t *testing.T) {
	p := &params.Params{Key: "t.mp3"}
	b := CanonicalBytes(p)
	assert.Equal(t, "key\x1ft.mp3\x1f", string(b))
}

func TestOf_TagsEncodedSortedByKey(t *testing.T) {
	p := &params.Params{Key: "t.mp3", Tags: map[string]string{"z": "1", "a": "2"}}
	b := string(CanonicalBytes(p))
	aIdx := indexOf(b, "tags[a]")
	zIdx := indexOf(b, "tags[z]")
	require.GreaterOrEqual(t, aIdx, 0)
	require.GreaterOrEqual(t, zIdx, 0)
	assert.Less(t, aIdx, zIdx)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

func TestShardedPath(t *testing.T) {
	p := mustParse(t, "t.mp3", nil)
	d := Of(p)
	h := d.Hex()
	assert.Equal(t, h[0:2]+"/"+h[2:4]+"/"+h, d.ShardedPath())
}

func TestSuffixedName(t *testing.T) {
	p := mustParse(t, "t.mp3", nil)
	d := Of(p)
	name := d.SuffixedName("t", "wav")
	assert.Equal(t, "t."+d.Hex()[0:20]+".wav", name)
}

func TestHex_Is40LowercaseHexChars(t *testing.T) {
	p := mustParse(t, "t.mp3", nil)
	h := Of(p).Hex()
	assert.Len(t, h, 40)
	for _, c := range h {
		assert.True(t, (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f'), "unexpected char %q", c)
	}
}
