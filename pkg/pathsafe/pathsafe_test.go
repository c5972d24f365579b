package pathsafe

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalise_RejectsEmpty(t *testing.T) {
	_, err := Normalise("")
	require.ErrorIs(t, err, ErrEmpty)
}

func TestNormalise_RejectsAllTraversalSegments(t *testing.T) {
	_, err := Normalise("../../..")
	require.ErrorIs(t, err, ErrEmpty)
}

func TestNormalise_StripsTraversalSegmentsAmongValidOnes(t *testing.T) {
	out, err := Normalise("a/../../b/./c")
	require.NoError(t, err)
	assert.False(t, strings.Contains(out, ".."))
	assert.Equal(t, "a/b/c", out)
}

func TestNormalise_StripsLeadingSlash(t *testing.T) {
	out, err := Normalise("/a/b")
	require.NoError(t, err)
	assert.False(t, strings.HasPrefix(out, "/"))
	assert.Equal(t, "a/b", out)
}

func TestNormalise_ReplacesReservedChars(t *testing.T) {
	out, err := Normalise(`a?b&c=d%e"f<g>h\i j`)
	require.NoError(t, err)
	for _, r := range []string{"?", "&", "=", "%", `"`, "<", ">", `\`, " "} {
		assert.False(t, strings.Contains(out, r), "should not contain %q, got %q", r, out)
	}
}

func TestNormalise_CollapsesRepeats(t *testing.T) {
	out, err := Normalise("a??b")
	require.NoError(t, err)
	assert.Equal(t, "a_b", out)
}

func TestNormalise_NeverProducesTraversalOrAbsolute(t *testing.T) {
	inputs := []string{
		"../etc/passwd",
		"/../../x",
		"a/../../../b",
		"normal/key.mp3",
		"a?b&c/../d",
	}
	for _, in := range inputs {
		out, err := Normalise(in)
		if err != nil {
			continue
		}
		for _, seg := range strings.Split(out, "/") {
			assert.NotEqual(t, "..", seg, "input %q produced %q with a traversal segment", in, out)
		}
		assert.False(t, strings.HasPrefix(out, "/"), "input %q produced %q with leading slash", in, out)
	}
}

func TestNoOp_PassesThroughTrustedInput(t *testing.T) {
	out, err := NoOp("aa/bb/cc")
	require.NoError(t, err)
	assert.Equal(t, "aa/bb/cc", out)
}

func TestNoOp_RejectsEmpty(t *testing.T) {
	_, err := NoOp("")
	require.ErrorIs(t, err, ErrEmpty)
}
