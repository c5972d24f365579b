// Package pipeline assembles the output format and filter-chain string a
// Params value implies, in the fixed order the fingerprint and the DSP engine
// both depend on.
package pipeline

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jonaylor89/freqmoda/pkg/params"
)

// OutputFormat is the render target derived from Params.Format/Codec and
// friends, with codec inferred from the container when not given explicitly.
type OutputFormat struct {
	Format           string
	Codec            string
	SampleRate       int
	Channels         int
	BitRate          int64
	Quality          float64
	CompressionLevel int
}

// formatDefaults maps a container extension to its default container name and
// codec, mirroring the original implementation's OutputFormat::from_extension.
var formatDefaults = map[string]struct {
	container string
	codec     string
}{
	"mp3":  {"mp3", "libmp3lame"},
	"wav":  {"wav", "pcm_s16le"},
	"flac": {"flac", "flac"},
	"ogg":  {"ogg", "libvorbis"},
	"m4a":  {"ipod", "aac"},
	"opus": {"ogg", "libopus"},
}

// NewOutputFormat derives the OutputFormat for p, defaulting to mp3/libmp3lame
// when no format is specified.
func NewOutputFormat(p *params.Params) OutputFormat {
	ext := "mp3"
	if p.Format != nil {
		ext = strings.ToLower(*p.Format)
	}
	d, ok := formatDefaults[ext]
	if !ok {
		d = formatDefaults["mp3"]
		ext = "mp3"
	}

	of := OutputFormat{Format: d.container, Codec: d.codec}
	if p.Codec != nil {
		of.Codec = *p.Codec
	}
	if p.SampleRate != nil {
		of.SampleRate = *p.SampleRate
	}
	if p.Channels != nil {
		of.Channels = *p.Channels
	}
	if p.BitRate != nil {
		of.BitRate = *p.BitRate
	} else {
		of.BitRate = 192_000
	}
	if p.Quality != nil {
		of.Quality = *p.Quality
	}
	if p.CompressionLevel != nil {
		of.CompressionLevel = *p.CompressionLevel
	}
	return of
}

// Extension returns the file extension to use for this output format's
// container, for suffixed result filenames.
func (of OutputFormat) Extension() string {
	for ext, d := range formatDefaults {
		if d.container == of.Format {
			return ext
		}
	}
	return "mp3"
}

const defaultNormalizeLevel = -16.0

// atempoMin, atempoMax bound a single atempo stage; speeds outside this range
// must be split into a chain of stages each within bounds (library
// constraint the filter graph enforces).
const atempoMin, atempoMax = 0.5, 2.0

// BuildFilterChain renders the fixed-order filter string spec 4.F describes.
// Fields at their identity value are omitted. custom_filters are appended
// last, after the entire named chain, per the documented last-wins order.
func BuildFilterChain(p *params.Params) string {
	var stages []string

	if p.Speed != nil && *p.Speed != 1.0 {
		stages = append(stages, atempoStages(*p.Speed)...)
	}
	if p.Reverse != nil && *p.Reverse {
		stages = append(stages, "areverse")
	}
	if p.Volume != nil && *p.Volume != 1.0 {
		stages = append(stages, fmt.Sprintf("volume=%.2f", *p.Volume))
	}
	if p.Normalize != nil && *p.Normalize {
		level := defaultNormalizeLevel
		if p.NormalizeLevel != nil {
			level = *p.NormalizeLevel
		}
		stages = append(stages, fmt.Sprintf("loudnorm=I=%.1f", level))
	}
	if p.Lowpass != nil {
		stages = append(stages, fmt.Sprintf("lowpass=f=%.1f", *p.Lowpass))
	}
	if p.Highpass != nil {
		stages = append(stages, fmt.Sprintf("highpass=f=%.1f", *p.Highpass))
	}
	if p.Bandpass != nil {
		stages = append(stages, "bandpass="+*p.Bandpass)
	}
	if p.Bass != nil {
		stages = append(stages, fmt.Sprintf("bass=g=%.1f", *p.Bass))
	}
	if p.Treble != nil {
		stages = append(stages, fmt.Sprintf("treble=g=%.1f", *p.Treble))
	}
	if p.Echo != nil {
		stages = append(stages, "aecho="+*p.Echo)
	}
	if p.Chorus != nil {
		stages = append(stages, "chorus="+*p.Chorus)
	}
	if p.Flanger != nil {
		stages = append(stages, "flanger="+*p.Flanger)
	}
	if p.Phaser != nil {
		stages = append(stages, "aphaser="+*p.Phaser)
	}
	if p.Tremolo != nil {
		stages = append(stages, "tremolo="+*p.Tremolo)
	}
	if p.Compressor != nil {
		stages = append(stages, "acompressor="+*p.Compressor)
	}
	if p.NoiseReduction != nil {
		stages = append(stages, "anlmdn="+*p.NoiseReduction)
	}
	if p.FadeIn != nil {
		stages = append(stages, fmt.Sprintf("afade=t=in:d=%.3f", *p.FadeIn))
	}
	if p.FadeOut != nil {
		// Counted from track start, not end -- a literal contract, not a bug.
		stages = append(stages, fmt.Sprintf("afade=t=out:d=%.3f", *p.FadeOut))
	}
	if p.CrossFade != nil {
		stages = append(stages, fmt.Sprintf("acrossfade=d=%.3f", *p.CrossFade))
	}

	stages = append(stages, p.CustomFilters...)

	return strings.Join(stages, ",")
}

// atempoStages splits a speed outside [0.5, 2.0] into a chain of atempo
// stages each within range, since a single atempo filter cannot express a
// ratio wider than that.
func atempoStages(speed float64) []string {
	if speed >= atempoMin && speed <= atempoMax {
		return []string{"atempo=" + strconv.FormatFloat(speed, 'f', 3, 64)}
	}

	var stages []string
	remaining := speed
	for remaining > atempoMax {
		stages = append(stages, "atempo="+strconv.FormatFloat(atempoMax, 'f', 3, 64))
		remaining /= atempoMax
	}
	for remaining < atempoMin {
		stages = append(stages, "atempo="+strconv.FormatFloat(atempoMin, 'f', 3, 64))
		remaining /= atempoMin
	}
	if remaining != 1.0 {
		stages = append(stages, "atempo="+strconv.FormatFloat(remaining, 'f', 3, 64))
	}
	return stages
}
