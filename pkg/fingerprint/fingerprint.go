// Package fingerprint computes the deterministic content hash that addresses
// a rendered transform in the result cache and storage backend.
package fingerprint

import (
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"strconv"

	"github.com/jonaylor89/freqmoda/pkg/params"
)

// Digest is a fingerprint: the SHA-1 of a Params value's canonical byte
// encoding. Collision resistance only needs to be good enough for cache
// addressing; this is not a security boundary.
type Digest [sha1.Size]byte

// Hex renders the digest as 40 lowercase hex characters.
func (d Digest) Hex() string { return hex.EncodeToString(d[:]) }

// Of computes the fingerprint of p. Fields are walked in the fixed order
// documented in the canonical encoding so that two Params values with
// identical observable fields always hash identically, regardless of
// construction order.
func Of(p *params.Params) Digest {
	return sha1.Sum(CanonicalBytes(p))
}

const sep = 0x1f // unit separator, never appears in decimal/string field values we emit

// CanonicalBytes renders p's canonical byte encoding: for every set field, in
// fixed order, its name, a separator byte, and its value -- integers in
// decimal, floats in shortest round-trip form, booleans as 0/1, strings raw.
// Unset fields are omitted entirely.
func CanonicalBytes(p *params.Params) []byte {
	var buf []byte

	emit := func(name, value string) {
		buf = append(buf, name...)
		buf = append(buf, sep)
		buf = append(buf, value...)
		buf = append(buf, sep)
	}
	emitF := func(name string, v *float64) {
		if v != nil {
			emit(name, strconv.FormatFloat(*v, 'g', -1, 64))
		}
	}
	emitI := func(name string, v *int) {
		if v != nil {
			emit(name, strconv.Itoa(*v))
		}
	}
	emitI64 := func(name string, v *int64) {
		if v != nil {
			emit(name, strconv.FormatInt(*v, 10))
		}
	}
	emitB := func(name string, v *bool) {
		if v != nil {
			if *v {
				emit(name, "1")
			} else {
				emit(name, "0")
			}
		}
	}
	emitS := func(name string, v *string) {
		if v != nil {
			emit(name, *v)
		}
	}

	emit("key", p.Key)
	emitS("format", p.Format)
	emitS("codec", p.Codec)
	emitI("sample_rate", p.SampleRate)
	emitI("channels", p.Channels)
	emitI64("bit_rate", p.BitRate)
	emitI("bit_depth", p.BitDepth)
	emitF("quality", p.Quality)
	emitI("compression_level", p.CompressionLevel)
	emitF("start_time", p.StartTime)
	emitF("duration", p.Duration)
	emitF("speed", p.Speed)
	emitB("reverse", p.Reverse)
	emitF("volume", p.Volume)
	emitB("normalize", p.Normalize)
	emitF("normalize_level", p.NormalizeLevel)
	emitF("lowpass", p.Lowpass)
	emitF("highpass", p.Highpass)
	emitS("bandpass", p.Bandpass)
	emitF("bass", p.Bass)
	emitF("treble", p.Treble)
	emitS("echo", p.Echo)
	emitS("chorus", p.Chorus)
	emitS("flanger", p.Flanger)
	emitS("phaser", p.Phaser)
	emitS("tremolo", p.Tremolo)
	emitS("compressor", p.Compressor)
	emitS("noise_reduction", p.NoiseReduction)
	emitF("fade_in", p.FadeIn)
	emitF("fade_out", p.FadeOut)
	emitF("cross_fade", p.CrossFade)

	for i, f := range p.CustomFilters {
		emit("custom_filters["+strconv.Itoa(i)+"]", f)
	}
	for i, o := range p.CustomOptions {
		emit("custom_options["+strconv.Itoa(i)+"]", o)
	}

	if len(p.Tags) > 0 {
		keys := make([]string, 0, len(p.Tags))
		for k := range p.Tags {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			emit("tags["+k+"]", p.Tags[k])
		}
	}

	return buf
}

// ShardedPath returns the two-level fan-out directory path for a digest:
// "<hex[0:2]>/<hex[2:4]>/<hex>".
func (d Digest) ShardedPath() string {
	h := d.Hex()
	return h[0:2] + "/" + h[2:4] + "/" + h
}

// SuffixedName returns "<stem>.<hex[0:20]>.<ext>" for a source key stem and
// an output extension (without the leading dot).
func (d Digest) SuffixedName(stem, ext string) string {
	return stem + "." + d.Hex()[0:20] + "." + ext
}
