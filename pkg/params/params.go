// Package params defines the transform parameter record, its URL and
// base64-blob encodings, and the merge rule between them.
package params

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Params is the strongly-typed record of every transform option a request may
// carry. Every field but Key is optional; a nil pointer means "unset" and is
// omitted from rendering, fingerprinting, and filter assembly.
type Params struct {
	Key string `json:"key"`

	Format            *string `json:"format,omitempty"`
	Codec             *string `json:"codec,omitempty"`
	SampleRate        *int    `json:"sample_rate,omitempty"`
	Channels          *int    `json:"channels,omitempty"`
	BitRate           *int64  `json:"bit_rate,omitempty"`
	BitDepth          *int    `json:"bit_depth,omitempty"`
	Quality           *float64 `json:"quality,omitempty"`
	CompressionLevel  *int    `json:"compression_level,omitempty"`

	StartTime *float64 `json:"start_time,omitempty"`
	Duration  *float64 `json:"duration,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
	Reverse   *bool    `json:"reverse,omitempty"`

	Volume         *float64 `json:"volume,omitempty"`
	Normalize      *bool    `json:"normalize,omitempty"`
	NormalizeLevel *float64 `json:"normalize_level,omitempty"`

	Lowpass  *float64 `json:"lowpass,omitempty"`
	Highpass *float64 `json:"highpass,omitempty"`
	Bandpass *string  `json:"bandpass,omitempty"`
	Bass     *float64 `json:"bass,omitempty"`
	Treble   *float64 `json:"treble,omitempty"`

	Echo          *string `json:"echo,omitempty"`
	Chorus        *string `json:"chorus,omitempty"`
	Flanger       *string `json:"flanger,omitempty"`
	Phaser        *string `json:"phaser,omitempty"`
	Tremolo       *string `json:"tremolo,omitempty"`
	Compressor    *string `json:"compressor,omitempty"`
	NoiseReduction *string `json:"noise_reduction,omitempty"`

	FadeIn    *float64 `json:"fade_in,omitempty"`
	FadeOut   *float64 `json:"fade_out,omitempty"`
	CrossFade *float64 `json:"cross_fade,omitempty"`

	CustomFilters []string          `json:"custom_filters,omitempty"`
	CustomOptions []string          `json:"custom_options,omitempty"`
	Tags          map[string]string `json:"tags,omitempty"`
}

// echoPresets, chorusPresets, flangerPresets map the three named effect
// presets to their canonical parameter tuples. Expansion happens here, at
// ingest time, so a preset and its expansion always fingerprint identically
// (spec invariant 4).
var echoPresets = map[string]string{
	"light":  "0.6:0.3:1000:0.3",
	"medium": "0.8:0.5:1000:0.5",
	"heavy":  "0.9:0.7:1000:0.7",
}

var chorusPresets = map[string]string{
	"light":  "0.5:0.9:50:0.4:0.25:2",
	"medium": "0.6:0.9:55:0.4:0.25:2",
	"heavy":  "0.7:0.9:60:0.4:0.25:2",
}

var flangerPresets = map[string]string{
	"light":  "delay=2:depth=2:speed=0.5",
	"medium": "delay=5:depth=4:speed=1",
	"heavy":  "delay=10:depth=8:speed=2",
}

func expandPreset(presets map[string]string, v string) string {
	if canonical, ok := presets[v]; ok {
		return canonical
	}
	return v
}

// expandPresets rewrites Echo/Chorus/Flanger in place from preset names to
// their canonical tuples. Must run before fingerprinting or filter assembly.
func (p *Params) expandPresets() {
	if p.Echo != nil {
		v := expandPreset(echoPresets, *p.Echo)
		p.Echo = &v
	}
	if p.Chorus != nil {
		v := expandPreset(chorusPresets, *p.Chorus)
		p.Chorus = &v
	}
	if p.Flanger != nil {
		v := expandPreset(flangerPresets, *p.Flanger)
		p.Flanger = &v
	}
}

// ParseError is returned for malformed input. The dispatcher maps it to 400.
type ParseError struct {
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("params: field %q: %v", e.Field, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// FromPath parses a request path plus query values into a Params. key is the
// request path after any leading "/params" or "/meta" prefix has been
// stripped by the caller (it may itself contain "/"); it always wins over any
// key embedded in an encoded blob.
func FromPath(key string, query url.Values) (*Params, error) {
	base := &Params{Key: key}

	if encoded := query.Get("encoded"); encoded != "" {
		decoded, err := Decode(encoded)
		if err != nil {
			return nil, &ParseError{Field: "encoded", Err: err}
		}
		decoded.Key = key
		base = decoded
	}

	explicit, err := fromQuery(key, query)
	if err != nil {
		return nil, err
	}

	merged := base.MergeWith(explicit)
	merged.expandPresets()
	return merged, nil
}

func fromQuery(key string, query url.Values) (*Params, error) {
	p := &Params{Key: key}

	for k, vals := range query {
		if len(vals) == 0 {
			continue
		}
		v := vals[len(vals)-1]

		switch k {
		case "encoded", "key":
			continue
		case "format":
			fv := v
			if !isValidFormat(fv) {
				fv = "mp3"
			}
			p.Format = &fv
		case "codec":
			p.Codec = strPtr(v)
		case "sample_rate":
			n, err := parseInt(v)
			if err != nil {
				return nil, &ParseError{Field: k, Err: err}
			}
			if n < 8000 || n > 192000 {
				return nil, &ParseError{Field: k, Err: fmt.Errorf("sample_rate %d out of range [8000,192000]", n)}
			}
			p.SampleRate = &n
		case "channels":
			n, err := parseInt(v)
			if err != nil {
				return nil, &ParseError{Field: k, Err: err}
			}
			if n < 1 || n > 8 {
				return nil, &ParseError{Field: k, Err: fmt.Errorf("channels %d out of range [1,8]", n)}
			}
			p.Channels = &n
		case "bit_rate":
			n, err := parseInt64(v)
			if err != nil {
				return nil, &ParseError{Field: k, Err: err}
			}
			p.BitRate = &n
		case "bit_depth":
			n, err := parseInt(v)
			if err != nil {
				return nil, &ParseError{Field: k, Err: err}
			}
			p.BitDepth = &n
		case "quality":
			f, err := parseFloat(v)
			if err != nil {
				return nil, &ParseError{Field: k, Err: err}
			}
			p.Quality = &f
		case "compression_level":
			n, err := parseInt(v)
			if err != nil {
				return nil, &ParseError{Field: k, Err: err}
			}
			p.CompressionLevel = &n
		case "start_time":
			f, err := parseNonNegFloat(v, k)
			if err != nil {
				return nil, err
			}
			p.StartTime = &f
		case "duration":
			f, err := parseNonNegFloat(v, k)
			if err != nil {
				return nil, err
			}
			p.Duration = &f
		case "speed":
			f, err := parseFloat(v)
			if err != nil {
				return nil, &ParseError{Field: k, Err: err}
			}
			if f <= 0 {
				return nil, &ParseError{Field: k, Err: fmt.Errorf("speed must be > 0, got %v", f)}
			}
			p.Speed = &f
		case "reverse":
			b := parseBool(v)
			p.Reverse = &b
		case "volume":
			f, err := parseFloat(v)
			if err != nil {
				return nil, &ParseError{Field: k, Err: err}
			}
			p.Volume = &f
		case "normalize":
			b := parseBool(v)
			p.Normalize = &b
		case "normalize_level":
			f, err := parseFloat(v)
			if err != nil {
				return nil, &ParseError{Field: k, Err: err}
			}
			p.NormalizeLevel = &f
		case "lowpass":
			f, err := parseFloat(v)
			if err != nil {
				return nil, &ParseError{Field: k, Err: err}
			}
			p.Lowpass = &f
		case "highpass":
			f, err := parseFloat(v)
			if err != nil {
				return nil, &ParseError{Field: k, Err: err}
			}
			p.Highpass = &f
		case "bandpass":
			p.Bandpass = strPtr(v)
		case "bass":
			f, err := parseFloat(v)
			if err != nil {
				return nil, &ParseError{Field: k, Err: err}
			}
			p.Bass = &f
		case "treble":
			f, err := parseFloat(v)
			if err != nil {
				return nil, &ParseError{Field: k, Err: err}
			}
			p.Treble = &f
		case "echo":
			p.Echo = strPtr(v)
		case "chorus":
			p.Chorus = strPtr(v)
		case "flanger":
			p.Flanger = strPtr(v)
		case "phaser":
			p.Phaser = strPtr(v)
		case "tremolo":
			p.Tremolo = strPtr(v)
		case "compressor":
			p.Compressor = strPtr(v)
		case "noise_reduction":
			p.NoiseReduction = strPtr(v)
		case "fade_in":
			f, err := parseNonNegFloat(v, k)
			if err != nil {
				return nil, err
			}
			p.FadeIn = &f
		case "fade_out":
			f, err := parseNonNegFloat(v, k)
			if err != nil {
				return nil, err
			}
			p.FadeOut = &f
		case "cross_fade":
			f, err := parseNonNegFloat(v, k)
			if err != nil {
				return nil, err
			}
			p.CrossFade = &f
		case "custom_filters":
			p.CustomFilters = append(p.CustomFilters, vals...)
		case "custom_options":
			p.CustomOptions = append(p.CustomOptions, vals...)
		default:
			switch {
			case strings.HasPrefix(k, "tag_"):
				if p.Tags == nil {
					p.Tags = map[string]string{}
				}
				p.Tags[strings.TrimPrefix(k, "tag_")] = v
			case strings.HasPrefix(k, "filter_"):
				p.CustomFilters = append(p.CustomFilters, v)
			case strings.HasPrefix(k, "option_"):
				p.CustomOptions = append(p.CustomOptions, v)
			}
			// unrecognised keys are silently ignored.
		}
	}

	return p, nil
}

func isValidFormat(v string) bool {
	switch strings.ToLower(v) {
	case "mp3", "wav", "flac", "ogg", "m4a", "opus":
		return true
	default:
		return false
	}
}

func parseNonNegFloat(v, field string) (float64, error) {
	f, err := parseFloat(v)
	if err != nil {
		return 0, &ParseError{Field: field, Err: err}
	}
	if f < 0 {
		return 0, &ParseError{Field: field, Err: fmt.Errorf("%s must be >= 0, got %v", field, f)}
	}
	return f, nil
}

func parseInt(v string) (int, error)     { return strconv.Atoi(v) }
func parseInt64(v string) (int64, error) { return strconv.ParseInt(v, 10, 64) }
func parseFloat(v string) (float64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("value %q is not finite", v)
	}
	return f, nil
}
func parseBool(v string) bool { return v == "true" || v == "1" }
func strPtr(v string) *string { return &v }

// ToQuery renders every set field back to a flat query map, for logging and
// signed URLs. custom_filters/custom_options are rendered under their bare
// field names, not the filter_/option_ prefixes also accepted on input;
// FromPath reads the bare names too, so custom filters and options survive a
// render-and-parse round trip.
func (p *Params) ToQuery() url.Values {
	q := url.Values{}
	put := func(k string, v *string) {
		if v != nil {
			q.Set(k, *v)
		}
	}
	putF := func(k string, v *float64) {
		if v != nil {
			q.Set(k, strconv.FormatFloat(*v, 'g', -1, 64))
		}
	}
	putI := func(k string, v *int) {
		if v != nil {
			q.Set(k, strconv.Itoa(*v))
		}
	}
	putI64 := func(k string, v *int64) {
		if v != nil {
			q.Set(k, strconv.FormatInt(*v, 10))
		}
	}
	putB := func(k string, v *bool) {
		if v != nil {
			if *v {
				q.Set(k, "true")
			} else {
				q.Set(k, "false")
			}
		}
	}

	put("format", p.Format)
	put("codec", p.Codec)
	putI("sample_rate", p.SampleRate)
	putI("channels", p.Channels)
	putI64("bit_rate", p.BitRate)
	putI("bit_depth", p.BitDepth)
	putF("quality", p.Quality)
	putI("compression_level", p.CompressionLevel)
	putF("start_time", p.StartTime)
	putF("duration", p.Duration)
	putF("speed", p.Speed)
	putB("reverse", p.Reverse)
	putF("volume", p.Volume)
	putB("normalize", p.Normalize)
	putF("normalize_level", p.NormalizeLevel)
	putF("lowpass", p.Lowpass)
	putF("highpass", p.Highpass)
	put("bandpass", p.Bandpass)
	putF("bass", p.Bass)
	putF("treble", p.Treble)
	put("echo", p.Echo)
	put("chorus", p.Chorus)
	put("flanger", p.Flanger)
	put("phaser", p.Phaser)
	put("tremolo", p.Tremolo)
	put("compressor", p.Compressor)
	put("noise_reduction", p.NoiseReduction)
	putF("fade_in", p.FadeIn)
	putF("fade_out", p.FadeOut)
	putF("cross_fade", p.CrossFade)

	for _, f := range p.CustomFilters {
		q.Add("custom_filters", f)
	}
	for _, o := range p.CustomOptions {
		q.Add("custom_options", o)
	}
	keys := make([]string, 0, len(p.Tags))
	for k := range p.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		q.Set("tag_"+k, p.Tags[k])
	}

	return q
}

// Encode renders p as URL-safe, unpadded base64 of its JSON encoding.
func (p *Params) Encode() (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Decode reverses Encode.
func Decode(encoded string) (*Params, error) {
	b, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}
	var p Params
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("json decode: %w", err)
	}
	return &p, nil
}

// MergeWith overlays o onto the receiver: explicit scalars in o replace,
// sequence fields in o replace wholesale, and tags merge key-wise with o
// winning per key. The receiver's Key is kept unless o.Key is non-empty.
func (b *Params) MergeWith(o *Params) *Params {
	out := *b

	if o.Key != "" {
		out.Key = o.Key
	}
	if o.Format != nil {
		out.Format = o.Format
	}
	if o.Codec != nil {
		out.Codec = o.Codec
	}
	if o.SampleRate != nil {
		out.SampleRate = o.SampleRate
	}
	if o.Channels != nil {
		out.Channels = o.Channels
	}
	if o.BitRate != nil {
		out.BitRate = o.BitRate
	}
	if o.BitDepth != nil {
		out.BitDepth = o.BitDepth
	}
	if o.Quality != nil {
		out.Quality = o.Quality
	}
	if o.CompressionLevel != nil {
		out.CompressionLevel = o.CompressionLevel
	}
	if o.StartTime != nil {
		out.StartTime = o.StartTime
	}
	if o.Duration != nil {
		out.Duration = o.Duration
	}
	if o.Speed != nil {
		out.Speed = o.Speed
	}
	if o.Reverse != nil {
		out.Reverse = o.Reverse
	}
	if o.Volume != nil {
		out.Volume = o.Volume
	}
	if o.Normalize != nil {
		out.Normalize = o.Normalize
	}
	if o.NormalizeLevel != nil {
		out.NormalizeLevel = o.NormalizeLevel
	}
	if o.Lowpass != nil {
		out.Lowpass = o.Lowpass
	}
	if o.Highpass != nil {
		out.Highpass = o.Highpass
	}
	if o.Bandpass != nil {
		out.Bandpass = o.Bandpass
	}
	if o.Bass != nil {
		out.Bass = o.Bass
	}
	if o.Treble != nil {
		out.Treble = o.Treble
	}
	if o.Echo != nil {
		out.Echo = o.Echo
	}
	if o.Chorus != nil {
		out.Chorus = o.Chorus
	}
	if o.Flanger != nil {
		out.Flanger = o.Flanger
	}
	if o.Phaser != nil {
		out.Phaser = o.Phaser
	}
	if o.Tremolo != nil {
		out.Tremolo = o.Tremolo
	}
	if o.Compressor != nil {
		out.Compressor = o.Compressor
	}
	if o.NoiseReduction != nil {
		out.NoiseReduction = o.NoiseReduction
	}
	if o.FadeIn != nil {
		out.FadeIn = o.FadeIn
	}
	if o.FadeOut != nil {
		out.FadeOut = o.FadeOut
	}
	if o.CrossFade != nil {
		out.CrossFade = o.CrossFade
	}
	if o.CustomFilters != nil {
		out.CustomFilters = o.CustomFilters
	}
	if o.CustomOptions != nil {
		out.CustomOptions = o.CustomOptions
	}
	if o.Tags != nil {
		merged := make(map[string]string, len(b.Tags)+len(o.Tags))
		for k, v := range b.Tags {
			merged[k] = v
		}
		for k, v := range o.Tags {
			merged[k] = v
		}
		out.Tags = merged
	}

	return &out
}
