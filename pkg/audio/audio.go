// Package audio defines the owned byte buffer that carries source and
// rendered audio through the system, tagged with a best-effort format
// detected from its magic number.
package audio

import "bytes"

// Format is the detected or declared container format. It is advisory only:
// nothing in the pipeline enforces that the bytes actually match it.
type Format int

const (
	Unknown Format = iota
	Mp3
	Wav
	Flac
	Ogg
	M4a
	Opus
)

func (f Format) String() string {
	switch f {
	case Mp3:
		return "mp3"
	case Wav:
		return "wav"
	case Flac:
		return "flac"
	case Ogg:
		return "ogg"
	case M4a:
		return "m4a"
	case Opus:
		return "opus"
	default:
		return "unknown"
	}
}

// MIME returns the format's media type for HTTP responses.
func (f Format) MIME() string {
	switch f {
	case Mp3:
		return "audio/mpeg"
	case Wav:
		return "audio/wav"
	case Flac:
		return "audio/flac"
	case Ogg:
		return "audio/ogg"
	case M4a:
		return "audio/mp4"
	case Opus:
		return "audio/opus"
	default:
		return "application/octet-stream"
	}
}

// Buffer is an owned byte vector tagged with a detected format.
type Buffer struct {
	Bytes  []byte
	Format Format
}

// New wraps data, sniffing its format from the leading magic bytes.
func New(data []byte) Buffer {
	return Buffer{Bytes: data, Format: Sniff(data)}
}

// Sniff detects a container format from its magic number. Returns Unknown if
// no known signature matches.
func Sniff(b []byte) Format {
	switch {
	case len(b) >= 3 && bytes.Equal(b[0:3], []byte("ID3")):
		return Mp3
	case len(b) >= 2 && b[0] == 0xff && (b[1]&0xe0) == 0xe0:
		return Mp3 // MPEG frame sync without an ID3 header
	case len(b) >= 12 && bytes.Equal(b[0:4], []byte("RIFF")) && bytes.Equal(b[8:12], []byte("WAVE")):
		return Wav
	case len(b) >= 4 && bytes.Equal(b[0:4], []byte("fLaC")):
		return Flac
	case len(b) >= 4 && bytes.Equal(b[0:4], []byte("OggS")):
		return Ogg
	case len(b) >= 12 && bytes.Equal(b[4:8], []byte("ftyp")):
		return M4a
	default:
		return Unknown
	}
}

// MIMEForFormatName maps a container extension/name (as used in Params) to
// its MIME type, mirroring the streaming-layer table this is grounded on.
func MIMEForFormatName(name string) string {
	switch name {
	case "mp3":
		return Mp3.MIME()
	case "wav":
		return Wav.MIME()
	case "flac":
		return Flac.MIME()
	case "ogg":
		return Ogg.MIME()
	case "m4a", "ipod":
		return M4a.MIME()
	case "opus":
		return Opus.MIME()
	default:
		return "application/octet-stream"
	}
}
