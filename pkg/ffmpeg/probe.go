package ffmpeg

import (
	"github.com/asticode/go-astiav"
)

// Metadata is the stage-1, decode-free probe result the metadata endpoint
// returns: enough to answer "what is this file" without running the
// pipeline at all.
type Metadata struct {
	Format     string
	Codec      string
	DurationS  float64
	SampleRate int
	Channels   int
	BitRate    int64
	Tags       map[string]string
}

// Probe opens the container just far enough to read its header and stream
// parameters, without decoding a single frame.
func Probe(data []byte) (Metadata, error) {
	initLibrary()

	ioCtx, closeIO, err := newInputIOContext(data)
	if err != nil {
		return Metadata{}, err
	}
	defer closeIO()

	fmtCtx := astiav.AllocFormatContext()
	if fmtCtx == nil {
		return Metadata{}, errAllocation("probe format context")
	}
	defer fmtCtx.Free()
	fmtCtx.SetPb(ioCtx)

	if err := fmtCtx.OpenInput("", nil, nil); err != nil {
		return Metadata{}, errBackend("open input", err)
	}
	defer fmtCtx.CloseInput()

	if err := fmtCtx.FindStreamInfo(nil); err != nil {
		return Metadata{}, errBackend("find stream info", err)
	}

	stream, err := findAudioStream(fmtCtx)
	if err != nil {
		return Metadata{}, err
	}
	params := stream.CodecParameters()

	codecName := "unknown"
	if codec := astiav.FindDecoder(params.CodecID()); codec != nil {
		codecName = codec.Name()
	}

	tags := map[string]string{}
	for _, e := range fmtCtx.Metadata().All() {
		tags[e.Key()] = e.Value()
	}

	durationS := 0.0
	if d := fmtCtx.Duration(); d != astiav.NoPtsValue {
		durationS = float64(d) / float64(astiav.TimeBase)
	}

	return Metadata{
		Format:     fmtCtx.InputFormat().Name(),
		Codec:      codecName,
		DurationS:  durationS,
		SampleRate: params.SampleRate(),
		Channels:   params.ChannelLayout().Channels(),
		BitRate:    params.BitRate(),
		Tags:       tags,
	}, nil
}
