package ffmpeg

import (
	"fmt"

	"github.com/asticode/go-astiav"
)

// filterGraph owns an astiav FilterGraph plus its buffersrc/buffersink
// endpoints for the lifetime of one pipeline invocation.
type filterGraph struct {
	graph       *astiav.FilterGraph
	buffersrc   *astiav.FilterContext
	buffersink  *astiav.FilterContext
}

// newFilterGraph builds an abuffer -> <filterSpec> -> abuffersink chain
// matching the decoder's native format on the source side and the encoder's
// target format/rate/layout on the sink side. filterSpec must already be in
// the fixed field order the fingerprint and DSP both depend on; an empty
// spec degenerates to "anull" (pass-through), matching the original's
// behaviour when only a format/rate/layout conversion drives the need for a
// graph at all.
func newFilterGraph(dec *astiav.CodecContext, outRate int, outFmt astiav.SampleFormat, outLayout astiav.ChannelLayout, filterSpec string) (*filterGraph, func(), error) {
	graph := astiav.AllocFilterGraph()
	if graph == nil {
		return nil, nil, errAllocation("filter graph")
	}
	release := func() { graph.Free() }

	buffersrcFilter := astiav.FindFilterByName("abuffer")
	buffersinkFilter := astiav.FindFilterByName("abuffersink")
	if buffersrcFilter == nil || buffersinkFilter == nil {
		release()
		return nil, nil, errAllocation("abuffer/abuffersink filters")
	}

	args := fmt.Sprintf(
		"time_base=1/%d:sample_rate=%d:sample_fmt=%s:channel_layout=%s",
		dec.SampleRate(), dec.SampleRate(), dec.SampleFormat().Name(), dec.ChannelLayout().String(),
	)
	buffersrcCtx, err := graph.NewFilterContext(buffersrcFilter, "in", args)
	if err != nil {
		release()
		return nil, nil, errFilterConfig("create abuffer", err)
	}
	buffersinkCtx, err := graph.NewFilterContext(buffersinkFilter, "out", "")
	if err != nil {
		release()
		return nil, nil, errFilterConfig("create abuffersink", err)
	}

	if err := buffersinkCtx.SetSampleFormats([]astiav.SampleFormat{outFmt}); err != nil {
		release()
		return nil, nil, errFilterConfig("set sink sample format", err)
	}
	if err := buffersinkCtx.SetSampleRates([]int{outRate}); err != nil {
		release()
		return nil, nil, errFilterConfig("set sink sample rate", err)
	}
	if err := buffersinkCtx.SetChannelLayouts([]astiav.ChannelLayout{outLayout}); err != nil {
		release()
		return nil, nil, errFilterConfig("set sink channel layout", err)
	}

	spec := filterSpec
	if spec == "" {
		spec = "anull"
	}

	inputs := astiav.AllocFilterInOut()
	outputs := astiav.AllocFilterInOut()
	if inputs == nil || outputs == nil {
		if inputs != nil {
			inputs.Free()
		}
		if outputs != nil {
			outputs.Free()
		}
		release()
		return nil, nil, errAllocation("filter inout")
	}
	defer inputs.Free()
	defer outputs.Free()

	outputs.SetName("in")
	outputs.SetFilterContext(buffersrcCtx)
	outputs.SetPadIdx(0)
	outputs.SetNext(nil)

	inputs.SetName("out")
	inputs.SetFilterContext(buffersinkCtx)
	inputs.SetPadIdx(0)
	inputs.SetNext(nil)

	if err := graph.Parse(spec, inputs, outputs); err != nil {
		release()
		return nil, nil, errFilterConfig("parse filter chain", err)
	}
	if err := graph.Configure(); err != nil {
		release()
		return nil, nil, errFilterConfig("configure filter graph", err)
	}

	return &filterGraph{graph: graph, buffersrc: buffersrcCtx, buffersink: buffersinkCtx}, release, nil
}

// push feeds one decoded frame into the graph.
func (fg *filterGraph) push(frame *astiav.Frame) error {
	if err := fg.buffersrc.BuffersrcAddFrame(frame, astiav.NewBuffersrcFlags()); err != nil {
		return errBackend("buffersrc add frame", err)
	}
	return nil
}

// pull drains every frame currently available from the sink, calling fn for
// each. Returns nil once the sink reports EAGAIN (no more frames without more
// input) or EOF (graph flushed).
func (fg *filterGraph) pull(out *astiav.Frame, fn func(*astiav.Frame) error) error {
	for {
		err := fg.buffersink.BuffersinkGetFrame(out, astiav.NewBuffersinkFlags())
		if err != nil {
			if isAgainOrEOF(err) {
				return nil
			}
			return errBackend("buffersink get frame", err)
		}
		if cbErr := fn(out); cbErr != nil {
			out.Unref()
			return cbErr
		}
		out.Unref()
	}
}

// signalEOF tells the graph no more input frames are coming, so the final
// drain (flush stage c) can proceed.
func (fg *filterGraph) signalEOF() error {
	if err := fg.buffersrc.BuffersrcAddFrame(nil, astiav.NewBuffersrcFlags()); err != nil {
		return errBackend("buffersrc add frame (eof)", err)
	}
	return nil
}
