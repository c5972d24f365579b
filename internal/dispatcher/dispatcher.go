// Package dispatcher implements the HTTP surface: it binds the parameter
// model, fingerprinter, result cache, storage backend, and audio pipeline
// into the parse -> fingerprint -> lookup -> (fetch+process+store) -> respond
// flow described in spec 4.G, plus the metadata (4.H) and params-echo
// endpoints.
//
// Grounded on the teacher's services/api/cmd/main.go router construction and
// internal/stream/stream.go's header/MIME and writeErr idioms, with
// single-flight (golang.org/x/sync/singleflight) and a counting semaphore
// (golang.org/x/sync/semaphore) replacing the teacher's Redis-Incr rate
// limiter since admission here bounds concurrent CPU-bound pipeline
// invocations, not per-client request rate.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/singleflight"

	"github.com/jonaylor89/freqmoda/internal/apperr"
	"github.com/jonaylor89/freqmoda/internal/pipeline"
	"github.com/jonaylor89/freqmoda/internal/sourcefetch"
	"github.com/jonaylor89/freqmoda/pkg/audio"
	"github.com/jonaylor89/freqmoda/pkg/cache"
	"github.com/jonaylor89/freqmoda/pkg/ffmpeg"
	"github.com/jonaylor89/freqmoda/pkg/fingerprint"
	"github.com/jonaylor89/freqmoda/pkg/objstore"
	"github.com/jonaylor89/freqmoda/pkg/params"
	"github.com/jonaylor89/freqmoda/pkg/signer"
)

// Pipeline is the capability the dispatcher needs from the audio processing
// engine (4.F), expressed as an interface so tests can substitute a fake
// instead of linking the real codec library.
type Pipeline interface {
	Process(ffmpeg.ProcessOptions) ([]byte, error)
	Probe(data []byte) (ffmpeg.Metadata, error)
}

// nativePipeline adapts the package-level ffmpeg functions to Pipeline.
type nativePipeline struct{}

func (nativePipeline) Process(opts ffmpeg.ProcessOptions) ([]byte, error) { return ffmpeg.Process(opts) }
func (nativePipeline) Probe(data []byte) (ffmpeg.Metadata, error)        { return ffmpeg.Probe(data) }

// NativePipeline is the real, astiav-backed Pipeline implementation.
var NativePipeline Pipeline = nativePipeline{}

// Admission bounds concurrent pipeline invocations (spec 4.I).
type Admission interface {
	// Acquire blocks until a slot is free or ctx is done, or returns
	// apperr.KindAdmission immediately if the wait queue is already at
	// capacity.
	Acquire(ctx context.Context) (release func(), err error)
}

// Service wires every component the dispatcher depends on.
type Service struct {
	Storage    objstore.Store
	ResultStore objstore.Store
	Cache      *cache.Cache
	Fetcher    *sourcefetch.Fetcher
	Pipeline   Pipeline
	Admission  Admission
	CacheTTL   time.Duration
	CustomTags map[string]string
	PipelineTimeout time.Duration

	// Signer, when non-nil, gates handleTransform/handleMeta behind signed-URL
	// verification (spec section 6's Signer contract): the request's
	// key-path must be prefixed with a signature segment the dispatcher
	// checks before any further processing. nil disables signing entirely.
	Signer signer.Signer

	sf singleflight.Group
	log *slog.Logger
}

// New constructs a Service. If logger is nil, slog.Default() is used. sgn may
// be nil to leave signed-URL verification disabled.
func New(storage, resultStore objstore.Store, c *cache.Cache, fetcher *sourcefetch.Fetcher, pl Pipeline, adm Admission, cacheTTL, pipelineTimeout time.Duration, customTags map[string]string, sgn signer.Signer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Storage:         storage,
		ResultStore:     resultStore,
		Cache:           c,
		Fetcher:         fetcher,
		Pipeline:        pl,
		Admission:       adm,
		CacheTTL:        cacheTTL,
		PipelineTimeout: pipelineTimeout,
		CustomTags:      customTags,
		Signer:          sgn,
		log:             logger,
	}
}

// Routes mounts the public HTTP surface (spec section 6) onto r.
func (s *Service) Routes(r chi.Router) {
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(s.logMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/meta/*", s.handleMeta)
	r.Get("/params/*", s.handleParams)
	r.Get("/*", s.handleTransform)
}

func (s *Service) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(), "duration", time.Since(start))
	})
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// keyFromWildcard extracts the "{path...}" portion chi captured under "*".
func keyFromWildcard(r *http.Request) string {
	return strings.TrimPrefix(chi.URLParam(r, "*"), "/")
}

// resolveSignedKey strips and verifies the leading "<signature>/" segment
// spec section 6's Signer contract prepends to a key-path, returning the
// unsigned key. If s.Signer is nil, signing is disabled and raw is returned
// unchanged. A missing signature segment or a signature that fails
// verification both map to apperr.KindForbidden (403).
func (s *Service) resolveSignedKey(raw string) (string, error) {
	if s.Signer == nil {
		return raw, nil
	}
	sig, rest, ok := strings.Cut(raw, "/")
	if !ok || sig == "" || rest == "" {
		return "", apperr.New(apperr.KindForbidden, errors.New("signed url: missing signature segment"))
	}
	if !s.Signer.Verify(rest, sig) {
		return "", apperr.New(apperr.KindForbidden, errors.New("signed url: signature verification failed"))
	}
	return rest, nil
}

func (s *Service) handleParams(w http.ResponseWriter, r *http.Request) {
	key := keyFromWildcard(r)
	p, err := params.FromPath(key, r.URL.Query())
	if err != nil {
		apperr.WriteHTTP(w, apperr.New(apperr.KindBadRequest, err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(p)
}

func (s *Service) handleMeta(w http.ResponseWriter, r *http.Request) {
	key := keyFromWildcard(r)
	if key == "" {
		apperr.WriteHTTP(w, apperr.New(apperr.KindBadRequest, errors.New("missing key")))
		return
	}
	key, err := s.resolveSignedKey(key)
	if err != nil {
		apperr.WriteHTTP(w, err)
		return
	}

	data, err := s.Fetcher.Fetch(r.Context(), key)
	if err != nil {
		apperr.WriteHTTP(w, err)
		return
	}

	meta, err := s.Pipeline.Probe(data)
	if err != nil {
		apperr.WriteHTTP(w, mapPipelineError(err))
		return
	}

	resp := struct {
		Duration   float64           `json:"duration"`
		Format     string            `json:"format"`
		Codec      string            `json:"codec"`
		SampleRate int               `json:"sample_rate"`
		Channels   int               `json:"channels"`
		BitRate    *int64            `json:"bit_rate"`
		Tags       map[string]string `json:"tags"`
	}{
		Duration:   meta.DurationS,
		Format:     meta.Format,
		Codec:      meta.Codec,
		SampleRate: meta.SampleRate,
		Channels:   meta.Channels,
		Tags:       meta.Tags,
	}
	if meta.BitRate > 0 {
		br := meta.BitRate
		resp.BitRate = &br
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// handleTransform implements the primary transform endpoint, spec 4.G steps
// 1-10.
func (s *Service) handleTransform(w http.ResponseWriter, r *http.Request) {
	key := keyFromWildcard(r)
	if key == "" {
		apperr.WriteHTTP(w, apperr.New(apperr.KindBadRequest, errors.New("missing key")))
		return
	}
	key, err := s.resolveSignedKey(key)
	if err != nil {
		apperr.WriteHTTP(w, err)
		return
	}

	// 1. Parse.
	p, err := params.FromPath(key, r.URL.Query())
	if err != nil {
		apperr.WriteHTTP(w, apperr.New(apperr.KindBadRequest, err))
		return
	}

	// 2. Fingerprint + derived result key.
	fp := fingerprint.Of(p)
	fpHex := fp.Hex()
	out := pipeline.NewOutputFormat(p)
	resultKey := fp.ShardedPath()

	ctx := r.Context()

	// 3. Cache lookup.
	if data, hit, err := s.Cache.Get(ctx, fpHex); err == nil && hit {
		s.respond(w, data, out, fpHex, "hit")
		return
	}

	// 4. Storage lookup.
	if data, err := s.ResultStore.Get(ctx, resultKey); err == nil {
		_ = s.Cache.Set(ctx, fpHex, data, s.CacheTTL)
		s.respond(w, data, out, fpHex, "hit")
		return
	} else if !errors.Is(err, objstore.ErrNotFound) {
		s.log.Warn("result store lookup failed", "fingerprint", fpHex, "err", err)
	}

	// 5-10: build, single-flighted per fingerprint.
	v, err, _ := s.sf.Do(fpHex, func() (any, error) {
		return s.build(ctx, p, out, key, resultKey, fpHex)
	})
	if err != nil {
		apperr.WriteHTTP(w, err)
		return
	}

	s.respond(w, v.([]byte), out, fpHex, "miss")
}

// build admits through the concurrency cap, fetches the source, runs the
// pipeline, and persists the result -- the body of the single-flighted
// closure in handleTransform, shared verbatim by every racer for the same
// fingerprint.
func (s *Service) build(ctx context.Context, p *params.Params, out pipeline.OutputFormat, key, resultKey, fpHex string) ([]byte, error) {
	release, err := s.Admission.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	// 7. Source fetch.
	src, err := s.Fetcher.Fetch(ctx, key)
	if err != nil {
		return nil, err
	}

	buf := audio.New(src)

	pipelineCtx := ctx
	var cancel context.CancelFunc
	if s.PipelineTimeout > 0 {
		pipelineCtx, cancel = context.WithTimeout(ctx, s.PipelineTimeout)
		defer cancel()
	}

	tags := mergeTags(s.CustomTags, p.Tags)
	done := make(chan struct{})
	var result []byte
	var procErr error
	go func() {
		result, procErr = s.Pipeline.Process(ffmpeg.ProcessOptions{
			Input:     buf.Bytes,
			Output:    out,
			Filters:   pipeline.BuildFilterChain(p),
			Metadata:  tags,
			StartTime: p.StartTime,
			Duration:  p.Duration,
		})
		close(done)
	}()

	select {
	case <-done:
	case <-pipelineCtx.Done():
		return nil, apperr.New(apperr.KindTimeout, fmt.Errorf("pipeline timed out: %w", pipelineCtx.Err()))
	}

	if procErr != nil {
		return nil, mapPipelineError(procErr)
	}

	// 9. Persist. Failures here are logged but never fail the response.
	if err := s.ResultStore.Put(context.WithoutCancel(ctx), resultKey, result); err != nil {
		s.log.Warn("result persist failed", "fingerprint", fpHex, "err", err)
	}
	if err := s.Cache.Set(context.WithoutCancel(ctx), fpHex, result, s.CacheTTL); err != nil {
		s.log.Warn("cache persist failed", "fingerprint", fpHex, "err", err)
	}

	return result, nil
}

func mergeTags(base, overlay map[string]string) map[string]string {
	if len(base) == 0 && len(overlay) == 0 {
		return nil
	}
	out := make(map[string]string, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}

func (s *Service) respond(w http.ResponseWriter, data []byte, out pipeline.OutputFormat, fpHex, cacheStatus string) {
	w.Header().Set("Content-Type", audio.MIMEForFormatName(out.Format))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("X-Fingerprint", fpHex)
	w.Header().Set("X-Cache", cacheStatus)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// mapPipelineError translates a pkg/ffmpeg.Error into the apperr.Kind that
// apperr.WriteHTTP maps to a status code, keeping the pipeline package
// itself free of any HTTP-layer dependency.
func mapPipelineError(err error) error {
	var fe *ffmpeg.Error
	if !errors.As(err, &fe) {
		return apperr.New(apperr.KindPipelineBackend, err)
	}
	switch fe.Kind {
	case ffmpeg.ErrKindNoAudioStream:
		return apperr.New(apperr.KindBadRequest, fe)
	case ffmpeg.ErrKindCodecNotFound:
		return apperr.New(apperr.KindCodecNotFound, fe)
	case ffmpeg.ErrKindFilterConfig, ffmpeg.ErrKindInvalidParameter:
		return apperr.New(apperr.KindFilterConfig, fe)
	default:
		return apperr.Backend(fe.Op, fe.Code, fe)
	}
}
