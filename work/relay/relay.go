// Package relay drives one client stream request end to end: resolve the
// channel's active event, connect to the upstream source, and pump the
// realigned TS packets down to the client under backpressure.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"epg-relay/work/buffer"
	"epg-relay/work/cache"
	"epg-relay/work/config"
	"epg-relay/work/logger"
	"epg-relay/work/metrics"
	"epg-relay/work/realign"
	"epg-relay/work/resolve"
	"epg-relay/work/schedule"
	"epg-relay/work/upstream"
	"epg-relay/work/utils"

	"github.com/panjf2000/ants/v2"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/valyala/bytebufferpool"
)

// chunkQueueDepth bounds how many upstream read buffers can sit between the
// pump and the client writer. A slow client therefore stalls the pump (and,
// through it, the upstream read) instead of growing memory.
const chunkQueueDepth = 4

// Relay owns the shared machinery behind every stream request: the schedule
// store and resolver for event lookup, the upstream fetcher, the pump worker
// pool, the read-buffer pool, and the live session registry.
type Relay struct {
	Config   *config.Config
	Store    schedule.Store
	Resolver *resolve.Resolver
	Fetcher  *upstream.Fetcher
	Cache    *cache.GuideCache

	pool     *ants.Pool
	buffers  *buffer.Pool
	sessions *xsync.MapOf[string, *Session]
	nextID   atomic.Int64
}

// New wires a Relay from its dependencies. pool must be a nonblocking ants
// pool: when every worker is busy the pump submission fails immediately and
// the client gets a 503 instead of queueing behind stalled sessions.
func New(cfg *config.Config, store schedule.Store, resolver *resolve.Resolver,
	fetcher *upstream.Fetcher, pool *ants.Pool, buffers *buffer.Pool, guideCache *cache.GuideCache) *Relay {
	return &Relay{
		Config:   cfg,
		Store:    store,
		Resolver: resolver,
		Fetcher:  fetcher,
		Cache:    guideCache,
		pool:     pool,
		buffers:  buffers,
		sessions: xsync.NewMapOf[string, *Session](),
	}
}

// Snapshot returns the status of every live session, ordered by start time.
func (rl *Relay) Snapshot() []SessionStatus {
	var out []SessionStatus
	rl.sessions.Range(func(_ string, s *Session) bool {
		out = append(out, s.Status())
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt < out[j].StartedAt })
	return out
}

// chunk is one upstream read travelling from the pump to the client writer.
type chunk struct {
	buf *bytebufferpool.ByteBuffer
	n   int
}

// ServeStream handles a GET or HEAD for /stream/{identifier}. Resolution
// failures map to 404/503; upstream failures before headers map to 502/504.
// Once streaming starts, any failure simply ends the body.
func (rl *Relay) ServeStream(w http.ResponseWriter, r *http.Request, identifier string) {
	now := time.Now().UTC()
	res, err := rl.Resolver.Resolve(rl.Store.Get(), identifier, now)
	if err != nil {
		status, body := statusForResolveError(err)
		logger.Info("stream %s: %v", identifier, err)
		http.Error(w, body, status)
		return
	}

	// HEAD confirms the stream is resolvable without touching the upstream
	if r.Method == http.MethodHead {
		writeStreamHeaders(w)
		w.WriteHeader(http.StatusOK)
		return
	}

	label := utils.SanitizeChannelName(res.Channel.ChannelName)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	resp, err := rl.Fetcher.Fetch(ctx, res.SourceURL, r.Header.Get("Range"))
	if err != nil {
		status, body, errType := statusForUpstreamError(err)
		metrics.UpstreamErrors.WithLabelValues(label, errType).Inc()
		logger.Error("stream %s: upstream %s failed: %v",
			res.Channel.ChannelName, utils.LogURL(rl.Config, res.SourceURL), err)
		http.Error(w, body, status)
		return
	}
	defer resp.Body.Close()

	sess := &Session{
		ID:          fmt.Sprintf("%s-%d", label, rl.nextID.Add(1)),
		ChannelID:   res.Channel.ID,
		ChannelName: res.Channel.ChannelName,
		Program:     res.Event.ProgramName,
		SourceURL:   res.SourceURL,
		RemoteAddr:  r.RemoteAddr,
		Started:     time.Now(),
	}

	chunks := make(chan chunk, chunkQueueDepth)
	readErr := make(chan error, 1)
	body := resp.Body

	pump := func() {
		defer close(chunks)
		for {
			buf := rl.buffers.Get()
			n, err := body.Read(buf.B)
			if n > 0 {
				select {
				case chunks <- chunk{buf: buf, n: n}:
				case <-ctx.Done():
					rl.buffers.Put(buf)
					return
				}
			} else {
				rl.buffers.Put(buf)
			}
			if err != nil {
				if !errors.Is(err, io.EOF) && ctx.Err() == nil {
					readErr <- err
				}
				return
			}
		}
	}

	if err := rl.pool.Submit(pump); err != nil {
		logger.Error("stream %s: pump pool exhausted: %v", res.Channel.ChannelName, err)
		http.Error(w, "Relay at capacity", http.StatusServiceUnavailable)
		return
	}

	rl.sessions.Store(sess.ID, sess)
	metrics.ActiveSessions.WithLabelValues(label).Inc()
	defer func() {
		rl.sessions.Delete(sess.ID)
		metrics.ActiveSessions.WithLabelValues(label).Dec()
	}()

	logger.Info("stream %s: %q for %s via %s",
		res.Channel.ChannelName, res.Event.ProgramName, r.RemoteAddr,
		utils.LogURL(rl.Config, res.SourceURL))

	writeStreamHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	realigner := realign.New()
	var reportedDiscard int64
	writeFailed := false

	for c := range chunks {
		if !writeFailed {
			for _, pkt := range realigner.Push(c.buf.B[:c.n]) {
				if _, werr := w.Write(pkt); werr != nil {
					// client went away; stop the pump and drain
					writeFailed = true
					cancel()
					break
				}
				sess.bytes.Add(int64(len(pkt)))
				sess.packets.Add(1)
				metrics.BytesRelayed.WithLabelValues(label).Add(float64(len(pkt)))
				metrics.PacketsRelayed.WithLabelValues(label).Inc()
			}
			if d := realigner.Discarded(); d > reportedDiscard {
				metrics.ResyncBytesDiscarded.WithLabelValues(label).Add(float64(d - reportedDiscard))
				logger.Warn("stream %s: discarded %d bytes re-acquiring TS sync",
					res.Channel.ChannelName, d-reportedDiscard)
				reportedDiscard = d
			}
			if !writeFailed && flusher != nil {
				flusher.Flush()
			}
		}
		rl.buffers.Put(c.buf)
	}

	select {
	case err := <-readErr:
		metrics.UpstreamErrors.WithLabelValues(label, "read").Inc()
		logger.Warn("stream %s: upstream read ended: %v", res.Channel.ChannelName, err)
	default:
	}

	if writeFailed || r.Context().Err() != nil {
		logger.Info("stream %s: client disconnected after %s (%d packets)",
			res.Channel.ChannelName, utils.FormatBytes(sess.bytes.Load()), sess.packets.Load())
		return
	}
	logger.Info("stream %s: upstream ended after %s (%d packets)",
		res.Channel.ChannelName, utils.FormatBytes(sess.bytes.Load()), sess.packets.Load())
}

// writeStreamHeaders sets the live-stream response headers. They forbid any
// intermediary caching and advertise the raw transport stream type.
func writeStreamHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "video/mp2t")
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Accept-Ranges", "none")
	h.Set("Access-Control-Allow-Origin", "*")
}

func statusForResolveError(err error) (int, string) {
	switch {
	case errors.Is(err, resolve.ErrChannelNotFound):
		return http.StatusNotFound, "Channel not found"
	case errors.Is(err, resolve.ErrEventNotFound):
		return http.StatusNotFound, "No active event"
	case errors.Is(err, resolve.ErrStreamUnavailable):
		return http.StatusServiceUnavailable, "No stream source available"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}

func statusForUpstreamError(err error) (status int, body string, errType string) {
	if code, ok := upstream.IsRejected(err); ok {
		return http.StatusBadGateway, fmt.Sprintf("Upstream rejected the request (HTTP %d)", code), "rejected"
	}
	switch {
	case errors.Is(err, upstream.ErrTooManyRedirects):
		return http.StatusBadGateway, "Upstream redirect loop", "redirects"
	case errors.Is(err, upstream.ErrTimeout):
		return http.StatusGatewayTimeout, "Upstream timed out", "timeout"
	default:
		return http.StatusBadGateway, "Upstream unreachable", "unreachable"
	}
}
