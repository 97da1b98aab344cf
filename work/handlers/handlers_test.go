package handlers

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"epg-relay/work/buffer"
	"epg-relay/work/cache"
	"epg-relay/work/config"
	"epg-relay/work/realign"
	"epg-relay/work/relay"
	"epg-relay/work/resolve"
	"epg-relay/work/schedule"
	"epg-relay/work/upstream"

	"github.com/panjf2000/ants/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tsPackets(count int) []byte {
	out := make([]byte, 0, count*realign.PacketSize)
	for i := 0; i < count; i++ {
		pkt := make([]byte, realign.PacketSize)
		pkt[0] = realign.SyncByte
		for j := 1; j < realign.PacketSize; j++ {
			pkt[j] = byte(i)
		}
		out = append(out, pkt...)
	}
	return out
}

// newTestServer builds the full route surface over a fixed schedule.
func newTestServer(t *testing.T, doc schedule.Document) (*httptest.Server, func()) {
	t.Helper()
	cfg := &config.Config{
		UserAgent:       "Plex/1.0",
		MaxRedirects:    5,
		UpstreamTimeout: 2 * time.Second,
		ChunkSizeKB:     32,
	}
	pool, err := ants.NewPool(8, ants.WithNonblocking(true))
	require.NoError(t, err)
	guideCache := cache.NewGuideCache(false, time.Second)

	rl := relay.New(cfg,
		&schedule.FixedStore{Doc: doc},
		resolve.NewResolver(cfg),
		upstream.NewFetcher(cfg),
		pool,
		buffer.NewPool(cfg.ChunkSizeKB*1024),
		guideCache,
	)
	srv := httptest.NewServer(NewRouter(rl))
	return srv, func() {
		srv.Close()
		pool.Release()
		guideCache.Close()
	}
}

func scenarioDoc(newsURL string) schedule.Document {
	now := time.Now().UTC()
	return schedule.Document{
		"news": {
			Category: "News",
			ServiceChannels: []schedule.Channel{{
				ID:          "n1",
				ChannelName: "News1",
				IconURL:     "http://icons/n1.png",
				Programs: []schedule.Program{{
					StartDt:     now.Add(-time.Hour).Format(time.RFC3339),
					StopDt:      now.Add(time.Hour).Format(time.RFC3339),
					StartStr:    now.Add(-time.Hour).Format(schedule.XMLTVTimeLayout),
					StopStr:     now.Add(time.Hour).Format(schedule.XMLTVTimeLayout),
					ProgramName: "Bulletin",
					StreamURL:   newsURL,
				}},
			}},
		},
		"misc": {
			Category:        "Misc",
			ServiceChannels: []schedule.Channel{{ID: "e1", ChannelName: "Empty1"}},
		},
	}
}

func TestStreamEndToEnd(t *testing.T) {
	want := tsPackets(15)
	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(want)
	}))
	defer upstreamSrv.Close()

	srv, done := newTestServer(t, scenarioDoc(upstreamSrv.URL))
	defer done()

	resp, err := http.Get(srv.URL + "/stream/News1.ts")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "video/mp2t", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(want, body))
}

func TestEmptyChannelStreamsUnavailableButListedInEPG(t *testing.T) {
	srv, done := newTestServer(t, scenarioDoc("http://src/unused.ts"))
	defer done()

	resp, err := http.Get(srv.URL + "/stream/Empty1.ts")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/epg.xml")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	epg := string(body)
	assert.Contains(t, epg, `<channel id="e1">`)
	assert.Contains(t, epg, "Empty1 - Off Air")
}

func TestHealthReportsChannelCount(t *testing.T) {
	srv, done := newTestServer(t, scenarioDoc("http://src/a.ts"))
	defer done()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var health struct {
		Status        string `json:"status"`
		TotalChannels int    `json:"total_channels"`
		Timestamp     string `json:"timestamp"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 2, health.TotalChannels)
	_, err = time.Parse(time.RFC3339, health.Timestamp)
	assert.NoError(t, err)
}

func TestIndexLinksGuides(t *testing.T) {
	srv, done := newTestServer(t, scenarioDoc("http://src/a.ts"))
	defer done()

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "/playlist.m3u")
	assert.Contains(t, string(body), "/epg.xml")
}

func TestPlaylistUsesRequestHost(t *testing.T) {
	srv, done := newTestServer(t, scenarioDoc("http://src/a.ts"))
	defer done()

	resp, err := http.Get(srv.URL + "/playlist.m3u")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "audio/x-mpegurl", resp.Header.Get("Content-Type"))
	body, _ := io.ReadAll(resp.Body)
	playlist := string(body)
	assert.True(t, strings.HasPrefix(playlist, "#EXTM3U"))
	assert.Contains(t, playlist, srv.URL+"/stream/News1.ts")
	// a channel with no programs has no playable entry
	assert.NotContains(t, playlist, "Empty1")
}

func TestPlaylistCachedPerRequestHost(t *testing.T) {
	cfg := &config.Config{
		UserAgent:       "Plex/1.0",
		MaxRedirects:    5,
		UpstreamTimeout: 2 * time.Second,
		ChunkSizeKB:     32,
	}
	pool, err := ants.NewPool(4, ants.WithNonblocking(true))
	require.NoError(t, err)
	defer pool.Release()
	guideCache := cache.NewGuideCache(true, time.Minute)
	defer guideCache.Close()

	rl := relay.New(cfg,
		&schedule.FixedStore{Doc: scenarioDoc("http://src/a.ts")},
		resolve.NewResolver(cfg),
		upstream.NewFetcher(cfg),
		pool,
		buffer.NewPool(cfg.ChunkSizeKB*1024),
		guideCache,
	)
	h := HandlePlaylist(rl)

	fetch := func(host string) string {
		req := httptest.NewRequest(http.MethodGet, "http://"+host+"/playlist.m3u", nil)
		rec := httptest.NewRecorder()
		h(rec, req)
		return rec.Body.String()
	}

	// each hostname gets links back to itself, even with the cache warm
	first := fetch("alpha.example")
	assert.Contains(t, first, "http://alpha.example/stream/News1.ts")

	second := fetch("beta.example")
	assert.Contains(t, second, "http://beta.example/stream/News1.ts")
	assert.NotContains(t, second, "alpha.example")

	// and repeat requests for a host serve the cached render unchanged
	assert.Equal(t, first, fetch("alpha.example"))
}

func TestGuideRoutesCompressWhenAccepted(t *testing.T) {
	srv, done := newTestServer(t, scenarioDoc("http://src/a.ts"))
	defer done()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/epg.xml", nil)
	req.Header.Set("Accept-Encoding", "gzip")

	// bypass the transport's transparent decompression to see the raw header
	tr := &http.Transport{DisableCompression: true}
	resp, err := tr.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))
	zr, err := gzip.NewReader(resp.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Contains(t, string(body), "<tv generator-info-name=")
}

func TestStreamsStatusEmpty(t *testing.T) {
	srv, done := newTestServer(t, scenarioDoc("http://src/a.ts"))
	defer done()

	resp, err := http.Get(srv.URL + "/streams/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var status struct {
		ActiveStreams int                   `json:"active_streams"`
		Sessions      []relay.SessionStatus `json:"sessions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Zero(t, status.ActiveStreams)
	assert.Empty(t, status.Sessions)
}

func TestMetricsExposed(t *testing.T) {
	srv, done := newTestServer(t, scenarioDoc("http://src/a.ts"))
	defer done()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUnknownRouteIs404(t *testing.T) {
	srv, done := newTestServer(t, scenarioDoc("http://src/a.ts"))
	defer done()

	resp, err := http.Get(srv.URL + "/no/such/route")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "Not found")
}
