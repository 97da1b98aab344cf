// Package handlers exposes the HTTP surface: health, the HTML index, the
// guide documents, the stream relay routes, and the session status endpoint.
// Each handler is a factory taking the Relay so routing stays declarative in
// main and tests can build handlers around fixed stores.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"epg-relay/work/cache"
	"epg-relay/work/guide"
	"epg-relay/work/logger"
	"epg-relay/work/relay"

	"github.com/gorilla/mux"
)

// HandleHealth reports service liveness plus the channel count of the current
// schedule snapshot.
func HandleHealth(rl *relay.Relay) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc := rl.Store.Get()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":         "ok",
			"total_channels": doc.TotalChannels(),
			"timestamp":      time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// HandleIndex serves a minimal HTML landing page linking the guide documents.
func HandleIndex(rl *relay.Relay) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc := rl.Store.Get()
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<html>
<head><title>EPG Relay</title></head>
<body>
    <h1>EPG Relay</h1>
    <p>%d channels available</p>
    <div><a href="/playlist.m3u">Download M3U Playlist</a></div>
    <div><a href="/epg.xml">Download XMLTV EPG</a></div>
    <div><a href="/streams/status">Active Streams</a></div>
</body>
</html>
`, doc.TotalChannels())
	}
}

// HandlePlaylist renders the M3U playlist, caching the rendered document.
// The cache key includes the advertised base URL, so clients reaching the
// relay under different hostnames each get links to the host they used.
func HandlePlaylist(rl *relay.Relay) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		base := baseURL(rl, r)
		key := cache.KeyPlaylist + "|" + base
		out, ok := rl.Cache.Get(key)
		if !ok {
			out = guide.BuildM3U(rl.Store.Get(), base)
			rl.Cache.Set(key, out)
		}
		w.Header().Set("Content-Type", "audio/x-mpegurl")
		w.Header().Set("Cache-Control", "no-cache")
		w.Write([]byte(out))
	}
}

// HandleEPG renders the XMLTV guide, caching the rendered document. Gap
// filling runs inside the build so every channel has programme coverage.
func HandleEPG(rl *relay.Relay) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, ok := rl.Cache.Get(cache.KeyEPG)
		if !ok {
			out = guide.BuildXMLTV(rl.Store.Get(), rl.Resolver, time.Now().UTC())
			rl.Cache.Set(cache.KeyEPG, out)
		}
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		w.Write([]byte(out))
	}
}

// HandleStream relays the channel's active event to the client. The optional
// ".ts" suffix some players append is stripped before resolution.
func HandleStream(rl *relay.Relay) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identifier := strings.TrimSuffix(mux.Vars(r)["channelId"], ".ts")
		rl.ServeStream(w, r, identifier)
	}
}

// HandleStatus reports every active relay session as JSON.
func HandleStatus(rl *relay.Relay) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions := rl.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"active_streams": len(sessions),
			"sessions":       sessions,
		})
	}
}

// NotFound is the fallback for unrecognized routes.
func NotFound() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger.Debug("no route for %s %s", r.Method, r.URL.Path)
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// baseURL picks the advertised base for playlist stream links: the configured
// override when set, else the host the client actually reached us on.
func baseURL(rl *relay.Relay, r *http.Request) string {
	if rl.Config.BaseURL != "" {
		return rl.Config.BaseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
