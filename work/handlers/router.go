package handlers

import (
	"net/http"

	"epg-relay/work/middleware"
	"epg-relay/work/relay"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires every route. The guide documents are gzip-compressed for
// clients that accept it; the stream routes are not, so relayed TS bytes
// reach the client exactly as realigned.
func NewRouter(rl *relay.Relay) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", HandleHealth(rl)).Methods(http.MethodGet)
	r.HandleFunc("/", HandleIndex(rl)).Methods(http.MethodGet)
	r.HandleFunc("/playlist.m3u", middleware.Gzip(HandlePlaylist(rl))).Methods(http.MethodGet)
	r.HandleFunc("/epg.xml", middleware.Gzip(HandleEPG(rl))).Methods(http.MethodGet)
	r.HandleFunc("/stream/{channelId}", HandleStream(rl)).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/streams/status", HandleStatus(rl)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.NotFoundHandler = NotFound()
	return r
}
