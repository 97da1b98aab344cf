package relay

import (
	"sync/atomic"
	"time"
)

// Session is the runtime state of one client relay. It is owned by the
// request that created it and lives only as long as that connection; the
// registry holds it purely so the status endpoint can observe it.
type Session struct {
	ID          string
	ChannelID   string
	ChannelName string
	Program     string
	SourceURL   string
	RemoteAddr  string
	Started     time.Time

	bytes   atomic.Int64
	packets atomic.Int64
}

// SessionStatus is the JSON-facing snapshot of a live session.
type SessionStatus struct {
	ID              string  `json:"id"`
	ChannelID       string  `json:"channel_id"`
	ChannelName     string  `json:"channel_name"`
	Program         string  `json:"program"`
	RemoteAddr      string  `json:"remote_addr"`
	StartedAt       string  `json:"started_at"`
	DurationSeconds float64 `json:"duration_seconds"`
	BytesSent       int64   `json:"bytes_sent"`
	PacketsSent     int64   `json:"packets_sent"`
}

// Status captures a point-in-time snapshot of the session's counters.
func (s *Session) Status() SessionStatus {
	return SessionStatus{
		ID:              s.ID,
		ChannelID:       s.ChannelID,
		ChannelName:     s.ChannelName,
		Program:         s.Program,
		RemoteAddr:      s.RemoteAddr,
		StartedAt:       s.Started.UTC().Format(time.RFC3339),
		DurationSeconds: time.Since(s.Started).Seconds(),
		BytesSent:       s.bytes.Load(),
		PacketsSent:     s.packets.Load(),
	}
}
