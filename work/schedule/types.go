package schedule

import (
	"time"
)

// Document is the externally generated schedule: pattern/group name to the
// group's category and its virtual channels. A Document is immutable once
// loaded; the store replaces it wholesale on refresh.
type Document map[string]PatternGroup

// PatternGroup is one named group of virtual channels sharing a category.
type PatternGroup struct {
	Category        string    `json:"category"`
	ServiceChannels []Channel `json:"service_channels"`
}

// Channel is a virtual channel whose live source changes per the schedule.
// Identity resolves by ChannelName first; ID is retained for clients that
// were handed tvg-id based stream URLs by older playlists.
type Channel struct {
	ID          string    `json:"id"`
	ChannelName string    `json:"channel_name"`
	IconURL     string    `json:"icon_url,omitempty"`
	Programs    []Program `json:"programs"`
}

// Program is one scheduled event. StartDt/StopDt are RFC 3339 instants;
// StartStr/StopStr are the pre-formatted XMLTV guide timestamps produced
// by the schedule generator. StreamURL may be empty for placeholder or
// metadata-only entries. Programs are not guaranteed to be sorted.
type Program struct {
	StartDt     string `json:"start_dt"`
	StopDt      string `json:"stop_dt"`
	StartStr    string `json:"start_str"`
	StopStr     string `json:"stop_str"`
	ProgramName string `json:"program_name"`
	Description string `json:"description"`
	IconURL     string `json:"icon_url,omitempty"`
	StreamURL   string `json:"stream_url,omitempty"`

	// IsPlaceholder marks events synthesized by the resolver to cover
	// schedule gaps. Never set on programs read from the schedule file.
	IsPlaceholder bool `json:"-"`
}

// XMLTVTimeLayout is the guide timestamp format used in start_str/stop_str.
const XMLTVTimeLayout = "20060102150405 -0700"

// StartTime parses the program's start instant. ok is false when the field
// is missing or malformed; such programs are skipped by live resolution.
func (p *Program) StartTime() (time.Time, bool) {
	return parseInstant(p.StartDt)
}

// StopTime parses the program's stop instant.
func (p *Program) StopTime() (time.Time, bool) {
	return parseInstant(p.StopDt)
}

// Resolvable reports whether the program has a valid start/stop pair and
// can therefore be matched against the current instant.
func (p *Program) Resolvable() bool {
	start, ok := p.StartTime()
	if !ok {
		return false
	}
	stop, ok := p.StopTime()
	if !ok {
		return false
	}
	return start.Before(stop)
}

func parseInstant(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	// the generator has emitted second-less offsets in the past
	if t, err := time.Parse("2006-01-02T15:04:05Z0700", s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// TotalChannels counts the service channels across every group.
func (d Document) TotalChannels() int {
	total := 0
	for _, group := range d {
		total += len(group.ServiceChannels)
	}
	return total
}
