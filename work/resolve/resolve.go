package resolve

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"time"

	"epg-relay/work/config"
	"epg-relay/work/logger"
	"epg-relay/work/schedule"
)

var (
	// ErrChannelNotFound means no channel matched the requested identifier.
	ErrChannelNotFound = errors.New("resolve: channel not found")

	// ErrEventNotFound means the channel exists but nothing is scheduled for
	// the requested instant, even after gap-filling.
	ErrEventNotFound = errors.New("resolve: no active event")

	// ErrStreamUnavailable means the active event has no stream URL and no
	// fallback program could supply one.
	ErrStreamUnavailable = errors.New("resolve: no stream source available")
)

// Resolution is the outcome of resolving "channel + instant" to a playable
// event. Event carries the resolved event's metadata even when SourceURL was
// borrowed from a fallback program.
type Resolution struct {
	Group     string
	Category  string
	Channel   schedule.Channel
	Event     schedule.Program
	SourceURL string
}

// Resolver maps a channel identifier and an instant onto the active scheduled
// event, synthesizing placeholder events over schedule gaps so every channel
// always has guide coverage across the visibility window.
type Resolver struct {
	cfg *config.Config
}

// NewResolver creates a Resolver using the configured placeholder icon.
func NewResolver(cfg *config.Config) *Resolver {
	return &Resolver{cfg: cfg}
}

// Window returns the guide visibility window around now: the previous UTC
// midnight minus one day through eight days after that midnight. Everything
// the resolver synthesizes lives inside this window.
func Window(now time.Time) (time.Time, time.Time) {
	midnight := now.UTC().Truncate(24 * time.Hour)
	return midnight.Add(-24 * time.Hour), midnight.Add(8 * 24 * time.Hour)
}

// Lookup finds a channel by identifier. The identifier is URL-decoded, then
// matched against channel_name across every group; when nothing matches, a
// second pass matches by id for clients holding stream URLs from older
// playlists. First match wins.
func (r *Resolver) Lookup(doc schedule.Document, identifier string) (schedule.Channel, string, string, bool) {
	name := identifier
	if decoded, err := url.QueryUnescape(identifier); err == nil {
		name = decoded
	}

	for group, pattern := range doc {
		for _, ch := range pattern.ServiceChannels {
			if ch.ChannelName == name {
				return ch, group, pattern.Category, true
			}
		}
	}
	for group, pattern := range doc {
		for _, ch := range pattern.ServiceChannels {
			if ch.ID == name {
				return ch, group, pattern.Category, true
			}
		}
	}
	return schedule.Channel{}, "", "", false
}

// Resolve maps the identifier and instant to the active event and its
// effective source URL. Errors distinguish unknown channel, no active event,
// and a known event with no obtainable stream source.
func (r *Resolver) Resolve(doc schedule.Document, identifier string, now time.Time) (*Resolution, error) {
	ch, group, category, ok := r.Lookup(doc, identifier)
	if !ok {
		return nil, ErrChannelNotFound
	}

	event, ok := r.activeEvent(ch, now)
	if !ok {
		return nil, ErrEventNotFound
	}

	res := &Resolution{
		Group:     group,
		Category:  category,
		Channel:   ch,
		Event:     event,
		SourceURL: event.StreamURL,
	}

	if res.SourceURL == "" {
		fallback, ok := fallbackSource(ch)
		if !ok {
			return nil, ErrStreamUnavailable
		}
		logger.Debug("channel %s: active event %q has no source, falling back to %q",
			ch.ChannelName, event.ProgramName, fallback.ProgramName)
		res.SourceURL = fallback.StreamURL
	}

	return res, nil
}

// activeEvent returns the first gap-filled entry covering now.
func (r *Resolver) activeEvent(ch schedule.Channel, now time.Time) (schedule.Program, bool) {
	for _, p := range r.GapFill(ch, now) {
		start, ok := p.StartTime()
		if !ok {
			continue
		}
		stop, ok := p.StopTime()
		if !ok {
			continue
		}
		if !start.After(now) && now.Before(stop) {
			return p, true
		}
	}
	return schedule.Program{}, false
}

// GapFill returns the channel's programs as an ordered, gap-free sequence
// covering the visibility window around now. Real programs appear unchanged;
// every hole before, between, and after them is covered by a synthesized
// placeholder. A channel with no resolvable programs yields one placeholder
// spanning the whole window.
func (r *Resolver) GapFill(ch schedule.Channel, now time.Time) []schedule.Program {
	windowStart, windowEnd := Window(now)

	type timed struct {
		prog  schedule.Program
		start time.Time
		stop  time.Time
	}
	var real []timed
	for _, p := range ch.Programs {
		if !p.Resolvable() {
			continue
		}
		start, _ := p.StartTime()
		stop, _ := p.StopTime()
		if !stop.After(windowStart) || !start.Before(windowEnd) {
			continue
		}
		real = append(real, timed{prog: p, start: start, stop: stop})
	}
	sort.SliceStable(real, func(i, j int) bool {
		return real[i].start.Before(real[j].start)
	})

	if len(real) == 0 {
		return []schedule.Program{r.placeholder(ch, windowStart, windowEnd)}
	}

	filled := make([]schedule.Program, 0, 2*len(real)+1)
	cursor := windowStart
	for _, t := range real {
		if t.start.After(cursor) {
			filled = append(filled, r.placeholder(ch, cursor, t.start))
		}
		filled = append(filled, t.prog)
		if t.stop.After(cursor) {
			cursor = t.stop
		}
	}
	if cursor.Before(windowEnd) {
		filled = append(filled, r.placeholder(ch, cursor, windowEnd))
	}
	return filled
}

// placeholder synthesizes a gap-covering program for [start, stop).
func (r *Resolver) placeholder(ch schedule.Channel, start, stop time.Time) schedule.Program {
	icon := r.cfg.PlaceholderIconURL
	if icon == "" {
		icon = ch.IconURL
	}
	return schedule.Program{
		StartDt:       start.Format(time.RFC3339),
		StopDt:        stop.Format(time.RFC3339),
		StartStr:      start.Format(schedule.XMLTVTimeLayout),
		StopStr:       stop.Format(schedule.XMLTVTimeLayout),
		ProgramName:   fmt.Sprintf("%s - Off Air", ch.ChannelName),
		Description:   fmt.Sprintf("No programming is scheduled on %s during this time.", ch.ChannelName),
		IconURL:       icon,
		IsPlaceholder: true,
	}
}

// fallbackSource picks the most recently ended real program carrying a stream
// URL: latest stop_dt wins. Programs without a parsable stop_dt cannot be
// ordered and are skipped.
func fallbackSource(ch schedule.Channel) (schedule.Program, bool) {
	var best schedule.Program
	var bestStop time.Time
	found := false
	for _, p := range ch.Programs {
		if p.StreamURL == "" {
			continue
		}
		stop, ok := p.StopTime()
		if !ok {
			continue
		}
		if !found || stop.After(bestStop) {
			best = p
			bestStop = stop
			found = true
		}
	}
	return best, found
}
