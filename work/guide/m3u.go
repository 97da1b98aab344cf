// Package guide renders the schedule as client-facing guide documents: an
// M3U playlist pointing every channel at its relay URL, and an XMLTV file
// carrying the gap-filled programme data.
package guide

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"epg-relay/work/schedule"
)

// BuildM3U renders the playlist. Channels without any scheduled program are
// omitted: a playlist entry with no programming ever is dead weight in a
// player, whereas the EPG still covers such channels with placeholders.
// Groups are emitted in sorted order so output is stable across renders.
func BuildM3U(doc schedule.Document, baseURL string) string {
	base := strings.TrimRight(baseURL, "/")

	groups := make([]string, 0, len(doc))
	for name := range doc {
		groups = append(groups, name)
	}
	sort.Strings(groups)

	var sb strings.Builder
	sb.WriteString("#EXTM3U\n")

	for _, name := range groups {
		pattern := doc[name]
		for _, ch := range pattern.ServiceChannels {
			if len(ch.Programs) == 0 {
				continue
			}
			fmt.Fprintf(&sb, "#EXTINF:-1 tvg-id=%q tvg-name=%q tvg-logo=%q group-title=%q,%s\n",
				ch.ID, ch.ChannelName, ch.IconURL, pattern.Category, ch.ChannelName)
			fmt.Fprintf(&sb, "%s/stream/%s.ts\n", base, url.PathEscape(ch.ChannelName))
		}
	}

	return sb.String()
}
