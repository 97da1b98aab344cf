package guide

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"epg-relay/work/resolve"
	"epg-relay/work/schedule"
)

// escapers for XML attribute and element content
var (
	attrEscaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
	)
	textEscaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
	)
)

// BuildXMLTV renders the full guide document. Every channel appears, even
// ones with no scheduled programs: the resolver's gap-filling guarantees at
// least one placeholder programme per channel across the visibility window,
// so players never see a channel with an empty guide.
func BuildXMLTV(doc schedule.Document, resolver *resolve.Resolver, now time.Time) string {
	groups := make([]string, 0, len(doc))
	for name := range doc {
		groups = append(groups, name)
	}
	sort.Strings(groups)

	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	sb.WriteString(`<tv generator-info-name="epg-relay">` + "\n")

	for _, name := range groups {
		for _, ch := range doc[name].ServiceChannels {
			fmt.Fprintf(&sb, "  <channel id=\"%s\">\n", attrEscaper.Replace(ch.ID))
			fmt.Fprintf(&sb, "    <display-name>%s</display-name>\n", textEscaper.Replace(ch.ChannelName))
			if ch.IconURL != "" {
				fmt.Fprintf(&sb, "    <icon src=\"%s\"/>\n", attrEscaper.Replace(ch.IconURL))
			}
			sb.WriteString("  </channel>\n")
		}
	}

	for _, name := range groups {
		pattern := doc[name]
		for _, ch := range pattern.ServiceChannels {
			chID := attrEscaper.Replace(ch.ID)
			for _, p := range resolver.GapFill(ch, now) {
				writeProgramme(&sb, chID, pattern.Category, p)
			}
		}
	}

	sb.WriteString("</tv>\n")
	return sb.String()
}

func writeProgramme(sb *strings.Builder, channelID, category string, p schedule.Program) {
	start, stop := p.StartStr, p.StopStr
	if start == "" || stop == "" {
		// placeholders always carry the formatted pair; generator entries
		// occasionally miss it, so derive from the instants
		s, okS := p.StartTime()
		e, okE := p.StopTime()
		if !okS || !okE {
			return
		}
		start = s.Format(schedule.XMLTVTimeLayout)
		stop = e.Format(schedule.XMLTVTimeLayout)
	}

	fmt.Fprintf(sb, "  <programme channel=\"%s\" start=\"%s\" stop=\"%s\">\n",
		channelID, attrEscaper.Replace(start), attrEscaper.Replace(stop))
	fmt.Fprintf(sb, "    <title>%s</title>\n", textEscaper.Replace(p.ProgramName))
	if p.Description != "" {
		fmt.Fprintf(sb, "    <desc>%s</desc>\n", textEscaper.Replace(p.Description))
	}
	if category != "" {
		fmt.Fprintf(sb, "    <category lang=\"en\">%s</category>\n", textEscaper.Replace(category))
	}
	if p.IconURL != "" {
		fmt.Fprintf(sb, "    <icon src=\"%s\"/>\n", attrEscaper.Replace(p.IconURL))
	}
	sb.WriteString("  </programme>\n")
}
