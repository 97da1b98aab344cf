package utils

import (
	"fmt"
	"net/url"
	"strings"

	"epg-relay/work/config"

	"github.com/grafana/regexp"
)

var (
	unsafeChars    = regexp.MustCompile(`[^\w\-\. ]+`)
	repeatedUnders = regexp.MustCompile(`_{2,}`)
)

// LogURL returns either the original URL or an obfuscated version for logging,
// depending on configuration. Upstream URLs frequently embed access tokens.
func LogURL(cfg *config.Config, url string) string {
	if cfg.ObfuscateUrls {
		return ObfuscateURL(url)
	}
	return url
}

// SanitizeChannelName converts a channel name into a URL-safe identifier:
// unsafe characters become underscores, runs of underscores collapse to one.
func SanitizeChannelName(name string) string {
	sanitized := unsafeChars.ReplaceAllString(name, "_")
	sanitized = strings.ReplaceAll(sanitized, " ", "_")
	sanitized = repeatedUnders.ReplaceAllString(sanitized, "_")
	return strings.Trim(sanitized, "_")
}

// ObfuscateURL keeps the scheme and host of a URL but masks path, query
// and fragment so credentials embedded in stream URLs never reach the logs.
func ObfuscateURL(urlStr string) string {
	if urlStr == "" {
		return ""
	}

	u, err := url.Parse(urlStr)
	if err != nil {
		return "***OBFUSCATED***"
	}

	result := u.Scheme + "://" + u.Host
	if u.Path != "" && u.Path != "/" {
		result += "/***"
	}
	if u.RawQuery != "" {
		result += "?***"
	}
	if u.Fragment != "" {
		result += "#***"
	}
	return result
}

// FormatBytes renders a byte count in a human readable unit for log lines.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
