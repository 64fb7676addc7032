// Package classify derives browser, OS, bot, referrer-source, UTM, and
// device-type signals from raw request data. Every function here is
// pure and fail-soft: an unparseable input yields zero-value results,
// never an error.
package classify

import (
	"net/url"
	"strings"
)

// botSubstrings is the substring/prefix deny-list used by IsBot. Preserved
// deliberately substring-based, including its known false-positive shape
// (a UA containing "Robotics Inc." will flag as a bot). Not a bug to fix.
var botSubstrings = []string{
	"bot", "crawler", "spider", "slurp", "fetch", "headless", "phantom",
	"lighthouse", "pingdom", "uptimerobot", "python-requests", "python-urllib",
	"go-http-client", "java/", "wget", "mediapartners", "adsbot", "apis-google",
	"feedfetcher", "facebookexternalhit", "linkedinbot", "discordbot",
	"telegrambot", "whatsapp", "applebot", "ahrefsbot", "semrushbot", "dotbot",
	"petalbot", "yandexbot", "baiduspider", "duckduckbot", "sogou", "exabot",
}

var botPrefixes = []string{"curl", "libwww", "lwp-", "scrapy"}

// IsBot reports whether a User-Agent string matches a known bot/crawler
// signature.
func IsBot(ua string) bool {
	lower := strings.ToLower(ua)
	for _, tok := range botSubstrings {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	for _, prefix := range botPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

type browserPattern struct {
	check   string
	name    string
	exclude string
}

var browserPatterns = []browserPattern{
	{check: "Edg/", name: "Edge"},
	{check: "Edge/", name: "Edge"},
	{check: "OPR/", name: "Opera"},
	{check: "Opera", name: "Opera"},
	{check: "Vivaldi/", name: "Vivaldi"},
	{check: "Brave", name: "Brave"},
	{check: "SamsungBrowser/", name: "Samsung Internet"},
	{check: "UCBrowser/", name: "UC Browser"},
	{check: "UCWEB/", name: "UC Browser"},
	{check: "Chrome/", name: "Chrome", exclude: "Chromium/"},
	{check: "Safari/", name: "Safari", exclude: "Chrome/"},
	{check: "Firefox/", name: "Firefox"},
}

// Browser returns the matched browser name, checking more specific
// signatures (Edge, Opera, ...) before the generic Chrome/Safari/Firefox
// ones, since those generic tokens also appear in the specific UAs.
func Browser(ua string) string {
	for _, p := range browserPatterns {
		if !strings.Contains(ua, p.check) {
			continue
		}
		if p.exclude != "" && strings.Contains(ua, p.exclude) {
			continue
		}
		return p.name
	}
	return ""
}

var versionPrefixes = []string{
	"Edg/", "Edge/", "OPR/", "Vivaldi/", "SamsungBrowser/", "UCBrowser/",
	"Chrome/", "Firefox/", "Version/",
}

// BrowserVersion extracts the run of `[0-9.]` following the matched
// browser's version token.
func BrowserVersion(ua string) string {
	for _, prefix := range versionPrefixes {
		pos := strings.Index(ua, prefix)
		if pos < 0 {
			continue
		}
		start := pos + len(prefix)
		version := takeWhile(ua[start:], isDigitOrDot)
		if version != "" {
			return version
		}
	}
	return ""
}

// OS returns the matched operating-system name. iOS is checked before
// macOS because iPhone/iPad UAs also contain "Mac OS X".
func OS(ua string) string {
	switch {
	case strings.Contains(ua, "Windows"):
		return "Windows"
	case strings.Contains(ua, "iPhone"), strings.Contains(ua, "iPad"), strings.Contains(ua, "iOS"):
		return "iOS"
	case strings.Contains(ua, "Mac OS X"), strings.Contains(ua, "macOS"):
		return "macOS"
	case strings.Contains(ua, "Android"):
		return "Android"
	case strings.Contains(ua, "Linux"):
		return "Linux"
	case strings.Contains(ua, "CrOS"):
		return "Chrome OS"
	default:
		return ""
	}
}

// OSVersion extracts the OS version string. Apple platforms encode
// version numbers with underscores (e.g. "17_2_1"), normalized to dots.
func OSVersion(ua string) string {
	switch {
	case strings.Contains(ua, "Windows NT"):
		return extractVersionAfter(ua, "Windows NT ", false)
	case strings.Contains(ua, "iPhone OS"):
		return extractVersionAfter(ua, "iPhone OS ", true)
	case strings.Contains(ua, "Mac OS X"):
		return extractVersionAfter(ua, "Mac OS X ", true)
	case strings.Contains(ua, "Android"):
		return extractVersionAfter(ua, "Android ", false)
	default:
		return ""
	}
}

func extractVersionAfter(ua, prefix string, normalizeUnderscore bool) string {
	pos := strings.Index(ua, prefix)
	if pos < 0 {
		return ""
	}
	start := pos + len(prefix)
	version := takeWhile(ua[start:], isDigitDotOrUnderscore)
	if version == "" {
		return ""
	}
	if normalizeUnderscore {
		version = strings.ReplaceAll(version, "_", ".")
	}
	return version
}

func isDigitOrDot(b byte) bool         { return (b >= '0' && b <= '9') || b == '.' }
func isDigitDotOrUnderscore(b byte) bool {
	return (b >= '0' && b <= '9') || b == '.' || b == '_'
}

func takeWhile(s string, pred func(byte) bool) string {
	i := 0
	for i < len(s) && pred(s[i]) {
		i++
	}
	return s[:i]
}

// referrerSourceMap maps a substring of the referrer's hostname to a
// human-readable source name.
var referrerSourceMap = []struct {
	substr string
	name   string
}{
	{"google", "Google"},
	{"bing", "Bing"},
	{"yahoo", "Yahoo"},
	{"duckduckgo", "DuckDuckGo"},
	{"twitter", "Twitter"},
	{"facebook", "Facebook"},
	{"fb.com", "Facebook"},
	{"linkedin", "LinkedIn"},
	{"reddit", "Reddit"},
	{"github", "GitHub"},
}

// ReferrerSource extracts a simplified source name from a referrer URL:
// strip the scheme, cut at the first `/` or `:`, map known hosts, and
// fall back to the raw host.
func ReferrerSource(referrer string) string {
	if referrer == "" {
		return ""
	}
	host := strings.TrimPrefix(referrer, "https://")
	host = strings.TrimPrefix(host, "http://")
	if idx := strings.IndexByte(host, '/'); idx >= 0 {
		host = host[:idx]
	}
	if idx := strings.IndexByte(host, ':'); idx >= 0 {
		host = host[:idx]
	}
	if host == "" {
		return ""
	}
	if host == "t.co" {
		return "Twitter"
	}
	lower := strings.ToLower(host)
	for _, m := range referrerSourceMap {
		if strings.Contains(lower, m.substr) {
			return m.name
		}
	}
	return host
}

// UTMParams holds the five recognized UTM parameters, each sanitized and
// length-capped to 256 characters (runes). Empty string means "not present."
type UTMParams struct {
	Source, Medium, Campaign, Content, Term string
}

// ParseUTM extracts UTM parameters from a page URL's query string.
// Unrecognized keys are ignored; empty values are treated as absent.
func ParseUTM(pageURL string) UTMParams {
	var out UTMParams
	idx := strings.IndexByte(pageURL, '?')
	if idx < 0 {
		return out
	}
	query := pageURL[idx+1:]
	for _, pair := range strings.Split(query, "&") {
		kv := strings.SplitN(pair, "=", 2)
		key := kv[0]
		value := ""
		if len(kv) == 2 {
			value = kv[1]
		}
		if value == "" {
			continue
		}
		if decoded, err := url.QueryUnescape(value); err == nil {
			value = decoded
		}
		switch key {
		case "utm_source":
			out.Source = SanitizeString(value, 256)
		case "utm_medium":
			out.Medium = SanitizeString(value, 256)
		case "utm_campaign":
			out.Campaign = SanitizeString(value, 256)
		case "utm_content":
			out.Content = SanitizeString(value, 256)
		case "utm_term":
			out.Term = SanitizeString(value, 256)
		}
	}
	return out
}

// DeviceType classifies a device by screen width using the thresholds
// mobile < 768 <= tablet < 1024 <= desktop. When width is 0 (absent),
// falls back to a Mobile/Tablet substring check on the UA string; never
// overriding an explicit width, only filling in when the width is
// unknown.
func DeviceType(width uint32, ua string) string {
	switch {
	case width > 0 && width < 768:
		return "mobile"
	case width > 0 && width < 1024:
		return "tablet"
	case width > 0:
		return "desktop"
	}
	switch {
	case strings.Contains(ua, "Mobile"):
		return "mobile"
	case strings.Contains(ua, "Tablet"):
		return "tablet"
	default:
		return ""
	}
}

// SanitizePathname extracts the path from a URL, stripping the scheme,
// host, query string, and fragment, then sanitizes the result.
func SanitizePathname(rawURL string) string {
	path := strings.TrimPrefix(rawURL, "https://")
	path = strings.TrimPrefix(path, "http://")

	slash := strings.IndexByte(path, '/')
	if slash < 0 {
		path = "/"
	} else {
		path = path[slash:]
	}

	if idx := strings.IndexByte(path, '?'); idx >= 0 {
		path = path[:idx]
	}
	if idx := strings.IndexByte(path, '#'); idx >= 0 {
		path = path[:idx]
	}
	if path == "" {
		path = "/"
	}
	return SanitizeString(path, 2048)
}

// SanitizeString truncates to maxLen runes and strips control
// characters.
func SanitizeString(input string, maxLen int) string {
	var b strings.Builder
	count := 0
	for _, r := range input {
		if count >= maxLen {
			break
		}
		if r < 0x20 || r == 0x7f {
			continue
		}
		b.WriteRune(r)
		count++
	}
	return b.String()
}
