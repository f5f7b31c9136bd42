package replay

import "strings"

var botIndicators = []string{
	"bot", "crawler", "spider", "scraper", "automated",
	"curl", "wget", "python-requests", "mechanize",
}

// DetectBot reports whether the request headers look automated, with the
// matched signal.
func DetectBot(userAgent, accept string) (bool, string) {
	ua := strings.ToLower(userAgent)
	for _, indicator := range botIndicators {
		if strings.Contains(ua, indicator) {
			return true, "user-agent:" + indicator
		}
	}
	if strings.TrimSpace(accept) == "" {
		return true, "missing-accept"
	}
	return false, ""
}
