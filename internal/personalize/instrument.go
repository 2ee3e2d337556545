package personalize

import (
	"net/url"
	"regexp"
	"strings"
)

const bodyClose = "</body>"

var hrefPattern = regexp.MustCompile(`href="([^"]*)"`)

// AddTrackingPixel inserts a single 1x1 open-tracking image before the first
// </body>. ok is false, and html is returned unchanged, when there is no
// closing body tag.
func AddTrackingPixel(html, pixelBase, trackingID string) (string, bool) {
	idx := strings.Index(html, bodyClose)
	if idx < 0 {
		return html, false
	}
	pixel := `<img src="` + strings.TrimRight(pixelBase, "/") + "/track/open/" + trackingID +
		`" width="1" height="1" style="display:none;" />`
	return html[:idx] + pixel + html[idx:], true
}

// AddClickTracking routes every non-anchor href through the click endpoint.
func AddClickTracking(html, clickBase, trackingID string) string {
	base := strings.TrimRight(clickBase, "/") + "/track/click/" + trackingID + "?url="
	return hrefPattern.ReplaceAllStringFunc(html, func(match string) string {
		target := hrefPattern.FindStringSubmatch(match)[1]
		if strings.HasPrefix(target, "#") {
			return match
		}
		return `href="` + base + url.QueryEscape(target) + `"`
	})
}
