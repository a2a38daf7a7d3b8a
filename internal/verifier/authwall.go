package verifier

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// hasAuthWall looks for provider login-page markers in the raw body and in
// its visible text, which catches markers split across inline tags.
func hasAuthWall(body []byte) bool {
	raw := strings.ToLower(string(body))
	text := strings.ToLower(visibleText(body))
	for _, m := range authWallMarkers {
		if strings.Contains(raw, m) || strings.Contains(text, m) {
			return true
		}
	}
	return false
}

func visibleText(body []byte) string {
	var sb strings.Builder
	z := html.NewTokenizer(bytes.NewReader(body))
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(sb.String()), " ")
		case html.StartTagToken:
			if name, _ := z.TagName(); isInvisible(name) {
				skip++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); isInvisible(name) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
				sb.WriteByte(' ')
			}
		}
	}
}

func isInvisible(tag []byte) bool {
	switch string(tag) {
	case "script", "style", "noscript":
		return true
	}
	return false
}
