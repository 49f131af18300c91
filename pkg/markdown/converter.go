package markdown

import (
	"regexp"
	"strings"

	"github.com/russross/blackfriday/v2"
)

var (
	tagPattern     = regexp.MustCompile(`</?[a-zA-Z]+(?:\s[^>]*)?/?>`)
	newlinePattern = regexp.MustCompile(`\n{3,}`)
	entityReplacer = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'")
)

// ToPlainText flattens agent markdown into plain text suitable for the game
// chat, which renders no markup. Lists keep a bullet marker; everything else
// loses its formatting but keeps its content.
func ToPlainText(md string) string {
	if md == "" {
		return ""
	}

	html := string(blackfriday.Run([]byte(md), blackfriday.WithExtensions(blackfriday.CommonExtensions)))

	html = strings.ReplaceAll(html, "<li>", "• ")
	html = strings.ReplaceAll(html, "</li>", "\n")
	html = strings.ReplaceAll(html, "</p>", "\n")
	html = strings.ReplaceAll(html, "<br>", "\n")
	html = strings.ReplaceAll(html, "<br/>", "\n")

	html = tagPattern.ReplaceAllString(html, "")
	html = entityReplacer.Replace(html)
	html = newlinePattern.ReplaceAllString(html, "\n\n")

	return strings.TrimSpace(html)
}
