package notation

import (
	"regexp"
	"strings"
)

var wikiLinkRe = regexp.MustCompile(`\[\[([^\]\|#]+)(?:#[^\]\|]*)?(?:\|[^\]]*)?\]\]`)

// ExtractLinks returns the targets of all `[[target#heading|alias]]` links in text.
func ExtractLinks(text string) []string {
	var out []string
	for _, m := range wikiLinkRe.FindAllStringSubmatch(text, -1) {
		if target := strings.TrimSpace(m[1]); target != "" {
			out = append(out, target)
		}
	}
	return out
}

// UnwrapLink returns the target of a single link, or the trimmed input when it is not a link.
func UnwrapLink(s string) string {
	if links := ExtractLinks(s); len(links) > 0 {
		return links[0]
	}
	return strings.TrimSpace(s)
}
