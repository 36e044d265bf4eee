package arxiv

import (
	"regexp"
	"strings"
)

const idPattern = `(\d{4}\.\d{4,5}(?:v\d+)?|[a-z-]+/\d{7}(?:v\d+)?)`

var (
	rxBareID = regexp.MustCompile(`(?i)^` + idPattern + `$`)
	rxAbsURL = regexp.MustCompile(`(?i)^(?:https?://)?(?:[a-z0-9-]+\.)*arxiv\.org/abs/` + idPattern + `/?$`)
	rxPDFURL = regexp.MustCompile(`(?i)^(?:https?://)?(?:[a-z0-9-]+\.)*arxiv\.org/pdf/` + idPattern + `(?:\.pdf)?/?$`)
)

// ExtractID returns the paper id contained in an arXiv URL or bare id, and
// false when the input has none of the accepted shapes.
func ExtractID(input string) (string, bool) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", false
	}
	for _, rx := range []*regexp.Regexp{rxBareID, rxAbsURL, rxPDFURL} {
		if m := rx.FindStringSubmatch(s); m != nil {
			return strings.ToLower(m[1]), true
		}
	}
	return "", false
}
