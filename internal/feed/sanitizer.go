package feed

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer strips scripts and unsafe attributes from feed HTML.
type Sanitizer struct {
	policy *bluemonday.Policy
}

func NewSanitizer() *Sanitizer {
	p := bluemonday.UGCPolicy()
	p.RequireNoFollowOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)

	return &Sanitizer{policy: p}
}

func (s *Sanitizer) Sanitize(html string) string {
	if html == "" {
		return ""
	}
	return strings.TrimSpace(s.policy.Sanitize(html))
}
