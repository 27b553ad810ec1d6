package render

import (
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	policyOnce sync.Once
	policy     *bluemonday.Policy
)

func sanitizePolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		p := bluemonday.UGCPolicy()
		p.AllowStyling()
		p.AllowAttrs("style").Globally()
		p.AllowElements("center", "font")
		p.AllowAttrs("color", "face", "size").OnElements("font")
		p.AllowAttrs("align", "valign", "width", "height", "bgcolor", "border", "cellpadding", "cellspacing").Globally()
		policy = p
	})
	return policy
}

// Sanitize removes scripts, frames, forms and event handlers from an HTML
// document while keeping its layout markup. The output is what the renderers
// actually lay out; stored fallbacks always keep the original bytes.
func Sanitize(html []byte) []byte {
	return sanitizePolicy().SanitizeBytes(html)
}
