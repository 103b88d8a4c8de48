package lookup

import (
	"net/url"
	"strings"
)

// DefaultImageURLTemplate points at a search-engine image query; {query} is replaced
// with the escaped place name.
const DefaultImageURLTemplate = "https://source.unsplash.com/featured/800x600/?{query}"

// ImageResolver derives an image URL for a place name.
type ImageResolver interface {
	URLFor(name string) string
}

// TemplateImageResolver fills a URL template. It never touches the network.
type TemplateImageResolver struct {
	template string
}

// NewTemplateImageResolver returns a resolver for template, falling back to
// DefaultImageURLTemplate when template has no {query} placeholder.
func NewTemplateImageResolver(template string) *TemplateImageResolver {
	if !strings.Contains(template, "{query}") {
		template = DefaultImageURLTemplate
	}
	return &TemplateImageResolver{template: template}
}

// URLFor is deterministic in name.
func (r *TemplateImageResolver) URLFor(name string) string {
	q := url.QueryEscape(strings.Join(strings.Fields(name), " "))
	return strings.ReplaceAll(r.template, "{query}", q)
}
