package extractor

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/go-shiori/go-readability"
)

// Page is a parsed homepage handed to each strategy.
type Page struct {
	HTML string
	Doc  *goquery.Document
	Base *url.URL
}

// Strategy finds a logo candidate in a page, or returns "".
type Strategy interface {
	Name() string
	Find(p *Page) string
}

var (
	selLinks = cascadia.MustCompile("link[rel][href]")
	selMetas = cascadia.MustCompile("meta[content]")
	selImgs  = cascadia.MustCompile("img[src]")
)

// DefaultStrategies returns the page strategies in priority order.
func DefaultStrategies() []Strategy {
	return []Strategy{linkIcons{}, metaImages{}, imgHints{}, readabilityMeta{}}
}

// accept resolves ref and keeps it only if it looks like an image.
func accept(ref string, base *url.URL) string {
	u := ResolveURL(ref, base)
	if !IsImageURL(u) {
		return ""
	}
	return u
}

// linkIcons looks at <link rel> icons. For each rel, in priority order,
// only the first matching link is considered.
type linkIcons struct{}

var iconRels = []string{"icon", "shortcut icon", "apple-touch-icon", "apple-touch-icon-precomposed"}

func (linkIcons) Name() string { return "link-icon" }

func (linkIcons) Find(p *Page) string {
	links := p.Doc.FindMatcher(selLinks)
	for _, rel := range iconRels {
		first := links.FilterFunction(func(_ int, s *goquery.Selection) bool {
			v, _ := s.Attr("rel")
			return strings.Contains(strings.ToLower(v), rel)
		}).First()
		if first.Length() == 0 {
			continue
		}
		href, _ := first.Attr("href")
		if u := accept(href, p.Base); u != "" {
			return u
		}
	}
	return ""
}

// metaImages looks at Open Graph and Twitter card images, matched by
// property or name.
type metaImages struct{}

var imageMetas = []string{"og:image", "twitter:image", "twitter:image:src"}

func (metaImages) Name() string { return "meta-image" }

func (metaImages) Find(p *Page) string {
	metas := p.Doc.FindMatcher(selMetas)
	for _, key := range imageMetas {
		first := metas.FilterFunction(func(_ int, s *goquery.Selection) bool {
			prop, _ := s.Attr("property")
			name, _ := s.Attr("name")
			return prop == key || name == key
		}).First()
		if first.Length() == 0 {
			continue
		}
		content, _ := first.Attr("content")
		if u := accept(content, p.Base); u != "" {
			return u
		}
	}
	return ""
}

// imgHints scans <img> tags for logo or brand hints in alt, class or id.
type imgHints struct{}

var (
	altHints   = []string{"logo", "brand"}
	classHints = []string{"logo", "brand", "header-logo", "site-logo"}
)

func (imgHints) Name() string { return "img-hint" }

func (imgHints) Find(p *Page) string {
	var found string
	p.Doc.FindMatcher(selImgs).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src, _ := s.Attr("src")
		alt, _ := s.Attr("alt")
		if containsAny(strings.ToLower(alt), altHints) {
			if found = accept(src, p.Base); found != "" {
				return false
			}
		}
		class, _ := s.Attr("class")
		id, _ := s.Attr("id")
		if containsAny(strings.ToLower(class+id), classHints) {
			if found = accept(src, p.Base); found != "" {
				return false
			}
		}
		return true
	})
	return found
}

// readabilityMeta falls back to the favicon and lead image readability
// derives from the page metadata.
type readabilityMeta struct{}

func (readabilityMeta) Name() string { return "readability" }

func (readabilityMeta) Find(p *Page) string {
	article, err := readability.FromReader(strings.NewReader(p.HTML), p.Base)
	if err != nil {
		return ""
	}
	for _, ref := range []string{article.Favicon, article.Image} {
		if u := accept(ref, p.Base); u != "" {
			return u
		}
	}
	return ""
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
