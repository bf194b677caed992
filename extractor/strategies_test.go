package extractor

import (
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func parsePage(t *testing.T, html string) *Page {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatal(err)
	}
	base, _ := url.Parse("https://acme.com/")
	return &Page{HTML: html, Doc: doc, Base: base}
}

func TestStrategies(t *testing.T) {
	tests := []struct {
		name     string
		strategy Strategy
		html     string
		want     string
	}{
		{
			name:     "icon link",
			strategy: linkIcons{},
			html:     `<head><link rel="stylesheet" href="/a.css"><link rel="icon" href="/fav.png"></head>`,
			want:     "https://acme.com/fav.png",
		},
		{
			name:     "rel matched as substring in document order",
			strategy: linkIcons{},
			html:     `<head><link rel="apple-touch-icon" href="/touch.png"><link rel="shortcut icon" href="/short.ico"></head>`,
			want:     "https://acme.com/touch.png",
		},
		{
			name:     "non image icon skipped",
			strategy: linkIcons{},
			html:     `<head><link rel="icon" href="/app.css"><link rel="apple-touch-icon-precomposed" href="/touch.png"></head>`,
			want:     "https://acme.com/touch.png",
		},
		{
			name:     "og image by property",
			strategy: metaImages{},
			html:     `<head><meta property="og:image" content="https://cdn.acme.com/share.jpg"></head>`,
			want:     "https://cdn.acme.com/share.jpg",
		},
		{
			name:     "twitter image by name",
			strategy: metaImages{},
			html:     `<head><meta name="twitter:image" content="/card.png"></head>`,
			want:     "https://acme.com/card.png",
		},
		{
			name:     "meta not an image",
			strategy: metaImages{},
			html:     `<head><meta property="og:image" content="/share"></head>`,
			want:     "",
		},
		{
			name:     "img alt hint",
			strategy: imgHints{},
			html:     `<body><img src="/hero.jpg" alt="Hero"><img src="/brand.svg" alt="ACME Logo"></body>`,
			want:     "https://acme.com/brand.svg",
		},
		{
			name:     "img class hint",
			strategy: imgHints{},
			html:     `<body><img src="/x/header.webp" class="site-logo big"></body>`,
			want:     "https://acme.com/x/header.webp",
		},
		{
			name:     "img id hint",
			strategy: imgHints{},
			html:     `<body><img src="//cdn.acme.com/b.gif" id="brandmark"></body>`,
			want:     "https://cdn.acme.com/b.gif",
		},
		{
			name:     "no hints",
			strategy: imgHints{},
			html:     `<body><img src="/photo.jpg" alt="team"></body>`,
			want:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.strategy.Find(parsePage(t, tt.html))
			if got != tt.want {
				t.Errorf("%s.Find() = %q, want %q", tt.strategy.Name(), got, tt.want)
			}
		})
	}
}
