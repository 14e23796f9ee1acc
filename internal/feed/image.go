package feed

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"news_crawler/internal/domain"
)

// ImageCandidate picks the image URL to ingest for item, or "" when there is none.
// Priority: image enclosure, media:content/thumbnail, channel image tag, then the
// first <img src> in the encoded content and finally in the summary.
func ImageCandidate(item domain.FeedItem) string {
	if item.Enclosure != nil && item.Enclosure.URL != "" && isImageType(item.Enclosure.Type) {
		return item.Enclosure.URL
	}
	if item.MediaURL != "" {
		return item.MediaURL
	}
	if item.ImageURL != "" {
		return item.ImageURL
	}
	if src := firstImgSrc(item.EncodedContent); src != "" {
		return src
	}
	return firstImgSrc(item.Summary)
}

func firstImgSrc(html string) string {
	if !strings.Contains(html, "<img") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	var src string
	doc.Find("img[src]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		v, _ := s.Attr("src")
		src = strings.TrimSpace(v)
		return src == ""
	})
	return src
}
