// Package feed parses RSS/Atom documents into validated feed items.
package feed

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed"

	"news_crawler/internal/domain"
)

const defaultTitle = "No title"

type Parser struct {
	sanitizer *Sanitizer
}

func NewParser() *Parser {
	return &Parser{sanitizer: NewSanitizer()}
}

// Parse decodes body and maps every entry, in feed order, into a FeedItem.
func (p *Parser) Parse(ctx context.Context, body []byte) ([]domain.FeedItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	items := make([]domain.FeedItem, 0, len(parsed.Items))
	for _, it := range parsed.Items {
		if it == nil {
			continue
		}
		items = append(items, p.toFeedItem(it))
	}
	return items, nil
}

func (p *Parser) toFeedItem(it *gofeed.Item) domain.FeedItem {
	item := domain.FeedItem{
		Title:          strings.TrimSpace(it.Title),
		Link:           strings.TrimSpace(it.Link),
		EncodedContent: p.sanitizer.Sanitize(it.Content),
		Summary:        p.sanitizer.Sanitize(it.Description),
	}

	if item.Title == "" {
		item.Title = defaultTitle
	}
	if item.Link == "" && len(it.Links) > 0 {
		item.Link = strings.TrimSpace(it.Links[0])
	}

	switch {
	case it.PublishedParsed != nil:
		published := *it.PublishedParsed
		item.PublishedAt = &published
	case it.UpdatedParsed != nil:
		updated := *it.UpdatedParsed
		item.PublishedAt = &updated
	}

	for _, enc := range it.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		length, _ := strconv.ParseInt(enc.Length, 10, 64)
		item.Enclosure = &domain.Enclosure{URL: enc.URL, Type: enc.Type, Length: length}
		if isImageType(enc.Type) {
			break
		}
	}

	item.MediaURL = mediaURL(it)

	if it.Image != nil {
		item.ImageURL = it.Image.URL
	}

	return item
}

// mediaURL returns the first media:content URL, falling back to media:thumbnail.
func mediaURL(it *gofeed.Item) string {
	media, ok := it.Extensions["media"]
	if !ok {
		return ""
	}
	for _, name := range []string{"content", "thumbnail"} {
		for _, ext := range media[name] {
			if medium := ext.Attrs["medium"]; medium != "" && medium != "image" {
				continue
			}
			if u := ext.Attrs["url"]; u != "" {
				return u
			}
		}
	}
	return ""
}

func isImageType(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/")
}
