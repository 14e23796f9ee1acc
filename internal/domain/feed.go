package domain

import "time"

// FeedItem is the validated shape of one parsed feed entry.
type FeedItem struct {
	Title          string
	Link           string
	PublishedAt    *time.Time
	EncodedContent string
	Summary        string
	Enclosure      *Enclosure
	MediaURL       string
	ImageURL       string
}

type Enclosure struct {
	URL    string
	Type   string
	Length int64
}

// Content prefers the rich encoded body over the plain summary.
func (i FeedItem) Content() string {
	if i.EncodedContent != "" {
		return i.EncodedContent
	}
	return i.Summary
}
