package feeds

import (
	"time"

	"github.com/mmcdole/gofeed"
)

// Document is a parsed feed, independent of the wire format it came in.
type Document struct {
	Title       string
	Description string
	Link        string
	Image       Image
	Items       []Item
}

type Image struct {
	URL   string
	Title string
}

// Item is one entry of a Document. Published keeps the raw source string
// so callers can apply their own fallback when PublishedParsed is nil.
type Item struct {
	GUID            string
	Link            string
	Title           string
	Author          string
	Description     string
	Content         string
	Published       string
	PublishedParsed *time.Time
	Image           Image
}

func documentFromParsed(feed *gofeed.Feed) *Document {
	doc := &Document{
		Title:       feed.Title,
		Description: feed.Description,
		Link:        feed.Link,
		Items:       make([]Item, 0, len(feed.Items)),
	}
	if feed.Image != nil {
		doc.Image = Image{URL: feed.Image.URL, Title: feed.Image.Title}
	}
	for _, it := range feed.Items {
		if it == nil {
			continue
		}
		doc.Items = append(doc.Items, itemFromParsed(it))
	}
	return doc
}

func itemFromParsed(it *gofeed.Item) Item {
	item := Item{
		GUID:        it.GUID,
		Link:        it.Link,
		Title:       it.Title,
		Description: it.Description,
		Content:     it.Content,
	}
	if item.Link == "" && len(it.Links) > 0 {
		item.Link = it.Links[0]
	}

	if it.Author != nil {
		item.Author = it.Author.Name
	} else if len(it.Authors) > 0 && it.Authors[0] != nil {
		item.Author = it.Authors[0].Name
	}

	// Prefer the publish date, fall back to the update date.
	switch {
	case it.Published != "" || it.PublishedParsed != nil:
		item.Published = it.Published
		item.PublishedParsed = it.PublishedParsed
	default:
		item.Published = it.Updated
		item.PublishedParsed = it.UpdatedParsed
	}

	if it.Image != nil {
		item.Image = Image{URL: it.Image.URL, Title: it.Image.Title}
	}
	return item
}
