package feeds

import (
	"fmt"
	"io"

	"github.com/gilliek/go-opml/opml"
)

// Outline is a single feed subscription from an OPML document.
type Outline struct {
	Title   string
	XMLURL  string
	HTMLURL string
}

// ReadOPML reads an OPML file and returns its feed outlines, nested
// folders flattened in document order.
func ReadOPML(path string) ([]Outline, error) {
	doc, err := opml.NewOPMLFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read OPML file: %w", err)
	}
	return flatten(doc.Body.Outlines, nil), nil
}

// ParseOPML is ReadOPML for an in-memory document.
func ParseOPML(data []byte) ([]Outline, error) {
	doc, err := opml.NewOPML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse OPML: %w", err)
	}
	return flatten(doc.Body.Outlines, nil), nil
}

func flatten(outlines []opml.Outline, acc []Outline) []Outline {
	for _, o := range outlines {
		if o.XMLURL != "" {
			title := o.Title
			if title == "" {
				title = o.Text
			}
			acc = append(acc, Outline{Title: title, XMLURL: o.XMLURL, HTMLURL: o.HTMLURL})
		}
		// Process nested outlines (folders)
		if len(o.Outlines) > 0 {
			acc = flatten(o.Outlines, acc)
		}
	}
	return acc
}

// WriteOPML renders a subscription list as an OPML 2.0 document.
func WriteOPML(w io.Writer, title string, outlines []Outline) error {
	doc := opml.OPML{
		Version: "2.0",
		Head:    opml.Head{Title: title},
	}
	for _, o := range outlines {
		doc.Body.Outlines = append(doc.Body.Outlines, opml.Outline{
			Text:    o.Title,
			Title:   o.Title,
			Type:    "rss",
			XMLURL:  o.XMLURL,
			HTMLURL: o.HTMLURL,
		})
	}

	out, err := doc.XML()
	if err != nil {
		return fmt.Errorf("failed to render OPML: %w", err)
	}
	_, err = io.WriteString(w, out)
	return err
}
