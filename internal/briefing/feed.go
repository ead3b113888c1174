package briefing

import (
	"encoding/xml"
	"errors"
	"io"
	"strings"
)

// Item is one headline taken from a feed.
type Item struct {
	Source string `json:"source"`
	Title  string `json:"title"`
	Link   string `json:"link"`
}

type feedLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Text string `xml:",chardata"`
}

type feedEntry struct {
	Title string     `xml:"title"`
	Links []feedLink `xml:"link"`
	GUID  string     `xml:"guid"`
}

func (e feedEntry) link() string {
	for _, l := range e.Links {
		if l.Href != "" && (l.Rel == "" || l.Rel == "alternate") {
			return strings.TrimSpace(l.Href)
		}
		if text := strings.TrimSpace(l.Text); text != "" {
			return text
		}
	}
	return strings.TrimSpace(e.GUID)
}

// ParseFeed reads up to limit entries from an RSS 2.0, RSS 1.0 or Atom document. A document cut
// short (the fetcher caps body size) yields the entries that were complete.
func ParseFeed(source, body string, limit int) ([]Item, error) {
	dec := xml.NewDecoder(strings.NewReader(body))
	dec.Strict = false
	// The body is already UTF-8 by the time it reaches here.
	dec.CharsetReader = func(_ string, r io.Reader) (io.Reader, error) { return r, nil }

	var items []Item
	sawFeed := false
	for limit <= 0 || len(items) < limit {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) || len(items) > 0 {
				break
			}
			return nil, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "rss", "feed", "RDF", "channel":
			sawFeed = true
		case "item", "entry":
			var e feedEntry
			if err := dec.DecodeElement(&e, &start); err != nil {
				if len(items) > 0 {
					return items, nil
				}
				return nil, err
			}
			title := strings.Join(strings.Fields(e.Title), " ")
			if title == "" {
				continue
			}
			items = append(items, Item{Source: source, Title: title, Link: e.link()})
		}
	}
	if !sawFeed && len(items) == 0 {
		return nil, errors.New("briefing: not an RSS or Atom document")
	}
	return items, nil
}
