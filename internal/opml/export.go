// ABOUTME: OPML export of the subscribed feed list
// ABOUTME: Writes one flat rss outline per feed in list order, without item data

package opml

import (
	"encoding/xml"
	"fmt"
	"io"

	"github.com/harper/skim/internal/models"
)

// ExportTitle is the head title of exported documents.
const ExportTitle = "skim - Exported Feeds"

// XML structs for writing OPML files
type opmlXML struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    headXML  `xml:"head"`
	Body    bodyXML  `xml:"body"`
}

type headXML struct {
	Title string `xml:"title"`
}

type bodyXML struct {
	Outlines []outlineXML `xml:"outline"`
}

type outlineXML struct {
	Type   string `xml:"type,attr"`
	XMLURL string `xml:"xmlUrl,attr"`
	Title  string `xml:"title,attr"`
}

// Export writes feeds as an OPML 1.0 document.
func Export(w io.Writer, feeds []models.Feed) error {
	doc := opmlXML{
		Version: "1.0",
		Head:    headXML{Title: ExportTitle},
		Body:    bodyXML{Outlines: make([]outlineXML, len(feeds))},
	}
	for i, feed := range feeds {
		doc.Body.Outlines[i] = outlineXML{Type: "rss", XMLURL: feed.URL, Title: feed.Title}
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("failed to write XML header: %w", err)
	}

	encoder := xml.NewEncoder(w)
	encoder.Indent("", "\t")
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode OPML: %w", err)
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return fmt.Errorf("failed to write OPML: %w", err)
	}
	return nil
}
