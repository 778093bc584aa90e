package bubble

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-faster/errors"
)

const editorURL = "https://bubble.io/page?id=%s&tab=Data&name=index&type_id=%s&version=live&subtab=App+Data"

// DataURL is the editor's App Data page for one data type of app.
func DataURL(appID, typeID string) string {
	return fmt.Sprintf(editorURL, url.QueryEscape(appID), typeID)
}

// TypeLink is a data type found in the editor sidebar.
type TypeLink struct {
	TypeID string
	Text   string
	Href   string
}

var typeIDPattern = regexp.MustCompile(`type_id=([^&]+)`)

// DiscoverTypeLinks returns every anchor whose href carries a type_id
// parameter, first occurrence per type id, in document order. The link text
// falls back to the type id when empty.
func DiscoverTypeLinks(html string) ([]TypeLink, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, errors.Wrap(err, "parse page html")
	}

	seen := make(map[string]struct{})
	var links []TypeLink
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		m := typeIDPattern.FindStringSubmatch(href)
		if m == nil {
			return
		}
		id := m[1]
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}

		text := strings.TrimSpace(a.Text())
		if text == "" {
			text = id
		}
		links = append(links, TypeLink{TypeID: id, Text: text, Href: href})
	})
	return links, nil
}

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9]`)

// FileName is the CSV name a type's export is saved under: every character
// other than an ASCII letter or digit becomes an underscore.
func FileName(text string) string {
	return unsafeFileChars.ReplaceAllString(text, "_") + ".csv"
}
