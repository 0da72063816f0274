package feedparse

import (
	"bytes"
	"errors"
	"html"
	"regexp"
	"strings"
	"time"
)

// Election orders for the channel-level last modified timestamp. RSS
// channels prefer lastBuildDate, Atom feeds prefer updated.
var (
	rssLastModifiedFields  = []string{"lastbuilddate", "pubdate", "updated"}
	feedLastModifiedFields = []string{"updated", "lastbuilddate", "pubdate"}
	entryPublishedAtFields = []string{"pubdate", "published", "updated", "date"}
)

// Entry is one item extracted from a feed document. Title and URL are
// always present; everything else is best effort.
type Entry struct {
	Title       string
	URL         string
	Summary     *string
	Author      *string
	PublishedAt *time.Time
	ImageURL    *string
}

// ParseFeed parses an RSS or Atom document and returns its entries plus the
// channel-level last modified timestamp when one is present. Entries
// without a title or URL are dropped. The parser matches elements by
// lowercased local name, so namespaced and oddly-cased feeds still parse.
func ParseFeed(content []byte) ([]Entry, *time.Time, error) {
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, nil, errors.New("empty feed content")
	}

	root, err := parseDocument(content)
	if err != nil {
		return nil, nil, err
	}

	lastModified := extractLastModified(root)
	entries := []Entry{}
	for _, node := range entryNodes(root) {
		if entry, ok := extractEntry(node); ok {
			entries = append(entries, entry)
		}
	}
	return entries, lastModified, nil
}

// entryNodes locates the item elements. Well-formed RSS and Atom documents
// use their conventional layout; anything else falls back to collecting
// every item or entry element in the document.
func entryNodes(root *element) []*element {
	switch root.name {
	case "rss":
		channel := root.firstChild("channel")
		if channel == nil {
			return nil
		}
		items := []*element{}
		for _, child := range channel.children() {
			if child.name == "item" {
				items = append(items, child)
			}
		}
		return items
	case "feed":
		entries := []*element{}
		for _, child := range root.children() {
			if child.name == "entry" {
				entries = append(entries, child)
			}
		}
		return entries
	}

	nodes := []*element{}
	if root.name == "item" || root.name == "entry" {
		nodes = append(nodes, root)
	}
	for _, node := range root.descendants() {
		if node.name == "item" || node.name == "entry" {
			nodes = append(nodes, node)
		}
	}
	return nodes
}

// extractLastModified elects the channel timestamp
func extractLastModified(root *element) *time.Time {
	if root.name == "rss" {
		if channel := root.firstChild("channel"); channel != nil {
			if lastModified := parseFirstDateTime(channel, rssLastModifiedFields); lastModified != nil {
				return lastModified
			}
		}
	}
	return parseFirstDateTime(root, feedLastModifiedFields)
}

func extractEntry(node *element) (Entry, bool) {
	title := node.firstText("title")
	url := extractEntryURL(node)
	if title == "" || url == "" {
		return Entry{}, false
	}

	return Entry{
		Title:       title,
		URL:         url,
		Summary:     extractEntrySummary(node),
		Author:      extractEntryAuthor(node),
		PublishedAt: parseFirstDateTime(node, entryPublishedAtFields),
		ImageURL:    extractEntryImageURL(node),
	}, true
}

// extractEntryURL prefers RSS-style link text, then an Atom alternate link
// href, then any other link href.
func extractEntryURL(node *element) string {
	if text := node.firstText("link"); text != "" {
		return text
	}

	fallback := ""
	for _, link := range node.children() {
		if link.name != "link" {
			continue
		}
		href := strings.TrimSpace(link.attr("href"))
		if href == "" {
			continue
		}
		rel := strings.TrimSpace(link.attr("rel"))
		if rel == "" || rel == "alternate" {
			return href
		}
		if fallback == "" {
			fallback = href
		}
	}
	return fallback
}

// extractEntrySummary takes the plain summary or description, falling back
// to the HTML body fields stripped down to text
func extractEntrySummary(node *element) *string {
	if summary := node.firstText("summary", "description"); summary != "" {
		return &summary
	}
	for _, field := range []string{"encoded", "content"} {
		if summary := stripHTMLText(node.firstText(field)); summary != "" {
			return &summary
		}
	}
	return nil
}

// extractEntryAuthor prefers the structured Atom author name, then the
// author element's inline text, then Dublin Core creator fields
func extractEntryAuthor(node *element) *string {
	if author := node.firstChild("author"); author != nil {
		if name := stripHTMLText(author.firstText("name")); name != "" {
			return &name
		}
		if inline := stripHTMLText(author.allText()); inline != "" {
			return &inline
		}
	}
	for _, field := range []string{"creator", "author"} {
		if value := stripHTMLText(node.firstText(field)); value != "" {
			return &value
		}
	}
	return nil
}

// parseFirstDateTime elects the first field, in order, whose text parses as
// a timestamp
func parseFirstDateTime(node *element, fields []string) *time.Time {
	for _, field := range fields {
		if parsed := parseDateTime(node.firstText(field)); parsed != nil {
			return parsed
		}
	}
	return nil
}

// Accepted timestamp layouts: RFC 822/1123 variants common in RSS first,
// then ISO 8601 variants common in Atom. Layouts using "2" accept both
// padded and unpadded days.
var dateTimeLayouts = []string{
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 MST",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseDateTime parses a feed timestamp into UTC. Layouts without a zone
// are taken as UTC. Returns nil when nothing matches.
func parseDateTime(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range dateTimeLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			utc := parsed.UTC()
			return &utc
		}
	}
	return nil
}

var (
	htmlTagPattern        = regexp.MustCompile(`<[^>]+>`)
	punctuationGapPattern = regexp.MustCompile(`\s+([,.;:!?])`)
)

// stripHTMLText reduces an HTML fragment to readable text: entities
// decoded, tags dropped, whitespace collapsed and gaps before punctuation
// closed up.
func stripHTMLText(value string) string {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return ""
	}
	withoutTags := htmlTagPattern.ReplaceAllString(html.UnescapeString(cleaned), " ")
	normalized := strings.Join(strings.Fields(withoutTags), " ")
	return punctuationGapPattern.ReplaceAllString(normalized, "$1")
}
