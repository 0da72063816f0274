package feedparse

import (
	"html"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Media elements whose url/href attribute may point at an image
var mediaImageElements = map[string]struct{}{
	"thumbnail": {},
	"content":   {},
	"enclosure": {},
	"image":     {},
}

var digitsPattern = regexp.MustCompile(`\d+`)

// imageCandidate is one possible entry image with whatever dimensions were
// discoverable. 0 means unknown.
type imageCandidate struct {
	url    string
	width  int
	height int
}

// imageCollector gathers candidates in discovery order, merging duplicate
// URLs onto the largest dimensions seen
type imageCollector struct {
	candidates []imageCandidate
	seen       map[string]int
}

func newImageCollector() *imageCollector {
	return &imageCollector{seen: make(map[string]int)}
}

// extractEntryImageURL picks the entry image: the widest candidate from the
// entry's media elements and embedded HTML, or the first candidate when no
// widths are known
func extractEntryImageURL(node *element) *string {
	collector := newImageCollector()

	for _, child := range node.descendants() {
		switch {
		case child.name == "img":
			collector.add(child.attr("src"), child.attr("width"), child.attr("height"), child.attr("srcset"))
		default:
			if _, ok := mediaImageElements[child.name]; ok {
				imageURL := child.attr("url")
				if imageURL == "" {
					imageURL = child.attr("href")
				}
				collector.add(imageURL, child.attr("width"), child.attr("height"), child.attr("srcset"))
			}
		}
	}

	for _, field := range []string{"encoded", "content", "description", "summary"} {
		collector.addFromHTML(node.firstText(field))
	}

	best := collector.best()
	if best == "" {
		return nil
	}
	return &best
}

// add records one candidate. Dimensions come from the width/height values,
// the URL query string and srcset width descriptors, whichever is largest.
func (c *imageCollector) add(imageURL, width, height, srcset string) {
	cleanedURL := strings.TrimSpace(html.UnescapeString(imageURL))
	if cleanedURL != "" {
		queryWidth, queryHeight := dimensionsFromQuery(cleanedURL)
		candidate := imageCandidate{
			url:    cleanedURL,
			width:  maxDimension(parseDimension(width), queryWidth),
			height: maxDimension(parseDimension(height), queryHeight),
		}
		if index, ok := c.seen[cleanedURL]; ok {
			previous := c.candidates[index]
			c.candidates[index] = imageCandidate{
				url:    previous.url,
				width:  maxDimension(previous.width, candidate.width),
				height: maxDimension(previous.height, candidate.height),
			}
		} else {
			c.candidates = append(c.candidates, candidate)
			c.seen[cleanedURL] = len(c.candidates) - 1
		}
	}

	cleanedSrcset := strings.TrimSpace(html.UnescapeString(srcset))
	if cleanedSrcset == "" {
		return
	}
	for _, raw := range strings.Split(cleanedSrcset, ",") {
		parts := strings.Fields(raw)
		if len(parts) == 0 {
			continue
		}
		descriptor := ""
		if len(parts) > 1 {
			descriptor = parts[1]
		}
		c.add(parts[0], srcsetWidth(descriptor), height, "")
	}
}

// addFromHTML collects <img> tags out of an embedded HTML fragment
func (c *imageCollector) addFromHTML(fragment string) {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return
	}
	document, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return
	}
	document.Find("img").Each(func(_ int, selection *goquery.Selection) {
		src, _ := selection.Attr("src")
		width, _ := selection.Attr("width")
		height, _ := selection.Attr("height")
		srcset, _ := selection.Attr("srcset")
		c.add(src, width, height, srcset)
	})
}

// best returns the widest candidate URL, breaking width ties by height, or
// the first candidate when no widths are known
func (c *imageCollector) best() string {
	if len(c.candidates) == 0 {
		return ""
	}

	bestIndex := -1
	for index, candidate := range c.candidates {
		if candidate.width == 0 {
			continue
		}
		if bestIndex < 0 {
			bestIndex = index
			continue
		}
		best := c.candidates[bestIndex]
		if candidate.width > best.width || (candidate.width == best.width && candidate.height > best.height) {
			bestIndex = index
		}
	}
	if bestIndex >= 0 {
		return c.candidates[bestIndex].url
	}
	return c.candidates[0].url
}

// dimensionsFromQuery reads w/width and h/height hints off the URL query
func dimensionsFromQuery(imageURL string) (int, int) {
	parsed, err := url.Parse(imageURL)
	if err != nil {
		return 0, 0
	}
	query, err := url.ParseQuery(parsed.RawQuery)
	if err != nil {
		return 0, 0
	}

	width, height := 0, 0
	for key, values := range query {
		keyLower := strings.ToLower(key)
		for _, value := range values {
			switch keyLower {
			case "w", "width":
				width = maxDimension(width, parseDimension(value))
			case "h", "height":
				height = maxDimension(height, parseDimension(value))
			}
		}
	}
	return width, height
}

// srcsetWidth extracts the pixel width out of a "640w" srcset descriptor
func srcsetWidth(descriptor string) string {
	descriptor = strings.ToLower(strings.TrimSpace(descriptor))
	if !strings.HasSuffix(descriptor, "w") {
		return ""
	}
	return strings.TrimSuffix(descriptor, "w")
}

// parseDimension reads the first digit run out of a dimension value
func parseDimension(value string) int {
	match := digitsPattern.FindString(value)
	if match == "" {
		return 0
	}
	parsed, err := strconv.Atoi(match)
	if err != nil {
		return 0
	}
	return parsed
}

func maxDimension(values ...int) int {
	resolved := 0
	for _, value := range values {
		if value > resolved {
			resolved = value
		}
	}
	return resolved
}
