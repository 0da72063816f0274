package feedparse

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

// element is a minimal XML tree node. Names are lowercased local names so
// lookups ignore namespaces and case; content keeps text and child elements
// in document order so subtree text reads back correctly.
type element struct {
	name    string
	attrs   map[string]string
	content []any // string or *element
}

// parseDocument builds the element tree for a feed document. The charset
// reader honors the encoding declaration for non-UTF-8 feeds.
func parseDocument(content []byte) (*element, error) {
	decoder := xml.NewDecoder(bytes.NewReader(content))
	decoder.CharsetReader = charset.NewReaderLabel

	var root *element
	stack := []*element{}

	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid xml: %v", err)
		}

		switch t := token.(type) {
		case xml.StartElement:
			node := &element{
				name:  localName(t.Name),
				attrs: attributeMap(t.Attr),
			}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.content = append(parent.content, node)
			} else if root == nil {
				root = node
			}
			stack = append(stack, node)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.content = append(parent.content, string(t))
			}
		}
	}

	if root == nil {
		return nil, errors.New("invalid xml: no root element")
	}
	return root, nil
}

// children returns the direct child elements in document order
func (e *element) children() []*element {
	nodes := []*element{}
	for _, part := range e.content {
		if child, ok := part.(*element); ok {
			nodes = append(nodes, child)
		}
	}
	return nodes
}

// descendants returns every element in the subtree, not including e itself,
// in document order
func (e *element) descendants() []*element {
	nodes := []*element{}
	for _, part := range e.content {
		if child, ok := part.(*element); ok {
			nodes = append(nodes, child)
			nodes = append(nodes, child.descendants()...)
		}
	}
	return nodes
}

// allText concatenates every text fragment in the subtree in document order
func (e *element) allText() string {
	var builder strings.Builder
	e.writeText(&builder)
	return builder.String()
}

func (e *element) writeText(builder *strings.Builder) {
	for _, part := range e.content {
		switch v := part.(type) {
		case string:
			builder.WriteString(v)
		case *element:
			v.writeText(builder)
		}
	}
}

// firstChild returns the first direct child whose name is in names
func (e *element) firstChild(names ...string) *element {
	for _, child := range e.children() {
		for _, name := range names {
			if child.name == name {
				return child
			}
		}
	}
	return nil
}

// firstText returns the trimmed subtree text of the first direct child in
// names that has any. Matching children with empty text are skipped.
func (e *element) firstText(names ...string) string {
	for _, child := range e.children() {
		for _, name := range names {
			if child.name != name {
				continue
			}
			if text := strings.TrimSpace(child.allText()); text != "" {
				return text
			}
		}
	}
	return ""
}

// attr returns the named attribute or ""
func (e *element) attr(name string) string {
	return e.attrs[name]
}

// localName lowercases the local part of a possibly prefixed name
func localName(name xml.Name) string {
	local := name.Local
	if index := strings.LastIndex(local, ":"); index >= 0 {
		local = local[index+1:]
	}
	return strings.ToLower(local)
}

// attributeMap indexes attributes by lowercased local name
func attributeMap(attrs []xml.Attr) map[string]string {
	if len(attrs) == 0 {
		return nil
	}
	indexed := make(map[string]string, len(attrs))
	for _, attr := range attrs {
		indexed[localName(attr.Name)] = attr.Value
	}
	return indexed
}
