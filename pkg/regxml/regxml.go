package regxml

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"
)

// Node is one element of a parsed regulatory XML document. Text holds the
// character data that appears before the first child element, matching how
// CMS rule documents place heading and paragraph text.
type Node struct {
	Tag      string
	Source   string
	Children []*Node

	Text string
}

// Parse decodes an XML document into a Node tree. Any decoding failure is
// returned as-is so callers can skip the offending document.
func Parse(r io.Reader) (*Node, error) {
	dec := xml.NewDecoder(r)
	var root *Node
	var stack []*Node

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed document: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{Tag: t.Name.Local}
			for _, attr := range t.Attr {
				if attr.Name.Local == "SOURCE" {
					n.Source = attr.Value
				}
			}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			} else if root == nil {
				root = n
			}
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if len(stack) > 0 {
				n := stack[len(stack)-1]
				if len(n.Children) == 0 {
					n.Text += string(t)
				}
			}
		}
	}

	if root == nil {
		return nil, fmt.Errorf("malformed document: no root element")
	}
	return root, nil
}

// ParseFile parses the XML document at path.
func ParseFile(path string) (*Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Walk visits n and every descendant in pre-order.
func (n *Node) Walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Find returns the first node with the given tag in pre-order, or nil.
func (n *Node) Find(tag string) *Node {
	var found *Node
	n.Walk(func(c *Node) {
		if found == nil && c.Tag == tag {
			found = c
		}
	})
	return found
}

// FindText returns the cleaned text of the first node with the given tag,
// or "" when the document has no such node.
func (n *Node) FindText(tag string) string {
	if c := n.Find(tag); c != nil {
		return CleanText(c.Text)
	}
	return ""
}

// CleanText collapses all runs of whitespace to single spaces and trims.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
