// ABOUTME: OPML parsing into a generic tagged node tree
// ABOUTME: Documents are read with encoding/xml and walked depth-first by callers

package opml

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/net/html/charset"
)

// Kind tags what a Node represents.
type Kind int

const (
	Document Kind = iota
	Element
	Text
	Comment
)

func (k Kind) String() string {
	switch k {
	case Document:
		return "document"
	case Element:
		return "element"
	case Text:
		return "text"
	case Comment:
		return "comment"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Attr is a single element attribute.
type Attr struct {
	Name  string
	Value string
}

// Node is one node of a parsed document. Name is set for elements; Value
// holds the character data of text and comment nodes.
type Node struct {
	Kind     Kind
	Name     string
	Value    string
	Attrs    []Attr
	Children []*Node
}

// ErrNoRoot is returned for input that holds no root element.
var ErrNoRoot = errors.New("opml: no root element")

// Attr returns the value of the named attribute. Names are matched exactly.
func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Find returns the first element named name in depth-first order, or nil.
func (n *Node) Find(name string) *Node {
	var found *Node
	Walk(n, func(c *Node) bool {
		if found != nil {
			return false
		}
		if c.Kind == Element && c.Name == name {
			found = c
			return false
		}
		return true
	})
	return found
}

// Title returns the text of the document's head title, if any.
func (n *Node) Title() string {
	head := n.Find("head")
	if head == nil {
		return ""
	}
	title := head.Find("title")
	if title == nil {
		return ""
	}
	var b strings.Builder
	for _, c := range title.Children {
		if c.Kind == Text {
			b.WriteString(c.Value)
		}
	}
	return strings.TrimSpace(b.String())
}

// Walk visits n and its descendants depth-first in document order. Returning
// false from visit skips the node's children.
func Walk(n *Node, visit func(*Node) bool) {
	if n == nil {
		return
	}
	if !visit(n) {
		return
	}
	for _, c := range n.Children {
		Walk(c, visit)
	}
}

// Parse reads an XML document into a node tree rooted at a Document node.
// Malformed input returns an error and no tree.
func Parse(r io.Reader) (*Node, error) {
	decoder := xml.NewDecoder(r)
	decoder.CharsetReader = charset.NewReaderLabel
	decoder.Entity = xml.HTMLEntity

	root := &Node{Kind: Document}
	stack := []*Node{root}
	sawElement := false

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode OPML: %w", err)
		}

		parent := stack[len(stack)-1]
		switch t := tok.(type) {
		case xml.StartElement:
			if parent == root && sawElement {
				return nil, fmt.Errorf("failed to decode OPML: multiple root elements")
			}
			sawElement = true
			el := &Node{Kind: Element, Name: t.Name.Local}
			for _, a := range t.Attr {
				el.Attrs = append(el.Attrs, Attr{Name: a.Name.Local, Value: a.Value})
			}
			parent.Children = append(parent.Children, el)
			stack = append(stack, el)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if parent == root || strings.TrimSpace(string(t)) == "" {
				continue
			}
			parent.Children = append(parent.Children, &Node{Kind: Text, Value: string(t)})
		case xml.Comment:
			parent.Children = append(parent.Children, &Node{Kind: Comment, Value: string(t)})
		}
	}

	if !sawElement {
		return nil, ErrNoRoot
	}
	return root, nil
}

// ParseFile reads OPML data from a file and returns its node tree.
func ParseFile(path string) (*Node, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return Parse(file)
}
