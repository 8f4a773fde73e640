package invoice

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// NFeNamespace is the namespace declared by conforming NF-e documents.
const NFeNamespace = "http://www.portalfiscal.inf.br/nfe"

const maxXMLDepth = 128

// xmlNode is a minimal element tree. encoding/xml never resolves external
// entities; parseTree additionally refuses any DOCTYPE so no internal
// entity declarations can be introduced either.
type xmlNode struct {
	name     xml.Name
	attrs    []xml.Attr
	children []*xmlNode
	text     strings.Builder
}

func parseTree(data []byte) (*xmlNode, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = true

	var root *xmlNode
	var stack []*xmlNode

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedXML, err)
		}

		switch t := tok.(type) {
		case xml.Directive:
			if bytes.HasPrefix(bytes.ToUpper(bytes.TrimSpace(t)), []byte("DOCTYPE")) {
				return nil, ErrForbiddenDTD
			}
		case xml.StartElement:
			if len(stack) >= maxXMLDepth {
				return nil, fmt.Errorf("%w: nesting deeper than %d", ErrMalformedXML, maxXMLDepth)
			}
			node := &xmlNode{name: t.Name, attrs: t.Attr}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("%w: multiple root elements", ErrMalformedXML)
				}
				root = node
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, node)
			}
			stack = append(stack, node)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}
		}
	}

	if root == nil {
		return nil, fmt.Errorf("%w: empty document", ErrMalformedXML)
	}
	return root, nil
}

// child returns the first direct child named local, preferring the NF-e
// namespace and falling back to an unqualified element.
func (n *xmlNode) child(local string) *xmlNode {
	if n == nil {
		return nil
	}
	for _, space := range []string{NFeNamespace, ""} {
		for _, c := range n.children {
			if c.name.Local == local && c.name.Space == space {
				return c
			}
		}
	}
	return nil
}

// all returns every direct child named local using the same namespace
// preference as child.
func (n *xmlNode) all(local string) []*xmlNode {
	if n == nil {
		return nil
	}
	for _, space := range []string{NFeNamespace, ""} {
		var found []*xmlNode
		for _, c := range n.children {
			if c.name.Local == local && c.name.Space == space {
				found = append(found, c)
			}
		}
		if len(found) > 0 {
			return found
		}
	}
	return nil
}

// find walks the tree depth-first for the first element named local.
func (n *xmlNode) find(local string) *xmlNode {
	if n == nil {
		return nil
	}
	if c := n.child(local); c != nil {
		return c
	}
	for _, c := range n.children {
		if found := c.find(local); found != nil {
			return found
		}
	}
	return nil
}

func (n *xmlNode) textOf(local string) string {
	c := n.child(local)
	if c == nil {
		return ""
	}
	return c.text.String()
}

func (n *xmlNode) attr(local string) string {
	if n == nil {
		return ""
	}
	for _, a := range n.attrs {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}
