package normalize

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

type nodeKind int

const (
	kindNull nodeKind = iota
	kindString
	kindNumber
	kindBool
	kindObject
	kindArray
)

// node is a decoded JSON value that keeps object members in document order.
type node struct {
	kind    nodeKind
	text    string
	boolean bool
	members []member
	items   []node
}

type member struct {
	key   string
	value node
}

func parseOrdered(data []byte) (node, error) {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	n, err := readNode(dec)
	if err != nil {
		return node{}, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return node{}, fmt.Errorf("unexpected data after top-level value")
	}
	return n, nil
}

func readNode(dec *json.Decoder) (node, error) {
	tok, err := dec.Token()
	if err != nil {
		return node{}, err
	}
	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			return readObject(dec)
		case '[':
			return readArray(dec)
		}
		return node{}, fmt.Errorf("unexpected delimiter %q", v)
	case string:
		return node{kind: kindString, text: v}, nil
	case json.Number:
		return node{kind: kindNumber, text: v.String()}, nil
	case bool:
		return node{kind: kindBool, boolean: v}, nil
	case nil:
		return node{kind: kindNull}, nil
	}
	return node{}, fmt.Errorf("unexpected token %v", tok)
}

func readObject(dec *json.Decoder) (node, error) {
	n := node{kind: kindObject}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return node{}, err
		}
		key, ok := tok.(string)
		if !ok {
			return node{}, fmt.Errorf("object key is %T", tok)
		}
		value, err := readNode(dec)
		if err != nil {
			return node{}, err
		}
		n.members = append(n.members, member{key: key, value: value})
	}
	if _, err := dec.Token(); err != nil {
		return node{}, err
	}
	return n, nil
}

func readArray(dec *json.Decoder) (node, error) {
	n := node{kind: kindArray}
	for dec.More() {
		item, err := readNode(dec)
		if err != nil {
			return node{}, err
		}
		n.items = append(n.items, item)
	}
	if _, err := dec.Token(); err != nil {
		return node{}, err
	}
	return n, nil
}

func (n node) field(name string) (node, bool) {
	for _, m := range n.members {
		if m.key == name {
			return m.value, true
		}
	}
	return node{}, false
}

// scalarText renders a scalar as text. Nulls and containers report false.
func (n node) scalarText() (string, bool) {
	switch n.kind {
	case kindString, kindNumber:
		return n.text, true
	case kindBool:
		if n.boolean {
			return "true", true
		}
		return "false", true
	}
	return "", false
}
