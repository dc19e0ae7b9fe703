// Package normalize flattens model extraction output into ordered field records.
//
// Two shapes are accepted. A JSON object is read as key -> value pairs in a
// single page group 0; nested objects become dotted keys and arrays of rows
// become "name[i].column" keys. A lone top-level "data" object is unwrapped,
// and members whose value is a list of {k, v, c} entries form their own
// section. A JSON array is read as {section, key, value, confidence} entries
// grouped by section in order of first appearance, sections numbered from 1.
//
// Blank and null values are dropped. Records are numbered 1..N within their
// group in the order they appear in the input.
package normalize

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Lllllllleong/formextractionflow/internal/models"
)

// FlatPageGroup is the page number used for object-shaped output.
const FlatPageGroup = 0

// Normalize converts the JSON text of a model answer into ordered records.
func Normalize(content []byte) (models.NormalizedRecords, error) {
	root, err := parseOrdered(content)
	if err != nil {
		return nil, models.ModelResponseFormatError("extraction content is not valid JSON", err)
	}

	b := newBuilder()
	switch root.kind {
	case kindObject:
		b.object(root)
	case kindArray:
		if err := b.list(root); err != nil {
			return nil, err
		}
	default:
		return nil, models.ModelResponseFormatError("extraction content must be a JSON object or array", nil)
	}
	return b.result(), nil
}

type builder struct {
	groups []models.SectionRecords
	flat   []bool
	index  map[string]int
}

func newBuilder() *builder {
	return &builder{index: make(map[string]int)}
}

// group returns the group for a section, creating it on first use. Section
// numbers are assigned in result so that empty sections take no number.
func (b *builder) group(name string, flat bool) *models.SectionRecords {
	id := "s:" + name
	if flat {
		id = "flat"
	}
	if i, ok := b.index[id]; ok {
		return &b.groups[i]
	}
	b.groups = append(b.groups, models.SectionRecords{PageNumber: FlatPageGroup, Section: name})
	b.flat = append(b.flat, flat)
	b.index[id] = len(b.groups) - 1
	return &b.groups[len(b.groups)-1]
}

func (b *builder) add(g *models.SectionRecords, key, value string, confidence float64) {
	if strings.TrimSpace(key) == "" || strings.TrimSpace(value) == "" {
		return
	}
	g.Records = append(g.Records, models.FieldRecord{
		Section:         g.Section,
		Key:             key,
		Value:           value,
		KeyConfidence:   confidence,
		ValueConfidence: confidence,
		DisplayOrder:    len(g.Records) + 1,
	})
}

func (b *builder) result() models.NormalizedRecords {
	out := make(models.NormalizedRecords, 0, len(b.groups))
	section := 0
	for i, g := range b.groups {
		if len(g.Records) == 0 {
			continue
		}
		if !b.flat[i] {
			section++
			g.PageNumber = section
		}
		for j := range g.Records {
			g.Records[j].PageNumber = g.PageNumber
		}
		out = append(out, g)
	}
	return out
}

func (b *builder) object(root node) {
	if len(root.members) == 1 && root.members[0].key == "data" && root.members[0].value.kind == kindObject {
		root = root.members[0].value
	}
	for _, m := range root.members {
		if isCompactSection(m.value) {
			g := b.group(m.key, false)
			for _, item := range m.value.items {
				k, _ := item.field("k")
				v, _ := item.field("v")
				c, _ := item.field("c")
				key, _ := k.scalarText()
				value, _ := v.scalarText()
				b.add(g, key, value, confidence(c))
			}
			continue
		}
		b.flatten(m.key, m.value)
	}
}

func (b *builder) flatten(path string, n node) {
	switch n.kind {
	case kindObject:
		for _, m := range n.members {
			b.flatten(path+"."+m.key, m.value)
		}
	case kindArray:
		for i, item := range n.items {
			b.flatten(fmt.Sprintf("%s[%d]", path, i+1), item)
		}
	default:
		if text, ok := n.scalarText(); ok {
			b.add(b.group("", true), path, text, 0)
		}
	}
}

func (b *builder) list(root node) error {
	for i, item := range root.items {
		if item.kind != kindObject {
			return models.ModelResponseFormatError(fmt.Sprintf("entry %d is not an object", i+1), nil)
		}
		sectionNode, _ := item.field("section")
		keyNode, _ := item.field("key")
		valueNode, _ := item.field("value")
		confNode, _ := item.field("confidence")

		section, _ := sectionNode.scalarText()
		key, _ := keyNode.scalarText()
		value, _ := valueNode.scalarText()
		b.add(b.group(strings.TrimSpace(section), false), key, value, confidence(confNode))
	}
	return nil
}

func isCompactSection(n node) bool {
	if n.kind != kindArray || len(n.items) == 0 {
		return false
	}
	for _, item := range n.items {
		if item.kind != kindObject {
			return false
		}
		if _, ok := item.field("k"); !ok {
			return false
		}
	}
	return true
}

func confidence(n node) float64 {
	text, ok := n.scalarText()
	if !ok || n.kind == kindBool {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(text), "%"), 64)
	if err != nil {
		return 0
	}
	return v
}
