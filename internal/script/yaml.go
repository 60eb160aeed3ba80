package script

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/roach88/wodrt/internal/ir"
)

// yamlScript is the YAML form of a Document.
type yamlScript struct {
	Name       string          `yaml:"name"`
	Statements []yamlStatement `yaml:"statements"`
}

type yamlStatement struct {
	ID        int64          `yaml:"id"`
	Parent    *int64         `yaml:"parent,omitempty"`
	Children  []yamlGroup    `yaml:"children,omitempty"`
	Fragments []yamlFragment `yaml:"fragments"`
}

// yamlGroup is either a single id or a list of ids.
type yamlGroup []int64

func (g *yamlGroup) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var id int64
		if err := node.Decode(&id); err != nil {
			return fmt.Errorf("line %d: child id: %w", node.Line, err)
		}
		*g = yamlGroup{id}
	case yaml.SequenceNode:
		var ids []int64
		if err := node.Decode(&ids); err != nil {
			return fmt.Errorf("line %d: child group: %w", node.Line, err)
		}
		*g = ids
	default:
		return fmt.Errorf("line %d: child must be an id or a list of ids", node.Line)
	}
	return nil
}

type yamlFragment struct {
	Type      string       `yaml:"type"`
	Image     string       `yaml:"image,omitempty"`
	Duration  yamlDuration `yaml:"duration,omitempty"`
	Direction string       `yaml:"direction,omitempty"`
	Count     int64        `yaml:"count,omitempty"`
	Sequence  []int64      `yaml:"sequence,omitempty"`
	Label     string       `yaml:"label,omitempty"`
	Amount    int64        `yaml:"amount,omitempty"`
	Unit      string       `yaml:"unit,omitempty"`
}

// yamlDuration accepts integer milliseconds or a duration string.
type yamlDuration int64

func (d *yamlDuration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	switch node.ShortTag() {
	case "!!int":
		var ms int64
		if err := node.Decode(&ms); err != nil {
			return fmt.Errorf("line %d: duration: %w", node.Line, err)
		}
		*d = yamlDuration(ms)
	case "!!float":
		return fmt.Errorf("line %d: duration: float values are forbidden - use int milliseconds or a duration string", node.Line)
	default:
		ms, err := ParseDuration(node.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		*d = yamlDuration(ms)
	}
	return nil
}

// statementLines maps statement ids to the lines they start on.
func statementLines(data []byte) map[int64]int {
	lines := make(map[int64]int)
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil || len(root.Content) == 0 {
		return lines
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return lines
	}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		if doc.Content[i].Value != "statements" {
			continue
		}
		for _, item := range doc.Content[i+1].Content {
			var head struct {
				ID int64 `yaml:"id"`
			}
			if item.Decode(&head) == nil {
				lines[head.ID] = item.Line
			}
		}
	}
	return lines
}

// ParseYAML decodes a YAML script. Unknown fields are errors.
// An empty name falls back to the document's name field.
func ParseYAML(name string, data []byte) (*Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var ys yamlScript
	if err := dec.Decode(&ys); err != nil {
		if errors.Is(err, io.EOF) {
			return &Document{Name: name, Lines: map[int64]int{}}, nil
		}
		return nil, fmt.Errorf("parse YAML script: %w", err)
	}

	doc := &Document{Name: ys.Name, Lines: statementLines(data)}
	if doc.Name == "" {
		doc.Name = name
	}
	for _, s := range ys.Statements {
		st := ir.Statement{ID: s.ID, Parent: s.Parent}
		for _, g := range s.Children {
			st.Children = append(st.Children, []int64(g))
		}
		for _, f := range s.Fragments {
			st.Fragments = append(st.Fragments, ir.Fragment{
				Type:      ir.FragmentType(f.Type),
				Image:     f.Image,
				Duration:  int64(f.Duration),
				Direction: ir.Direction(f.Direction),
				Count:     f.Count,
				Sequence:  f.Sequence,
				Label:     f.Label,
				Amount:    f.Amount,
				Unit:      f.Unit,
			})
		}
		doc.Statements = append(doc.Statements, st)
	}
	return doc, nil
}
