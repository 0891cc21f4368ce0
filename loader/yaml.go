package loader

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// decodeYAML reads a CGML document. Mappings whose order matters (deck
// types, decks, flow states) are walked as nodes so declaration order
// survives decoding.
func decodeYAML(data []byte) (*collector, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, errors.New("empty definition document")
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: definition must be a mapping", root.Line)
	}

	coll := &collector{}
	err := eachPair(root, func(key string, val *yaml.Node) error {
		var err error
		switch key {
		case "meta":
			coll.meta, err = decodeMap(val)
		case "components":
			err = decodeComponents(val, coll)
		case "rules":
			coll.rules, err = decodeEntries(val, "id")
		case "flow":
			err = decodeFlow(val, coll)
		case "setup":
			coll.setup, err = decodeList(val)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return coll, nil
}

func decodeComponents(n *yaml.Node, coll *collector) error {
	return eachPair(n, func(key string, val *yaml.Node) error {
		var err error
		switch key {
		case "component_types":
			err = eachPair(val, func(k string, v *yaml.Node) error {
				if k != "deck_types" {
					return nil
				}
				var err error
				coll.deckTypes, err = decodeEntries(v, "name")
				return err
			})
		case "deck_types":
			coll.deckTypes, err = decodeEntries(val, "name")
		case "decks":
			coll.decks, err = decodeEntries(val, "name")
		case "zones":
			coll.zones, err = decodeEntries(val, "name")
		case "variables":
			coll.variables, err = decodeEntries(val, "name")
		}
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		return nil
	})
}

func decodeFlow(n *yaml.Node, coll *collector) error {
	coll.flow = map[string]any{}
	return eachPair(n, func(key string, val *yaml.Node) error {
		var err error
		switch key {
		case "states":
			coll.states, err = decodeEntries(val, "name")
		case "transitions":
			coll.transitions, err = decodeList(val)
		default:
			var v any
			err = val.Decode(&v)
			coll.flow[key] = v
		}
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		return nil
	})
}

// eachPair calls fn for every key of a mapping node, in document order.
// A null node has no pairs.
func eachPair(n *yaml.Node, fn func(key string, val *yaml.Node) error) error {
	if isNull(n) {
		return nil
	}
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: want a mapping", n.Line)
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if err := fn(n.Content[i].Value, n.Content[i+1]); err != nil {
			return err
		}
	}
	return nil
}

// decodeEntries accepts either a mapping of name to body or a sequence of
// bodies carrying nameKey.
func decodeEntries(n *yaml.Node, nameKey string) ([]entry, error) {
	switch {
	case isNull(n):
		return nil, nil
	case n.Kind == yaml.MappingNode:
		var out []entry
		err := eachPair(n, func(key string, val *yaml.Node) error {
			body, err := decodeMap(val)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			out = append(out, entry{name: key, body: body})
			return nil
		})
		return out, err
	case n.Kind == yaml.SequenceNode:
		items, err := decodeList(n)
		if err != nil {
			return nil, err
		}
		out := make([]entry, 0, len(items))
		for _, item := range items {
			name, _ := item[nameKey].(string)
			out = append(out, entry{name: name, body: item})
		}
		return out, nil
	}
	return nil, fmt.Errorf("line %d: want a mapping or a list", n.Line)
}

func decodeMap(n *yaml.Node) (map[string]any, error) {
	m := map[string]any{}
	if isNull(n) {
		return m, nil
	}
	if err := n.Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeList(n *yaml.Node) ([]map[string]any, error) {
	if isNull(n) {
		return nil, nil
	}
	var l []map[string]any
	if err := n.Decode(&l); err != nil {
		return nil, err
	}
	return l, nil
}

func isNull(n *yaml.Node) bool {
	return n == nil || (n.Kind == yaml.ScalarNode && n.Tag == "!!null")
}
