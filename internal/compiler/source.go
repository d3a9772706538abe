package compiler

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/ESETdropout/kframe/internal/tree"
)

// Format is a definition file format.
type Format string

const (
	FormatCUE  Format = "cue"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		return FormatCUE, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", &CompileError{
		Field:   "file",
		Message: fmt.Sprintf("unsupported definition format %q (want .cue, .yaml, .yml or .json)", filepath.Ext(path)),
		Pos:     Position{Filename: path},
	}
}

// document is a decoded definition file: the value tree plus the source
// position of every node, keyed by dotted path ("actions.reset.0").
type document struct {
	filename string
	root     *tree.Map
	pos      map[string]Position
}

// at returns the position of path, or of its closest recorded ancestor.
func (d *document) at(path string) Position {
	for {
		if p, ok := d.pos[path]; ok {
			return p
		}
		idx := strings.LastIndexByte(path, '.')
		if idx < 0 {
			break
		}
		path = path[:idx]
	}
	if p, ok := d.pos[""]; ok {
		return p
	}
	return Position{Filename: d.filename}
}

func (d *document) errorf(path, format string, args ...any) *CompileError {
	return &CompileError{Field: path, Message: fmt.Sprintf(format, args...), Pos: d.at(path)}
}

func decode(filename string, data []byte, format Format) (*document, error) {
	doc := &document{filename: filename, pos: make(map[string]Position)}

	var (
		root tree.Value
		err  error
	)
	switch format {
	case FormatCUE:
		root, err = doc.decodeCUE(data)
	case FormatYAML:
		root, err = doc.decodeYAML(data)
	case FormatJSON:
		root, err = tree.UnmarshalValue(data)
		if err != nil {
			err = &CompileError{Field: "json", Message: err.Error(), Pos: Position{Filename: filename}}
		}
	default:
		return nil, &CompileError{Field: "file", Message: fmt.Sprintf("unknown format %q", format)}
	}
	if err != nil {
		return nil, err
	}

	m, ok := root.(*tree.Map)
	if !ok {
		return nil, doc.errorf("", "definition must be a mapping, got %s", tree.Kind(root))
	}
	doc.root = m
	return doc, nil
}

// decodeCUE evaluates a CUE file through the Go API. All values must be
// concrete.
func (d *document) decodeCUE(data []byte) (tree.Value, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(d.filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}
	return d.fromCUE(v, "")
}

func (d *document) fromCUE(v cue.Value, path string) (tree.Value, error) {
	d.pos[path] = positionOf(v.Pos())

	switch v.Kind() {
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		m := tree.NewMap()
		for iter.Next() {
			label := iter.Label()
			child, err := d.fromCUE(iter.Value(), join(path, label))
			if err != nil {
				return nil, err
			}
			m.Set(label, child)
		}
		return m, nil

	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		l := tree.NewList()
		for i := 0; iter.Next(); i++ {
			child, err := d.fromCUE(iter.Value(), join(path, strconv.Itoa(i)))
			if err != nil {
				return nil, err
			}
			l.Push(child)
		}
		return l, nil

	case cue.NullKind:
		return tree.Null{}, nil

	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return tree.Bool(b), nil

	case cue.IntKind:
		i, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return tree.Int(i), nil

	case cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return tree.Float(f), nil

	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return tree.String(s), nil
	}

	return nil, d.errorf(path, "unsupported CUE value of kind %s", v.Kind())
}

// decodeYAML decodes a YAML document preserving key order and records node
// positions.
func (d *document) decodeYAML(data []byte) (tree.Value, error) {
	var n yaml.Node
	if err := yaml.Unmarshal(data, &n); err != nil {
		return nil, &CompileError{Field: "yaml", Message: err.Error(), Pos: Position{Filename: d.filename}}
	}
	d.recordYAML(&n, "")

	v, err := tree.FromYAML(&n)
	if err != nil {
		return nil, &CompileError{Field: "yaml", Message: err.Error(), Pos: Position{Filename: d.filename}}
	}
	return v, nil
}

func (d *document) recordYAML(n *yaml.Node, path string) {
	switch n.Kind {
	case yaml.DocumentNode:
		for _, c := range n.Content {
			d.recordYAML(c, path)
		}
		return
	case yaml.AliasNode:
		if n.Alias != nil {
			d.recordYAML(n.Alias, path)
		}
		return
	}

	d.pos[path] = Position{Filename: d.filename, Line: n.Line, Column: n.Column}
	switch n.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			d.recordYAML(n.Content[i+1], join(path, n.Content[i].Value))
		}
	case yaml.SequenceNode:
		for i, c := range n.Content {
			d.recordYAML(c, join(path, strconv.Itoa(i)))
		}
	}
}

func join(path, seg string) string {
	if path == "" {
		return seg
	}
	return path + "." + seg
}
