// Package irfile decodes YAML descriptions of methods and their block
// trees into compiler.Method values.
//
// A file declares named types, external methods and fields that bodies
// refer to, operator overloads, and the methods to compile:
//
//	types:
//	  Money: struct
//	externs:
//	  - {class: Money, name: op_Addition, params: [Money, Money], returns: Money}
//	operators:
//	  - {op: "+", left: Money, right: Money, method: "Money::op_Addition"}
//	methods:
//	  - class: Math
//	    name: Abs
//	    params: [int32]
//	    returns: int32
//	    body:
//	      seq:
//	        - if:
//	            cond: {lt: [{arg: 0}, {int: 0}]}
//	            then: {return: {sub: [{int: 0}, {arg: 0}]}}
//	        - return: {arg: 0}
//
// Every block is a mapping with a single key naming its kind.
package irfile

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/ilemit/block"
	"github.com/wippyai/ilemit/compiler"
	"github.com/wippyai/ilemit/errors"
	"github.com/wippyai/ilemit/types"
)

// File is a decoded IR file.
type File struct {
	// Resolver holds the declared operator overloads.
	Resolver *types.OverloadTable
	Methods  []compiler.Method
}

// Method returns the method with the given full or short name.
func (f *File) Method(name string) (compiler.Method, bool) {
	for _, m := range f.Methods {
		if m.Name() == name || m.Signature.Name == name {
			return m, true
		}
	}
	return compiler.Method{}, false
}

type methodDecl struct {
	Body        yaml.Node `yaml:"body"`
	Class       string    `yaml:"class"`
	Name        string    `yaml:"name"`
	Returns     string    `yaml:"returns"`
	Params      []string  `yaml:"params"`
	Instance    bool      `yaml:"instance"`
	Virtual     bool      `yaml:"virtual"`
	Constructor bool      `yaml:"ctor"`
}

type fieldDecl struct {
	Class  string `yaml:"class"`
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	Static bool   `yaml:"static"`
}

type operatorDecl struct {
	Op     string `yaml:"op"`
	Left   string `yaml:"left"`
	Right  string `yaml:"right"`
	Method string `yaml:"method"`
}

type document struct {
	Types     map[string]string `yaml:"types"`
	Externs   []methodDecl      `yaml:"externs"`
	Fields    []fieldDecl       `yaml:"fields"`
	Operators []operatorDecl    `yaml:"operators"`
	Methods   []methodDecl      `yaml:"methods"`
}

// Load reads and decodes the file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.ParseFailed(path, err)
	}
	return Parse(data)
}

// Parse decodes an IR file.
func Parse(data []byte) (*File, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.ParseFailed("yaml", err)
	}

	d := &decoder{
		types:   make(map[string]*types.Type),
		methods: make(map[string]*types.Method),
		fields:  make(map[string]*types.Field),
	}
	for name, kind := range doc.Types {
		switch kind {
		case "class":
			d.types[name] = types.Class(name)
		case "struct":
			d.types[name] = types.Struct(name)
		default:
			return nil, errors.InvalidData(errors.PhaseParse, []string{"types", name},
				fmt.Sprintf("type kind %q, want class or struct", kind))
		}
	}

	for i, decl := range doc.Externs {
		if _, err := d.declare(decl, fmt.Sprintf("externs[%d]", i)); err != nil {
			return nil, err
		}
	}
	sigs := make([]*types.Method, len(doc.Methods))
	for i, decl := range doc.Methods {
		m, err := d.declare(decl, fmt.Sprintf("methods[%d]", i))
		if err != nil {
			return nil, err
		}
		sigs[i] = m
	}
	for i, decl := range doc.Fields {
		if err := d.declareField(decl, fmt.Sprintf("fields[%d]", i)); err != nil {
			return nil, err
		}
	}

	f := &File{Resolver: types.NewOverloadTable()}
	for i, decl := range doc.Operators {
		path := fmt.Sprintf("operators[%d]", i)
		if !isOperator(types.Operator(decl.Op)) {
			return nil, errors.InvalidData(errors.PhaseParse, []string{path}, "unknown operator "+decl.Op)
		}
		m, ok := d.methods[decl.Method]
		if !ok {
			return nil, errors.NotFound(errors.PhaseParse, "method", decl.Method)
		}
		a, err := d.typ(decl.Left)
		if err != nil {
			return nil, err
		}
		b, err := d.typ(decl.Right)
		if err != nil {
			return nil, err
		}
		f.Resolver.Add(types.Operator(decl.Op), a, b, m)
	}

	for i, decl := range doc.Methods {
		var body block.Block
		if !decl.Body.IsZero() {
			var err error
			if body, err = d.block(&decl.Body, []string{sigs[i].FullName()}); err != nil {
				return nil, err
			}
		}
		f.Methods = append(f.Methods, compiler.Method{Signature: sigs[i], Body: body})
	}
	return f, nil
}

type decoder struct {
	types   map[string]*types.Type
	methods map[string]*types.Method
	fields  map[string]*types.Field
}

func (d *decoder) typ(name string) (*types.Type, error) {
	if name == "" {
		return types.Void, nil
	}
	if elem, ok := strings.CutSuffix(name, "[]"); ok {
		t, err := d.typ(elem)
		if err != nil {
			return nil, err
		}
		return types.ArrayOf(t), nil
	}
	if t, ok := types.Primitive(name); ok {
		return t, nil
	}
	if t, ok := d.types[name]; ok {
		return t, nil
	}
	return nil, errors.NotFound(errors.PhaseParse, "type", name)
}

func (d *decoder) declare(decl methodDecl, path string) (*types.Method, error) {
	if decl.Name == "" {
		return nil, errors.InvalidData(errors.PhaseParse, []string{path}, "method without name")
	}
	m := &types.Method{
		Name:        decl.Name,
		Static:      !decl.Instance && !decl.Constructor,
		Virtual:     decl.Virtual,
		Constructor: decl.Constructor,
	}
	if decl.Class != "" {
		t, err := d.typ(decl.Class)
		if err != nil {
			return nil, err
		}
		m.DeclaringType = t
	}
	ret, err := d.typ(decl.Returns)
	if err != nil {
		return nil, err
	}
	m.Return = ret
	for _, p := range decl.Params {
		t, err := d.typ(p)
		if err != nil {
			return nil, err
		}
		m.Params = append(m.Params, t)
	}
	if _, dup := d.methods[m.FullName()]; dup {
		return nil, errors.InvalidData(errors.PhaseParse, []string{path}, "duplicate method "+m.FullName())
	}
	d.methods[m.FullName()] = m
	return m, nil
}

func (d *decoder) declareField(decl fieldDecl, path string) error {
	owner, err := d.typ(decl.Class)
	if err != nil {
		return err
	}
	t, err := d.typ(decl.Type)
	if err != nil {
		return err
	}
	f := &types.Field{Name: decl.Name, DeclaringType: owner, Type: t, Static: decl.Static}
	if _, dup := d.fields[f.FullName()]; dup {
		return errors.InvalidData(errors.PhaseParse, []string{path}, "duplicate field "+f.FullName())
	}
	d.fields[f.FullName()] = f
	return nil
}

func isOperator(op types.Operator) bool {
	for _, o := range binaryOps {
		if o == op {
			return true
		}
	}
	return false
}
