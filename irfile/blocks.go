package irfile

import (
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/ilemit/block"
	"github.com/wippyai/ilemit/errors"
	"github.com/wippyai/ilemit/types"
)

var binaryOps = map[string]types.Operator{
	"add": types.OpAdd,
	"sub": types.OpSubtract,
	"mul": types.OpMultiply,
	"div": types.OpDivide,
	"rem": types.OpRemainder,
	"and": types.OpAnd,
	"or":  types.OpOr,
	"xor": types.OpXor,
	"shl": types.OpShl,
	"shr": types.OpShr,
	"eq":  types.OpEq,
	"ne":  types.OpNe,
	"lt":  types.OpLt,
	"le":  types.OpLe,
	"gt":  types.OpGt,
	"ge":  types.OpGe,
}

func invalid(n *yaml.Node, path []string, format string, args ...any) error {
	return errors.New(errors.PhaseParse, errors.KindInvalidData).
		Path(path...).
		Detail("line %d: "+format, append([]any{n.Line}, args...)...).
		Build()
}

func isNull(n *yaml.Node) bool {
	return n == nil || n.ShortTag() == "!!null"
}

// fields returns the entries of a mapping node, rejecting keys outside
// allowed.
func fields(n *yaml.Node, path []string, allowed ...string) (map[string]*yaml.Node, error) {
	if n.Kind != yaml.MappingNode {
		return nil, invalid(n, path, "expected a mapping")
	}
	out := make(map[string]*yaml.Node, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k := n.Content[i]
		if !slices.Contains(allowed, k.Value) {
			return nil, invalid(k, path, "unexpected key %q", k.Value)
		}
		out[k.Value] = n.Content[i+1]
	}
	return out, nil
}

func scalar[T any](n *yaml.Node, path []string) (T, error) {
	var v T
	if n == nil || n.Kind != yaml.ScalarNode {
		if n == nil {
			return v, errors.InvalidData(errors.PhaseParse, path, "missing value")
		}
		return v, invalid(n, path, "expected a scalar")
	}
	if err := n.Decode(&v); err != nil {
		return v, errors.New(errors.PhaseParse, errors.KindInvalidData).
			Path(path...).
			Cause(err).
			Detail("line %d: bad scalar %q", n.Line, n.Value).
			Build()
	}
	return v, nil
}

func sub(path []string, key string) []string {
	return append(slices.Clip(path), key)
}

// required decodes the child block at key.
func (d *decoder) required(m map[string]*yaml.Node, key string, path []string) (block.Block, error) {
	n, ok := m[key]
	if !ok || isNull(n) {
		return nil, errors.InvalidData(errors.PhaseParse, sub(path, key), "missing block")
	}
	return d.block(n, sub(path, key))
}

// optional decodes the child block at key, or returns nil.
func (d *decoder) optional(m map[string]*yaml.Node, key string, path []string) (block.Block, error) {
	n, ok := m[key]
	if !ok || isNull(n) {
		return nil, nil
	}
	return d.block(n, sub(path, key))
}

func (d *decoder) blocks(n *yaml.Node, path []string) ([]block.Block, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, invalid(n, path, "expected a list of blocks")
	}
	out := make([]block.Block, 0, len(n.Content))
	for _, c := range n.Content {
		b, err := d.block(c, path)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (d *decoder) typeAt(m map[string]*yaml.Node, key string, path []string) (*types.Type, error) {
	name, err := scalar[string](m[key], sub(path, key))
	if err != nil {
		return nil, err
	}
	return d.typ(name)
}

func (d *decoder) block(n *yaml.Node, path []string) (block.Block, error) {
	if n.Kind == yaml.SequenceNode {
		bs, err := d.blocks(n, path)
		if err != nil {
			return nil, err
		}
		return block.Seq{Blocks: bs}, nil
	}
	if n.Kind != yaml.MappingNode || len(n.Content) != 2 {
		return nil, invalid(n, path, "a block is a mapping with exactly one key")
	}
	key, val := n.Content[0].Value, n.Content[1]
	path = sub(path, key)

	if op, ok := binaryOps[key]; ok {
		operands, err := d.blocks(val, path)
		if err != nil {
			return nil, err
		}
		if len(operands) != 2 {
			return nil, invalid(val, path, "%s takes two operands, got %d", key, len(operands))
		}
		return block.Binary{Left: operands[0], Right: operands[1], Op: op}, nil
	}

	switch key {
	case "seq":
		bs, err := d.blocks(val, path)
		if err != nil {
			return nil, err
		}
		return block.Seq{Blocks: bs}, nil
	case "int":
		v, err := scalar[int64](val, path)
		return block.Int(v), err
	case "long":
		v, err := scalar[int64](val, path)
		return block.Const{Value: v, Type: types.Int64}, err
	case "float":
		v, err := scalar[float64](val, path)
		return block.Const{Value: v, Type: types.Float64}, err
	case "bool":
		v, err := scalar[bool](val, path)
		return block.Bool(v), err
	case "str":
		v, err := scalar[string](val, path)
		return block.Str(v), err
	case "null":
		return block.Null(), nil
	case "const":
		return d.constant(val, path)
	case "arg":
		v, err := scalar[int](val, path)
		return block.Arg{Index: v}, err
	case "get":
		v, err := scalar[string](val, path)
		return block.Get{Name: v}, err
	case "neg", "not":
		v, err := d.block(val, path)
		op := types.OpNeg
		if key == "not" {
			op = types.OpNot
		}
		return block.Unary{Value: v, Op: op}, err
	case "len":
		v, err := d.block(val, path)
		return block.Length{Array: v}, err
	case "pop":
		v, err := d.block(val, path)
		return block.Pop{Value: v}, err
	case "throw":
		v, err := d.block(val, path)
		return block.Throw{Value: v}, err
	case "break", "continue":
		var tag string
		if !isNull(val) {
			var err error
			if tag, err = scalar[string](val, path); err != nil {
				return nil, err
			}
		}
		if key == "break" {
			return block.Break{Tag: tag}, nil
		}
		return block.Continue{Tag: tag}, nil
	case "return":
		if isNull(val) {
			return block.Return{}, nil
		}
		v, err := d.block(val, path)
		return block.Return{Value: v}, err
	case "try":
		return d.try(val, path)
	case "call":
		return d.call(val, path)
	}
	return d.structured(key, val, path)
}

// structured decodes the block kinds whose payload is a mapping of named
// children.
func (d *decoder) structured(key string, val *yaml.Node, path []string) (block.Block, error) {
	var allowed []string
	switch key {
	case "starg":
		allowed = []string{"index", "value"}
	case "let":
		allowed = []string{"name", "type", "value", "body"}
	case "set":
		allowed = []string{"name", "value"}
	case "convert", "isinst":
		allowed = []string{"type", "value"}
	case "if":
		allowed = []string{"cond", "then", "else"}
	case "while", "do":
		allowed = []string{"cond", "body", "tag"}
	case "field":
		allowed = []string{"field", "target"}
	case "store":
		allowed = []string{"field", "target", "value"}
	case "newarr":
		allowed = []string{"elem", "length"}
	case "index":
		allowed = []string{"array", "index"}
	default:
		return nil, invalid(val, path, "unknown block kind %q", key)
	}
	m, err := fields(val, path, allowed...)
	if err != nil {
		return nil, err
	}

	switch key {
	case "starg":
		idx, err := scalar[int](m["index"], sub(path, "index"))
		if err != nil {
			return nil, err
		}
		v, err := d.required(m, "value", path)
		return block.StoreArg{Index: idx, Value: v}, err
	case "let":
		name, err := scalar[string](m["name"], sub(path, "name"))
		if err != nil {
			return nil, err
		}
		b := block.Let{Name: name}
		if _, ok := m["type"]; ok {
			if b.Type, err = d.typeAt(m, "type", path); err != nil {
				return nil, err
			}
		}
		if b.Value, err = d.optional(m, "value", path); err != nil {
			return nil, err
		}
		b.Body, err = d.optional(m, "body", path)
		return b, err
	case "set":
		name, err := scalar[string](m["name"], sub(path, "name"))
		if err != nil {
			return nil, err
		}
		v, err := d.required(m, "value", path)
		return block.Set{Name: name, Value: v}, err
	case "convert", "isinst":
		t, err := d.typeAt(m, "type", path)
		if err != nil {
			return nil, err
		}
		v, err := d.required(m, "value", path)
		if key == "isinst" {
			return block.IsInst{Value: v, Type: t}, err
		}
		return block.Convert{Value: v, Type: t}, err
	case "if":
		var b block.If
		if b.Cond, err = d.required(m, "cond", path); err != nil {
			return nil, err
		}
		if b.Then, err = d.optional(m, "then", path); err != nil {
			return nil, err
		}
		b.Else, err = d.optional(m, "else", path)
		return b, err
	case "while", "do":
		var tag string
		if n, ok := m["tag"]; ok {
			if tag, err = scalar[string](n, sub(path, "tag")); err != nil {
				return nil, err
			}
		}
		cond, err := d.required(m, "cond", path)
		if err != nil {
			return nil, err
		}
		body, err := d.optional(m, "body", path)
		if key == "do" {
			return block.DoWhile{Body: body, Cond: cond, Tag: tag}, err
		}
		return block.While{Cond: cond, Body: body, Tag: tag}, err
	case "field":
		f, err := d.field(m, path)
		if err != nil {
			return nil, err
		}
		target, err := d.optional(m, "target", path)
		return block.FieldGet{Field: f, Target: target}, err
	case "store":
		f, err := d.field(m, path)
		if err != nil {
			return nil, err
		}
		target, err := d.optional(m, "target", path)
		if err != nil {
			return nil, err
		}
		v, err := d.required(m, "value", path)
		return block.FieldSet{Field: f, Target: target, Value: v}, err
	case "newarr":
		elem, err := d.typeAt(m, "elem", path)
		if err != nil {
			return nil, err
		}
		n, err := d.required(m, "length", path)
		return block.NewArray{Elem: elem, Length: n}, err
	case "index":
		arr, err := d.required(m, "array", path)
		if err != nil {
			return nil, err
		}
		i, err := d.required(m, "index", path)
		return block.Index{Array: arr, Index: i}, err
	}
	return nil, invalid(val, path, "unknown block kind %q", key)
}

func (d *decoder) field(m map[string]*yaml.Node, path []string) (*types.Field, error) {
	name, err := scalar[string](m["field"], sub(path, "field"))
	if err != nil {
		return nil, err
	}
	f, ok := d.fields[name]
	if !ok {
		return nil, errors.NotFound(errors.PhaseParse, "field", name)
	}
	return f, nil
}

func (d *decoder) constant(val *yaml.Node, path []string) (block.Block, error) {
	m, err := fields(val, path, "type", "value")
	if err != nil {
		return nil, err
	}
	t, err := d.typeAt(m, "type", path)
	if err != nil {
		return nil, err
	}
	vp := sub(path, "value")
	switch {
	case isNull(m["value"]) && t.IsReference():
		return block.Const{Type: t}, nil
	case t.Kind == types.KindBool:
		v, err := scalar[bool](m["value"], vp)
		return block.Const{Value: v, Type: t}, err
	case t.Kind == types.KindUInt64:
		v, err := scalar[uint64](m["value"], vp)
		return block.Const{Value: v, Type: t}, err
	case t.IsInteger():
		v, err := scalar[int64](m["value"], vp)
		return block.Const{Value: v, Type: t}, err
	case t.IsFloat():
		v, err := scalar[float64](m["value"], vp)
		return block.Const{Value: v, Type: t}, err
	case t.Kind == types.KindString:
		v, err := scalar[string](m["value"], vp)
		return block.Const{Value: v, Type: t}, err
	}
	return nil, invalid(val, path, "no literal form for %s", t)
}

func (d *decoder) call(val *yaml.Node, path []string) (block.Block, error) {
	m, err := fields(val, path, "method", "receiver", "args")
	if err != nil {
		return nil, err
	}
	name, err := scalar[string](m["method"], sub(path, "method"))
	if err != nil {
		return nil, err
	}
	target, ok := d.methods[name]
	if !ok {
		return nil, errors.NotFound(errors.PhaseParse, "method", name)
	}
	c := block.Call{Method: target}
	if c.Receiver, err = d.optional(m, "receiver", path); err != nil {
		return nil, err
	}
	if n, ok := m["args"]; ok {
		if c.Args, err = d.blocks(n, sub(path, "args")); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (d *decoder) try(val *yaml.Node, path []string) (block.Block, error) {
	m, err := fields(val, path, "body", "catch", "finally")
	if err != nil {
		return nil, err
	}
	var b block.Try
	if b.Body, err = d.optional(m, "body", path); err != nil {
		return nil, err
	}
	if n, ok := m["finally"]; ok {
		// an explicit empty finally is kept so that it can be elided
		if isNull(n) {
			b.Finally = block.Seq{}
		} else if b.Finally, err = d.block(n, sub(path, "finally")); err != nil {
			return nil, err
		}
	}
	if n, ok := m["catch"]; ok {
		if n.Kind != yaml.SequenceNode {
			return nil, invalid(n, sub(path, "catch"), "expected a list of catch clauses")
		}
		for _, cn := range n.Content {
			cp := sub(path, "catch")
			cm, err := fields(cn, cp, "type", "var", "body")
			if err != nil {
				return nil, err
			}
			var c block.Catch
			if _, ok := cm["type"]; ok {
				if c.Type, err = d.typeAt(cm, "type", cp); err != nil {
					return nil, err
				}
			}
			if vn, ok := cm["var"]; ok {
				if c.Var, err = scalar[string](vn, sub(cp, "var")); err != nil {
					return nil, err
				}
			}
			if c.Body, err = d.optional(cm, "body", cp); err != nil {
				return nil, err
			}
			b.Catches = append(b.Catches, c)
		}
	}
	if len(b.Catches) == 0 && b.Finally == nil {
		return nil, invalid(val, path, "try without catch or finally")
	}
	return b, nil
}
