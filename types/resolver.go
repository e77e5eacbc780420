package types

// Operator names a high-level binary or unary operator.
type Operator string

const (
	OpAdd       Operator = "+"
	OpSubtract  Operator = "-"
	OpMultiply  Operator = "*"
	OpDivide    Operator = "/"
	OpRemainder Operator = "%"
	OpAnd       Operator = "&"
	OpOr        Operator = "|"
	OpXor       Operator = "^"
	OpShl       Operator = "<<"
	OpShr       Operator = ">>"
	OpEq        Operator = "=="
	OpNe        Operator = "!="
	OpLt        Operator = "<"
	OpLe        Operator = "<="
	OpGt        Operator = ">"
	OpGe        Operator = ">="
	OpNeg       Operator = "neg"
	OpNot       Operator = "!"
)

// IsComparison reports whether op yields a boolean.
func (op Operator) IsComparison() bool {
	switch op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		return true
	}
	return false
}

// Resolver is the metadata provider's operator-overload surface.
//
// A missing overload is not an error: lowering falls back to the intrinsic
// opcode sequence for the operand types.
type Resolver interface {
	// ResolveBinary returns a user-defined operator method for (a op b).
	ResolveBinary(op Operator, a, b *Type) (*Method, bool)
}

// NopResolver resolves nothing.
type NopResolver struct{}

// ResolveBinary implements Resolver.
func (NopResolver) ResolveBinary(Operator, *Type, *Type) (*Method, bool) {
	return nil, false
}

type overloadKey struct {
	op   Operator
	a, b string
}

// OverloadTable is a Resolver backed by an explicit table.
type OverloadTable struct {
	methods map[overloadKey]*Method
}

// NewOverloadTable creates an empty table.
func NewOverloadTable() *OverloadTable {
	return &OverloadTable{methods: make(map[overloadKey]*Method)}
}

// Add registers m as the implementation of (a op b).
func (t *OverloadTable) Add(op Operator, a, b *Type, m *Method) {
	t.methods[overloadKey{op, a.Name, b.Name}] = m
}

// ResolveBinary implements Resolver.
func (t *OverloadTable) ResolveBinary(op Operator, a, b *Type) (*Method, bool) {
	m, ok := t.methods[overloadKey{op, a.Name, b.Name}]
	return m, ok
}
