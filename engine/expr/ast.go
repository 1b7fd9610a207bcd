package expr

// Node is one node of a compiled expression. Compilation happens once per
// source string; evaluation walks the tree against the runtime store (for
// conditions) or an explicit context map (for value expressions).
type Node interface {
	isNode()
}

// Lit is a literal value: bool, int, float64 or string.
type Lit struct {
	Val any
}

// Ref reads a variable by name.
type Ref struct {
	Name string
}

// Path reads a dotted path through nested maps.
type Path struct {
	Parts []string
}

// ObjState tests an object's presence or current state ("door.open",
// "door.present").
type ObjState struct {
	Object string
	Want   string
}

// Cmp compares two operands.
type Cmp struct {
	Op   string // "==", "!=", ">", "<", ">=", "<="
	L, R Node
}

// Logic joins two conditions with short-circuit evaluation.
type Logic struct {
	Op   string // "and", "or"
	L, R Node
}

// Not negates a condition.
type Not struct {
	X Node
}

// Call invokes one of the fixed builtins. Conditions use has_flag,
// has_item and exists; value expressions additionally get max, min, abs,
// round and rand.
type Call struct {
	Fn   string
	Args []Node
}

// Arith applies an arithmetic operator in a value expression.
type Arith struct {
	Op   byte // '+', '-', '*', '/', '%'
	L, R Node
}

// Bad marks a source string that failed to compile. Evaluating it warns
// and yields the configured fallback.
type Bad struct {
	Src string
}

func (Lit) isNode()      {}
func (Ref) isNode()      {}
func (Path) isNode()     {}
func (ObjState) isNode() {}
func (Cmp) isNode()      {}
func (Logic) isNode()    {}
func (Not) isNode()      {}
func (Call) isNode()     {}
func (Arith) isNode()    {}
func (Bad) isNode()      {}
