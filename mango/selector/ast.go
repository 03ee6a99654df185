// Package selector defines the Mango selector grammar.
//
// A selector such as {"age": {"$gt": 25}, "status": "active"} is parsed into a
// tree of Nodes. Combinations ($and, $or, $nor, $not) are Nodes; everything a
// single field is tested against is a Field carrying one Condition per
// operator. Conditions are grouped by operator family so that the compiler and
// the planner can switch over them exhaustively.
package selector

// Operator is a selector operator name such as "$gt".
type Operator string

const (
	OpAnd Operator = "$and"
	OpOr  Operator = "$or"
	OpNor Operator = "$nor"
	OpNot Operator = "$not"

	OpEq  Operator = "$eq"
	OpNe  Operator = "$ne"
	OpGt  Operator = "$gt"
	OpGte Operator = "$gte"
	OpLt  Operator = "$lt"
	OpLte Operator = "$lte"

	OpIn  Operator = "$in"
	OpNin Operator = "$nin"
	OpAll Operator = "$all"

	OpElemMatch   Operator = "$elemMatch"
	OpAllMatch    Operator = "$allMatch"
	OpKeyMapMatch Operator = "$keyMapMatch"

	OpSize       Operator = "$size"
	OpExists     Operator = "$exists"
	OpType       Operator = "$type"
	OpRegex      Operator = "$regex"
	OpBeginsWith Operator = "$beginsWith"
	OpMod        Operator = "$mod"
)

// IsCombination reports whether key names a combination operator.
func IsCombination(key string) bool {
	switch Operator(key) {
	case OpAnd, OpOr, OpNor, OpNot:
		return true
	}
	return false
}

// IsFieldOperator reports whether key names an operator applied to a field value.
func IsFieldOperator(key string) bool {
	switch Operator(key) {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte,
		OpIn, OpNin, OpAll,
		OpElemMatch, OpAllMatch, OpKeyMapMatch,
		OpSize, OpExists, OpType, OpRegex, OpBeginsWith, OpMod:
		return true
	}
	return false
}

// TakesSelector reports whether op's operand is a nested selector rather than a literal.
func TakesSelector(op Operator) bool {
	return op == OpElemMatch || op == OpAllMatch || op == OpKeyMapMatch
}

// Placeholder stands in for a literal that was moved into a template's values slice.
type Placeholder struct {
	Index int
}

// Operand is either a literal or a reference to values[Param].
type Operand struct {
	Param int
	Value any
}

// Literal returns an operand holding v directly.
func Literal(v any) Operand {
	return Operand{Param: -1, Value: v}
}

// Param returns an operand bound to values[i] at evaluation time.
func Param(i int) Operand {
	return Operand{Param: i}
}

// IsParam reports whether the operand refers into a values slice.
func (o Operand) IsParam() bool { return o.Param >= 0 }

// Resolve returns the operand's value under the given bindings. An index
// outside values resolves to nil.
func (o Operand) Resolve(values []any) any {
	if o.Param < 0 {
		return o.Value
	}
	if o.Param >= len(values) {
		return nil
	}
	return values[o.Param]
}

// Node is a selector expression.
type Node interface {
	isNode()
}

// And matches when every child matches. An empty And matches everything.
type And struct {
	Children []Node
}

func (And) isNode() {}

// Or matches when at least one child matches.
type Or struct {
	Children []Node
}

func (Or) isNode() {}

// Nor matches when no child matches.
type Nor struct {
	Children []Node
}

func (Nor) isNode() {}

// Not negates its inner selector.
type Not struct {
	Inner Node
}

func (Not) isNode() {}

// Field tests the value found at Path against every condition.
// An empty Path addresses the value being matched itself.
type Field struct {
	Name  string
	Path  []string
	Conds []Condition
}

func (Field) isNode() {}

// Condition is one operator applied to a field value.
type Condition interface {
	isCondition()
	Operator() Operator
}

// Comparison covers $eq, $ne, $gt, $gte, $lt and $lte.
type Comparison struct {
	Op  Operator
	Arg Operand
}

func (Comparison) isCondition()         {}
func (c Comparison) Operator() Operator { return c.Op }

// Membership covers $in, $nin and $all. The operand must resolve to an array.
type Membership struct {
	Op  Operator
	Arg Operand
}

func (Membership) isCondition()         {}
func (c Membership) Operator() Operator { return c.Op }

// ElementMatch covers $elemMatch, $allMatch and $keyMapMatch. Sub is nil when
// the operand was not an object; such a condition never matches.
type ElementMatch struct {
	Op  Operator
	Sub Node
}

func (ElementMatch) isCondition()         {}
func (c ElementMatch) Operator() Operator { return c.Op }

// Size is $size.
type Size struct {
	Arg Operand
}

func (Size) isCondition()       {}
func (Size) Operator() Operator { return OpSize }

// Exists is $exists.
type Exists struct {
	Arg Operand
}

func (Exists) isCondition()       {}
func (Exists) Operator() Operator { return OpExists }

// TypeIs is $type.
type TypeIs struct {
	Arg Operand
}

func (TypeIs) isCondition()       {}
func (TypeIs) Operator() Operator { return OpType }

// Regex is $regex.
type Regex struct {
	Arg Operand
}

func (Regex) isCondition()       {}
func (Regex) Operator() Operator { return OpRegex }

// BeginsWith is $beginsWith.
type BeginsWith struct {
	Arg Operand
}

func (BeginsWith) isCondition()       {}
func (BeginsWith) Operator() Operator { return OpBeginsWith }

// Mod is $mod with operand [divisor, remainder].
type Mod struct {
	Arg Operand
}

func (Mod) isCondition()       {}
func (Mod) Operator() Operator { return OpMod }
