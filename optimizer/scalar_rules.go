package optimizer

import (
	"strings"

	"github.com/cube2222/octoplan/octoplan"
	"github.com/cube2222/octoplan/plan"
)

var simplifyCase = &Rule{
	Name:    "SimplifyCase",
	Pattern: Kind(plan.OpTypeCase),
	Apply: func(ctx *Context, n *plan.Node) (*plan.Node, bool) {
		if out, ok := collapseCase(n); ok {
			return out, true
		}
		return eliminateCaseWhenClauses(ctx, n)
	},
}

// collapseCase replaces the Case by its first result if all results are equivalent.
func collapseCase(n *plan.Node) (*plan.Node, bool) {
	firstThen := n.Child1()
	elseNode := n.Child(n.ChildCount() - 1)
	if !plan.IsEquivalent(firstThen, elseNode) {
		return n, false
	}
	for i := 3; i < n.ChildCount()-1; i += 2 {
		if !plan.IsEquivalent(n.Child(i), firstThen) {
			return n, false
		}
	}
	return firstThen, true
}

// eliminateCaseWhenClauses drops the when-then pairs with a false condition.
// A true condition makes its result the new else branch.
func eliminateCaseWhenClauses(ctx *Context, n *plan.Node) (*plan.Node, bool) {
	var args []*plan.Node
	for i := 0; i < n.ChildCount(); {
		if i == n.ChildCount()-1 {
			// Simplifying over a soft cast could change the result type.
			if n.Child(i).OpType() == plan.OpTypeSoftCast {
				return n, false
			}
			if args != nil {
				args = append(args, n.Child(i))
			}
			break
		}
		if n.Child(i+1).OpType() == plan.OpTypeSoftCast {
			return n, false
		}

		when := n.Child(i)
		if when.OpType() != plan.OpTypeConstantPredicate {
			if args != nil {
				args = append(args, when, n.Child(i+1))
			}
			i += 2
			continue
		}

		if args == nil {
			args = n.Children()[:i]
		}
		if when.Op().IsTrue() {
			args = append(args, n.Child(i+1))
			break
		}
		i += 2
	}
	if args == nil {
		return n, false
	}
	if len(args) == 1 {
		return args[0], true
	}
	return ctx.plan.Case(n.Op().ScalarType, args...), true
}

var flattenCase = &Rule{
	Name:    "FlattenCase",
	Pattern: Kind(plan.OpTypeCase),
	Apply: func(ctx *Context, n *plan.Node) (*plan.Node, bool) {
		elseNode := n.Child(n.ChildCount() - 1)
		if elseNode.OpType() != plan.OpTypeCase {
			return n, false
		}
		children := n.Children()
		children = append(children[:len(children)-1], elseNode.Children()...)
		return ctx.plan.Case(n.Op().ScalarType, children...), true
	},
}

// matchesPrefixPattern evaluates a LIKE whose pattern is a literal prefix followed by a single trailing '%'.
// ok is false for any other pattern, including prefixes holding '_' or '['.
func matchesPrefixPattern(str, pattern string) (match bool, ok bool) {
	wildcard := strings.IndexByte(pattern, '%')
	if wildcard == -1 || wildcard != len(pattern)-1 || len(pattern) > len(str)+1 {
		return false, false
	}
	if strings.ContainsAny(pattern[:wildcard], "_[") {
		return false, false
	}
	for i := 0; i < len(str) && i < len(pattern)-1; i++ {
		if pattern[i] != str[i] {
			return false, true
		}
	}
	return true, true
}

func stringLiteral(n *plan.Node) (string, bool) {
	switch n.OpType() {
	case plan.OpTypeConstant, plan.OpTypeInternalConstant:
		value := n.Op().Constant.Value
		if value.Type.TypeID == octoplan.TypeIDString {
			return value.Str, true
		}
	}
	return "", false
}

var likeOverConstants = &Rule{
	Name:    "LikeOverConstants",
	Pattern: Match(plan.OpTypeLike, Leaf(), Leaf(), Kind(plan.OpTypeNull)),
	Apply: func(ctx *Context, n *plan.Node) (*plan.Node, bool) {
		str, ok := stringLiteral(n.Child0())
		if !ok {
			return n, false
		}
		pattern, ok := stringLiteral(n.Child1())
		if !ok {
			return n, false
		}
		match, ok := matchesPrefixPattern(str, pattern)
		if !ok {
			return n, false
		}
		return ctx.plan.CreateNode(plan.NewConstantPredicateOp(match)), true
	},
}

// literalValue returns the value of a non-null literal.
func literalValue(n *plan.Node) (octoplan.Value, bool) {
	switch n.OpType() {
	case plan.OpTypeConstant, plan.OpTypeInternalConstant:
		value := n.Op().Constant.Value
		if value.IsNull() {
			return octoplan.Value{}, false
		}
		return value, true
	}
	return octoplan.Value{}, false
}

func comparableLiterals(a, b octoplan.Value) bool {
	if a.Type.IsInteger() && b.Type.IsInteger() {
		return true
	}
	return a.Type.TypeID == b.Type.TypeID && a.Type.TypeID != octoplan.TypeIDAny
}

func newComparisonOverConstantRule(name string, opType plan.OpType) *Rule {
	return &Rule{
		Name:    name,
		Pattern: Match(opType, Leaf(), Leaf()),
		Apply:   foldComparisonOverConstants,
	}
}

func foldComparisonOverConstants(ctx *Context, n *plan.Node) (*plan.Node, bool) {
	left, ok := literalValue(n.Child0())
	if !ok {
		return n, false
	}
	right, ok := literalValue(n.Child1())
	if !ok {
		return n, false
	}
	if !comparableLiterals(left, right) {
		return n, false
	}
	cmp := left.Compare(right)
	var result bool
	switch n.OpType() {
	case plan.OpTypeEQ:
		result = cmp == 0
	case plan.OpTypeNE:
		result = cmp != 0
	case plan.OpTypeLT:
		result = cmp < 0
	case plan.OpTypeGT:
		result = cmp > 0
	case plan.OpTypeLE:
		result = cmp <= 0
	case plan.OpTypeGE:
		result = cmp >= 0
	default:
		panic("unexhaustive comparison match")
	}
	return ctx.plan.CreateNode(plan.NewConstantPredicateOp(result)), true
}

var (
	equalsOverConstant       = newComparisonOverConstantRule("EqualsOverConstant", plan.OpTypeEQ)
	notEqualsOverConstant    = newComparisonOverConstantRule("NotEqualsOverConstant", plan.OpTypeNE)
	lessOverConstant         = newComparisonOverConstantRule("LessOverConstant", plan.OpTypeLT)
	greaterOverConstant      = newComparisonOverConstantRule("GreaterOverConstant", plan.OpTypeGT)
	lessEqualOverConstant    = newComparisonOverConstantRule("LessEqualOverConstant", plan.OpTypeLE)
	greaterEqualOverConstant = newComparisonOverConstantRule("GreaterEqualOverConstant", plan.OpTypeGE)
)

// logicalOverConstant folds And, Or and Not with a constant predicate operand.
func logicalOverConstant(ctx *Context, n, constant, other *plan.Node) (*plan.Node, bool) {
	isTrue := constant.Op().IsTrue()
	switch n.OpType() {
	case plan.OpTypeAnd:
		if isTrue {
			return other, true
		}
		return constant, true
	case plan.OpTypeOr:
		if isTrue {
			return constant, true
		}
		return other, true
	case plan.OpTypeNot:
		return ctx.plan.CreateNode(plan.NewConstantPredicateOp(!isTrue)), true
	}
	panic("unexhaustive logical op match")
}

var andOverConstantPredRight = &Rule{
	Name:    "AndOverConstantPredRight",
	Pattern: Match(plan.OpTypeAnd, Leaf(), Kind(plan.OpTypeConstantPredicate)),
	Apply: func(ctx *Context, n *plan.Node) (*plan.Node, bool) {
		return logicalOverConstant(ctx, n, n.Child1(), n.Child0())
	},
}

var andOverConstantPredLeft = &Rule{
	Name:    "AndOverConstantPredLeft",
	Pattern: Match(plan.OpTypeAnd, Kind(plan.OpTypeConstantPredicate), Leaf()),
	Apply: func(ctx *Context, n *plan.Node) (*plan.Node, bool) {
		return logicalOverConstant(ctx, n, n.Child0(), n.Child1())
	},
}

var orOverConstantPredRight = &Rule{
	Name:    "OrOverConstantPredRight",
	Pattern: Match(plan.OpTypeOr, Leaf(), Kind(plan.OpTypeConstantPredicate)),
	Apply: func(ctx *Context, n *plan.Node) (*plan.Node, bool) {
		return logicalOverConstant(ctx, n, n.Child1(), n.Child0())
	},
}

var orOverConstantPredLeft = &Rule{
	Name:    "OrOverConstantPredLeft",
	Pattern: Match(plan.OpTypeOr, Kind(plan.OpTypeConstantPredicate), Leaf()),
	Apply: func(ctx *Context, n *plan.Node) (*plan.Node, bool) {
		return logicalOverConstant(ctx, n, n.Child0(), n.Child1())
	},
}

var notOverConstantPred = &Rule{
	Name:    "NotOverConstantPred",
	Pattern: Match(plan.OpTypeNot, Kind(plan.OpTypeConstantPredicate)),
	Apply: func(ctx *Context, n *plan.Node) (*plan.Node, bool) {
		return logicalOverConstant(ctx, n, n.Child0(), nil)
	},
}

var isNullOverConstant = &Rule{
	Name:    "IsNullOverConstant",
	Pattern: Match(plan.OpTypeIsNull, Leaf()),
	Apply: func(ctx *Context, n *plan.Node) (*plan.Node, bool) {
		if _, ok := literalValue(n.Child0()); !ok {
			return n, false
		}
		return ctx.plan.False(), true
	},
}

var isNullOverNullSentinel = &Rule{
	Name:    "IsNullOverNullSentinel",
	Pattern: Match(plan.OpTypeIsNull, Kind(plan.OpTypeNullSentinel)),
	Apply: func(ctx *Context, n *plan.Node) (*plan.Node, bool) {
		return ctx.plan.False(), true
	},
}

var isNullOverNull = &Rule{
	Name:    "IsNullOverNull",
	Pattern: Match(plan.OpTypeIsNull, Kind(plan.OpTypeNull)),
	Apply: func(ctx *Context, n *plan.Node) (*plan.Node, bool) {
		return ctx.plan.True(), true
	},
}

var nullCast = &Rule{
	Name:    "NullCast",
	Pattern: Match(plan.OpTypeCast, Kind(plan.OpTypeNull)),
	Apply: func(ctx *Context, n *plan.Node) (*plan.Node, bool) {
		return ctx.plan.Null(n.Op().ScalarType), true
	},
}

var isNullOverVarRef = &Rule{
	Name:    "IsNullOverVarRef",
	Pattern: Match(plan.OpTypeIsNull, Kind(plan.OpTypeVarRef)),
	Apply: func(ctx *Context, n *plan.Node) (*plan.Node, bool) {
		if !ctx.IsNonNullable(n.Child0().Op().VarRef.Var) {
			return n, false
		}
		return ctx.plan.False(), true
	},
}

var scalarRules = []*Rule{
	simplifyCase,
	flattenCase,
	likeOverConstants,
	equalsOverConstant,
	notEqualsOverConstant,
	lessOverConstant,
	greaterOverConstant,
	lessEqualOverConstant,
	greaterEqualOverConstant,
	andOverConstantPredRight,
	andOverConstantPredLeft,
	orOverConstantPredRight,
	orOverConstantPredLeft,
	notOverConstantPred,
	isNullOverConstant,
	isNullOverNullSentinel,
	isNullOverNull,
	nullCast,
	isNullOverVarRef,
}
