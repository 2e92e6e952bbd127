package optimizer

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// RuleGroup selects the rules used by an invocation.
type RuleGroup int

const (
	RuleGroupAll RuleGroup = iota
	RuleGroupProject
	RuleGroupPostJoinElimination
	RuleGroupNullability
)

func (g RuleGroup) String() string {
	switch g {
	case RuleGroupAll:
		return "all"
	case RuleGroupProject:
		return "project"
	case RuleGroupPostJoinElimination:
		return "postjoin"
	case RuleGroupNullability:
		return "nullability"
	}
	return fmt.Sprintf("RuleGroup(%d)", int(g))
}

func ParseRuleGroup(name string) (RuleGroup, error) {
	switch strings.ToLower(name) {
	case "all":
		return RuleGroupAll, nil
	case "project":
		return RuleGroupProject, nil
	case "postjoin", "postjoinelimination":
		return RuleGroupPostJoinElimination, nil
	case "nullability":
		return RuleGroupNullability, nil
	}
	return 0, errors.Errorf("unknown rule group: %s", name)
}

func (g RuleGroup) rules() [][]*Rule {
	switch g {
	case RuleGroupAll:
		return [][]*Rule{applyRules, filterRules, projectRules, scalarRules, distinctRules}
	case RuleGroupProject:
		return [][]*Rule{projectRules}
	case RuleGroupPostJoinElimination:
		return [][]*Rule{projectRules, postJoinEliminationFilterRules, scalarRules}
	case RuleGroupNullability:
		return [][]*Rule{nullabilityRules}
	}
	panic(fmt.Sprintf("unexhaustive rule group match: %s", g))
}

var postJoinEliminationFilterRules = []*Rule{
	filterOverFilter,
	filterWithConstantPredicate,
	filterOverProject,
	filterOverCrossJoin,
	filterOverInnerJoin,
	filterOverLeftOuterJoin,
}

// nullabilityRules are the rules able to take advantage of newly proven non-nullable variables.
var nullabilityRules = []*Rule{
	isNullOverVarRef,
	andOverConstantPredRight,
	andOverConstantPredLeft,
	orOverConstantPredRight,
	orOverConstantPredLeft,
	notOverConstantPred,
	filterOverLeftOuterJoin,
	filterOverOuterApply,
	filterWithConstantPredicate,
}

// Rules after which outputs which are no longer referenced may be left behind.
var rulesRequiringProjectionPruning = map[string]bool{
	"OuterApplyOverProject":                           true,
	"OuterApplyOverProjectInternalConstantOverFilter": true,
	"OuterApplyOverProjectNullSentinelOverFilter":     true,
	"CrossApplyOverProject":                           true,
	"ProjectWithNoLocalDefinitions":                   true,
	"CrossApplyIntoScalarSubquery":                    true,
	"OuterApplyIntoScalarSubquery":                    true,
}

// Rules after which more variables may be known to be non-nullable.
var rulesRequiringNullabilityRules = map[string]bool{
	"FilterOverLeftOuterJoin": true,
}
