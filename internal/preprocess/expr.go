package preprocess

import (
	"fmt"
	"math/big"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"

	"git.home.luguber.info/inful/assetforge/internal/defines"
)

// Evaluator decides #if / #elif conditions. Conditions use the usual boolean operators over
// define names, e.g. `GENERIC && !CHROME` or `BUNDLE_VERSION == "4.0.1"`.
type Evaluator struct {
	ctx *hcl.EvalContext
}

// NewEvaluator exposes every define as a variable. Defines set to nil evaluate as false; names
// that are not defines fail evaluation, as do values with no scalar form (nested tables).
func NewEvaluator(d defines.Map) *Evaluator {
	vars := make(map[string]cty.Value, d.Len())
	for _, key := range d.Keys() {
		v, _ := d.Get(key)
		if cv, ok := toCty(v); ok {
			vars[key] = cv
		}
	}
	return &Evaluator{ctx: &hcl.EvalContext{Variables: vars}}
}

func toCty(v any) (cty.Value, bool) {
	switch t := v.(type) {
	case nil:
		return cty.False, true
	case bool:
		return cty.BoolVal(t), true
	case string:
		return cty.StringVal(t), true
	case int:
		return cty.NumberIntVal(int64(t)), true
	case int64:
		return cty.NumberIntVal(t), true
	case float64:
		return cty.NumberFloatVal(t), true
	default:
		return cty.NilVal, false
	}
}

// Eval parses and evaluates expr. Non-boolean results follow the usual truthiness: empty
// strings and zero are false.
func (e *Evaluator) Eval(expr string) (bool, error) {
	parsed, diags := hclsyntax.ParseExpression([]byte(expr), "condition", hcl.InitialPos)
	if diags.HasErrors() {
		return false, fmt.Errorf("parse %q: %s", expr, diags.Error())
	}
	val, diags := parsed.Value(e.ctx)
	if diags.HasErrors() {
		return false, fmt.Errorf("evaluate %q: %s", expr, diags.Error())
	}
	if val.IsNull() || !val.IsKnown() {
		return false, nil
	}
	switch val.Type() {
	case cty.Bool:
		return val.True(), nil
	case cty.String:
		return val.AsString() != "", nil
	case cty.Number:
		return val.AsBigFloat().Cmp(new(big.Float)) != 0, nil
	default:
		return false, fmt.Errorf("condition %q is not a boolean", expr)
	}
}
