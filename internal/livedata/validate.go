package livedata

import (
	"fmt"

	"github.com/expr-lang/expr"
)

// modelVar is the name the validation expression sees the live document as.
const modelVar = "model"

// Validate compiles and runs a boolean expression against the live document.
// The document binds as `model`. A compile or run error reports as a failed
// validation with the cause; callers treat both the same as `false`.
func Validate(expression string, value Value) (bool, error) {
	env := map[string]any{modelVar: value.Raw()}

	program, err := expr.Compile(expression, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("compile validation: %w", err)
	}

	out, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("run validation: %w", err)
	}

	ok, isBool := out.(bool)
	if !isBool {
		return false, fmt.Errorf("validation returned %T, want bool", out)
	}
	return ok, nil
}
