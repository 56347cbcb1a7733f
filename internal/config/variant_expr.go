package config

import (
	"fmt"
	"strings"
)

// evalVariantExpr implements the enumerated grammar from SPEC_FULL.md §6:
//
//	expr       := term ("+" term)*
//	term       := string-literal | env-ref
//	string-literal := `"` ... `"`
//	env-ref    := "env:" NAME
//
// This replaces the source tool's open `eval` of the variant expression
// (spec.md §9 Design Notes) with a closed grammar: no arithmetic, no
// function calls, no comparisons. An expression outside this grammar is
// an error returned through Config.ResolveVariant, never silently
// evaluated.
func evalVariantExpr(expr string, lookupEnv func(string) (string, bool)) (string, error) {
	var out strings.Builder
	for _, raw := range strings.Split(expr, "+") {
		term := strings.TrimSpace(raw)
		switch {
		case strings.HasPrefix(term, `"`) && strings.HasSuffix(term, `"`) && len(term) >= 2:
			out.WriteString(term[1 : len(term)-1])
		case strings.HasPrefix(term, "env:"):
			name := strings.TrimPrefix(term, "env:")
			if name == "" {
				return "", fmt.Errorf("empty environment variable name in term %q", term)
			}
			value, _ := lookupEnv(name)
			out.WriteString(value)
		default:
			return "", fmt.Errorf("unrecognized term %q: expected a %q-quoted literal or env:NAME", term, `"`)
		}
	}
	return out.String(), nil
}
