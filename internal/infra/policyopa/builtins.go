package policyopa

import "github.com/open-policy-agent/opa/ast"

// Access policies decide on request metadata alone; anything that could
// reach the network or the filesystem is stripped from the capability set.
var allowedBuiltins = map[string]struct{}{
	"abs":            {},
	"concat":         {},
	"contains":       {},
	"count":          {},
	"eq":             {},
	"equal":          {},
	"endswith":       {},
	"format_int":     {},
	"json.marshal":   {},
	"json.unmarshal": {},
	"lower":          {},
	"max":            {},
	"min":            {},
	"neq":            {},
	"object.get":     {},
	"object.union":   {},
	"replace":        {},
	"sort":           {},
	"split":          {},
	"sprintf":        {},
	"startswith":     {},
	"substring":      {},
	"sum":            {},
	"trim":           {},
	"trim_left":      {},
	"trim_right":     {},
	"upper":          {},
}

func filterBuiltins(builtins []*ast.Builtin) []*ast.Builtin {
	allowed := make([]*ast.Builtin, 0, len(builtins))
	for _, builtin := range builtins {
		if _, ok := allowedBuiltins[builtin.Name]; !ok {
			continue
		}
		allowed = append(allowed, builtin)
	}
	return allowed
}
