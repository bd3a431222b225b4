// Package policyopa evaluates optional Rego access policies. A deployment
// can restrict business access beyond the built-in permission checks by
// shipping a bundle; without one the evaluator runs standalone.
package policyopa

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"

	"github.com/get-hunter/hero365-app-sub007/internal/domain"
)

const defaultQuery = "data.hero365.access.result"

type Engine struct {
	query      rego.PreparedEvalQuery
	bundleHash string
	bundleID   string
}

func NewEngineFromBundlePath(ctx context.Context, bundlePath string, bundleID string) (*Engine, error) {
	bundleHash, err := computeBundleHash(bundlePath)
	if err != nil {
		return nil, err
	}

	capabilities := ast.CapabilitiesForThisVersion()
	capabilities.Builtins = filterBuiltins(capabilities.Builtins)
	compiler := ast.NewCompiler().WithCapabilities(capabilities)

	r := rego.New(
		rego.Query(defaultQuery),
		rego.Compiler(compiler),
		rego.StrictBuiltinErrors(true),
		rego.Load([]string{bundlePath}, nil),
	)
	prepared, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, err
	}

	return &Engine{
		query:      prepared,
		bundleHash: bundleHash,
		bundleID:   bundleID,
	}, nil
}

func (e *Engine) BundleHash() string {
	return e.bundleHash
}

func (e *Engine) Evaluate(ctx context.Context, input domain.AccessPolicyInput) (domain.AccessPolicyEvaluation, error) {
	if e == nil {
		return domain.AccessPolicyEvaluation{}, errors.New("policy engine is nil")
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return domain.AccessPolicyEvaluation{}, err
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return domain.AccessPolicyEvaluation{}, errors.New("empty policy result")
	}
	raw := results[0].Expressions[0].Value
	result, err := decodePolicyResult(raw)
	if err != nil {
		return domain.AccessPolicyEvaluation{}, err
	}
	normalizePolicyResult(&result)
	return domain.AccessPolicyEvaluation{
		BundleID:   e.bundleID,
		BundleHash: e.bundleHash,
		Result:     result,
	}, nil
}

func decodePolicyResult(value any) (domain.AccessPolicyResult, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return domain.AccessPolicyResult{}, err
	}
	var result domain.AccessPolicyResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return domain.AccessPolicyResult{}, err
	}
	return result, nil
}

func normalizePolicyResult(result *domain.AccessPolicyResult) {
	if result == nil {
		return
	}
	sort.Slice(result.Deny, func(i, j int) bool {
		if result.Deny[i].Code == result.Deny[j].Code {
			return result.Deny[i].Message < result.Deny[j].Message
		}
		return result.Deny[i].Code < result.Deny[j].Code
	})
}

// computeBundleHash digests every .rego and .json file in the bundle so
// deployments can tell which policy produced a decision.
func computeBundleHash(bundlePath string) (string, error) {
	fsys := os.DirFS(bundlePath)
	var paths []string
	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".rego") || strings.HasSuffix(path, ".json") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	sort.Strings(paths)

	digest := sha256.New()
	for _, path := range paths {
		content, err := fs.ReadFile(fsys, path)
		if err != nil {
			return "", err
		}
		digest.Write([]byte(path))
		digest.Write([]byte{0})
		digest.Write(content)
		digest.Write([]byte{0})
	}
	return hex.EncodeToString(digest.Sum(nil)), nil
}
