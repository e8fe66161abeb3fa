// Package packload reads a compiled policy pack artifact from disk (JSON,
// following the same encoding/json-on-a-plain-struct convention pkg/config
// uses for LoadConfig) and hands it to internal/registry. A pack is the
// kernel's only source of policies, role bindings, and contracts — there
// is no code path that constructs one by hand at runtime (spec.md §6
// "Compiled configuration consumption rules").
package packload

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/acctkernel/ledger/domain/guard"
	"github.com/acctkernel/ledger/domain/policy"
)

// Load reads and validates the pack at path. Every guard expression and
// where-predicate across every policy is re-validated here even though the
// pack was compiled elsewhere — the kernel never trusts a compiled
// artifact's provenance over its own closed-grammar check (spec.md §9).
func Load(path string) (policy.Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return policy.Pack{}, fmt.Errorf("packload: read %s: %w", path, err)
	}

	var pack policy.Pack
	if err := json.Unmarshal(data, &pack); err != nil {
		return policy.Pack{}, fmt.Errorf("packload: parse %s: %w", path, err)
	}

	if err := validate(pack); err != nil {
		return policy.Pack{}, fmt.Errorf("packload: %s: %w", path, err)
	}
	return pack, nil
}

func validate(pack policy.Pack) error {
	for eventType, policies := range pack.PoliciesByEventType {
		for _, p := range policies {
			for _, pred := range p.WherePredicates {
				if err := guard.Validate(pred); err != nil {
					return fmt.Errorf("policy %s/%s where-predicate: %w", eventType, p.Name, err)
				}
			}
			for _, g := range p.Guards {
				if err := guard.Validate(g.Expression); err != nil {
					return fmt.Errorf("policy %s/%s guard %s: %w", eventType, p.Name, g.ReasonCode, err)
				}
			}
		}
	}
	return nil
}
