package store

import (
	"encoding/json"
	"fmt"

	"github.com/NotDec/NotDec-sub000/internal/ir"
)

// marshalJSON converts v to canonical JSON TEXT for storage.
// Uses RFC 8785 canonical JSON for deterministic serialization.
func marshalJSON(what string, v any) (string, error) {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", what, err)
	}
	return string(data), nil
}

// marshalConstraints stores a nil constraint list as an empty array.
func marshalConstraints(cons []string) (string, error) {
	if cons == nil {
		cons = []string{}
	}
	return marshalJSON("constraints", cons)
}

func marshalPNIMap(m map[string]string) (string, error) {
	if m == nil {
		m = map[string]string{}
	}
	return marshalJSON("pni map", m)
}

func marshalDeclarations(decls []string) (string, error) {
	if decls == nil {
		decls = []string{}
	}
	return marshalJSON("declarations", decls)
}

func marshalDiagnostics(diags []ir.Diagnostic) (string, error) {
	if diags == nil {
		diags = []ir.Diagnostic{}
	}
	return marshalJSON("diagnostics", diags)
}

// unmarshalSummary parses the stored columns of a summary.
func unmarshalSummary(constraints, pniMap string) (*ir.Summary, error) {
	s := &ir.Summary{}
	if err := json.Unmarshal([]byte(constraints), &s.Constraints); err != nil {
		return nil, fmt.Errorf("unmarshal constraints: %w", err)
	}
	if pniMap != "" && pniMap != "{}" {
		if err := json.Unmarshal([]byte(pniMap), &s.PNIMap); err != nil {
			return nil, fmt.Errorf("unmarshal pni map: %w", err)
		}
	}
	return s, nil
}

func unmarshalDeclarations(data string) ([]string, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var decls []string
	if err := json.Unmarshal([]byte(data), &decls); err != nil {
		return nil, fmt.Errorf("unmarshal declarations: %w", err)
	}
	return decls, nil
}

func unmarshalDiagnostics(data string) ([]ir.Diagnostic, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var diags []ir.Diagnostic
	if err := json.Unmarshal([]byte(data), &diags); err != nil {
		return nil, fmt.Errorf("unmarshal diagnostics: %w", err)
	}
	return diags, nil
}
