package pomi

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agentauth/agentauth/internal/challenge"
)

// InjectionResult is the payload with canary prompts woven in, plus the
// canaries that were selected.
type InjectionResult struct {
	Payload  challenge.Payload
	Injected []Canary
}

// InjectOptions configures canary injection.
type InjectOptions struct {
	Exclude []string
}

// Injector weaves canary prompts into challenge instructions.
type Injector struct {
	catalog *Catalog
}

// NewInjector creates an injector drawing from the given catalog.
func NewInjector(catalog *Catalog) *Injector {
	return &Injector{catalog: catalog}
}

// Inject selects count canaries and appends their prompts to the payload
// instructions, grouped by injection method. The injected canary IDs are
// recorded under the "canary_ids" key of the payload context so clients can
// map their side answers back to prompts.
func (inj *Injector) Inject(payload challenge.Payload, count int, options *InjectOptions) (InjectionResult, error) {
	if count <= 0 {
		return InjectionResult{Payload: payload}, nil
	}

	var selectOpts *SelectOptions
	if options != nil && len(options.Exclude) > 0 {
		selectOpts = &SelectOptions{Exclude: options.Exclude}
	}

	selected := inj.catalog.Select(count, selectOpts)
	if len(selected) == 0 {
		return InjectionResult{Payload: payload}, nil
	}

	var prefix, sideTasks []Canary
	for _, c := range selected {
		if c.InjectionMethod == InjectionPrefix {
			prefix = append(prefix, c)
		} else {
			// Inline, suffix, and embedded canaries all land in the
			// side-task block after the main instructions.
			sideTasks = append(sideTasks, c)
		}
	}

	instructions := payload.Instructions

	if len(prefix) > 0 {
		lines := make([]string, len(prefix))
		for i, c := range prefix {
			lines[i] = fmt.Sprintf("- %s: %s", c.ID, c.Prompt)
		}
		instructions = fmt.Sprintf("Before starting, answer these briefly (include in canary_responses):\n%s\n\n%s", strings.Join(lines, "\n"), instructions)
	}

	if len(sideTasks) > 0 {
		lines := make([]string, len(sideTasks))
		for i, c := range sideTasks {
			lines[i] = fmt.Sprintf("- %s: %s", c.ID, c.Prompt)
		}
		instructions = fmt.Sprintf("%s\n\nAlso, complete these side tasks (include answers in canary_responses field):\n%s", instructions, strings.Join(lines, "\n"))
	}

	ids := make([]string, len(selected))
	for i, c := range selected {
		ids[i] = c.ID
	}
	ctx, err := contextWithCanaryIDs(payload.Context, ids)
	if err != nil {
		return InjectionResult{}, err
	}

	out := payload
	out.Instructions = instructions
	out.Context = ctx
	return InjectionResult{Payload: out, Injected: selected}, nil
}

func contextWithCanaryIDs(raw json.RawMessage, ids []string) (json.RawMessage, error) {
	ctx := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &ctx); err != nil {
			return nil, fmt.Errorf("decode payload context: %w", err)
		}
	}
	ctx["canary_ids"] = ids
	out, err := json.Marshal(ctx)
	if err != nil {
		return nil, fmt.Errorf("encode payload context: %w", err)
	}
	return out, nil
}
