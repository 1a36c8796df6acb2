package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

// Tool is a registered capability: a name, a description, a JSON schema
// for its arguments, and an execute operation. Implementations live
// outside this package.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) Outcome
}

// Outcome is the tagged result of one tool call. The two variants are
// Success and Failure; callers switch on the concrete type instead of
// probing fields.
type Outcome interface {
	Succeeded() bool
	outcome()
}

// Success carries a tool call's payload and provenance
type Success struct {
	Data       interface{} `json:"data"`
	SourceURLs []string    `json:"source_urls,omitempty"`
	Evidence   []Evidence  `json:"evidence,omitempty"`
}

func (Success) Succeeded() bool { return true }
func (Success) outcome()        {}

// Failure carries a captured tool call error
type Failure struct {
	Err string `json:"error"`
}

func (Failure) Succeeded() bool { return false }
func (Failure) outcome()        {}

// Fail wraps an error into a Failure outcome
func Fail(err error) Failure { return Failure{Err: err.Error()} }

func (s Success) MarshalJSON() ([]byte, error) {
	type alias Success
	return json.Marshal(struct {
		OK bool `json:"success"`
		alias
	}{OK: true, alias: alias(s)})
}

func (f Failure) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		OK  bool   `json:"success"`
		Err string `json:"error"`
	}{OK: false, Err: f.Err})
}

// ToolDescription is the slice of a tool's metadata handed to the
// planning and resolution prompts.
type ToolDescription struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Registry holds the tool set for one orchestration run. It is an
// explicit dependency of the resolver and executor so concurrent runs
// with different tool sets never interfere.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
}

// NewRegistry creates an empty tool registry
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool, compiling its parameter schema up front so a
// bad schema surfaces at startup rather than mid-run.
func (r *Registry) Register(t Tool) error {
	name := t.Name()
	if name == "" {
		return fmt.Errorf("tool has empty name")
	}
	raw, err := json.Marshal(t.Parameters())
	if err != nil {
		return fmt.Errorf("marshal parameters for tool %s: %w", name, err)
	}
	compiler := jsonschema.NewCompiler()
	resource := name + "_params.json"
	if err := compiler.AddResource(resource, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("add schema resource for tool %s: %w", name, err)
	}
	schema, err := compiler.Compile(resource)
	if err != nil {
		return fmt.Errorf("compile schema for tool %s: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.tools[name] = t
	r.schemas[name] = schema
	return nil
}

// Get returns the tool registered under name
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Describe returns metadata for every registered tool, sorted by name
// so prompts are stable across runs.
func (r *Registry) Describe() []ToolDescription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolDescription, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, ToolDescription{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ValidateArgs checks args against the tool's compiled parameter
// schema. Values must be JSON-shaped (the decoder's map/slice/float64
// forms), which holds for anything parsed out of a model response.
func (r *Registry) ValidateArgs(name string, args map[string]interface{}) error {
	r.mu.RLock()
	schema, ok := r.schemas[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown tool: %s", name)
	}
	normalized, err := normalizeJSON(args)
	if err != nil {
		return fmt.Errorf("normalize args for tool %s: %w", name, err)
	}
	if err := schema.Validate(normalized); err != nil {
		return fmt.Errorf("args for tool %s do not match schema: %w", name, err)
	}
	return nil
}

// normalizeJSON round-trips v through encoding/json so the validator
// sees canonical decoded types regardless of how the map was built.
func normalizeJSON(v interface{}) (interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
