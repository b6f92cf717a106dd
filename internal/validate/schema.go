package validate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema is a compiled JSON schema for job configuration maps.
type Schema struct {
	raw  map[string]any
	once sync.Once
	s    *jsonschema.Schema
	err  error
}

// NewSchema wraps a schema document; it is compiled on first use.
func NewSchema(doc map[string]any) *Schema { return &Schema{raw: doc} }

func (s *Schema) compile() {
	b, err := json.Marshal(s.raw)
	if err != nil {
		s.err = fmt.Errorf("marshal schema: %w", err)
		return
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("config.json", bytes.NewReader(b)); err != nil {
		s.err = fmt.Errorf("add schema: %w", err)
		return
	}
	s.s, s.err = compiler.Compile("config.json")
	if s.err != nil {
		s.err = fmt.Errorf("compile schema: %w", s.err)
	}
}

// Check validates cfg against the schema. A nil cfg is checked as an empty
// object.
func (s *Schema) Check(cfg map[string]any) error {
	s.once.Do(s.compile)
	if s.err != nil {
		return s.err
	}
	if cfg == nil {
		cfg = map[string]any{}
	}
	// round-trip through JSON so typed Go values validate like decoded ones
	b, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	if err := s.s.Validate(v); err != nil {
		return fmt.Errorf("config does not match schema: %w", err)
	}
	return nil
}

// Document returns the raw schema document.
func (s *Schema) Document() map[string]any { return s.raw }
