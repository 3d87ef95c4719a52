// Package typesys is the default type-system port backing the extension
// registry: type ids are dotted identifiers, schemas are JSON Schema
// documents compiled with santhosh-tekuri/jsonschema, and subtype
// relations form a simple single-inheritance chain.
package typesys

import (
	"bytes"
	"encoding/json"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/teranos/mosaic/errors"
	"github.com/teranos/mosaic/extension"
)

// typeIDPattern accepts dotted identifiers like "ui.dashboard" or
// "action.widget.refresh". Segments carry letters, digits, '_' and '-'.
var typeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+(\.[A-Za-z0-9_-]+)*$`)

// System is an in-memory extension.TypeSystemPort.
type System struct {
	mu       sync.RWMutex
	raw      map[string]json.RawMessage
	compiled map[string]*jsonschema.Schema
	bases    map[string]string
}

// New creates an empty type system.
func New() *System {
	return &System{
		raw:      make(map[string]json.RawMessage),
		compiled: make(map[string]*jsonschema.Schema),
		bases:    make(map[string]string),
	}
}

// IsValidTypeID implements extension.TypeSystemPort
func (s *System) IsValidTypeID(id string) bool {
	return typeIDPattern.MatchString(id)
}

// Register implements extension.TypeSystemPort. Registering the same id
// again replaces its schema and base; entities without a schema are
// recorded as unconstrained.
func (s *System) Register(entity extension.TypeEntity) error {
	if !s.IsValidTypeID(entity.ID) {
		return errors.Newf("Invalid type ID %q", entity.ID)
	}
	if entity.BaseID != "" && !s.IsValidTypeID(entity.BaseID) {
		return errors.Newf("Invalid type ID %q as base of %q", entity.BaseID, entity.ID)
	}

	var compiled *jsonschema.Schema
	if len(entity.Schema) > 0 {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(entity.Schema))
		if err != nil {
			return errors.Wrapf(err, "invalid schema document for type %q", entity.ID)
		}
		compiler := jsonschema.NewCompiler()
		url := schemaURL(entity.ID)
		if err := compiler.AddResource(url, doc); err != nil {
			return errors.Wrapf(err, "failed to add schema resource for type %q", entity.ID)
		}
		compiled, err = compiler.Compile(url)
		if err != nil {
			return errors.Wrapf(err, "failed to compile schema for type %q", entity.ID)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw[entity.ID] = entity.Schema
	if compiled != nil {
		s.compiled[entity.ID] = compiled
	} else {
		delete(s.compiled, entity.ID)
	}
	if entity.BaseID != "" {
		s.bases[entity.ID] = entity.BaseID
	} else {
		delete(s.bases, entity.ID)
	}
	return nil
}

// ValidateInstance implements extension.TypeSystemPort. Types without a
// schema accept every instance.
func (s *System) ValidateInstance(id string, instance interface{}) []extension.FieldError {
	s.mu.RLock()
	schema := s.compiled[id]
	s.mu.RUnlock()
	if schema == nil {
		return nil
	}

	// Round-trip through JSON so structs and maps validate identically
	data, err := json.Marshal(instance)
	if err != nil {
		return []extension.FieldError{{Message: err.Error()}}
	}
	value, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return []extension.FieldError{{Message: err.Error()}}
	}

	if err := schema.Validate(value); err != nil {
		var vErr *jsonschema.ValidationError
		if errors.As(err, &vErr) {
			return flatten(vErr)
		}
		return []extension.FieldError{{Message: err.Error()}}
	}
	return nil
}

// IsTypeOf implements extension.TypeSystemPort, walking the base chain.
func (s *System) IsTypeOf(id, baseID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool)
	for cur := id; cur != "" && !seen[cur]; cur = s.bases[cur] {
		if cur == baseID {
			return true
		}
		seen[cur] = true
	}
	return false
}

// Schema implements extension.TypeSystemPort
func (s *System) Schema(id string) (json.RawMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.raw[id]
	return raw, ok
}

// Query implements extension.TypeSystemPort. A trailing '*' matches by
// prefix, anything else matches ids containing the pattern. Results are
// sorted; limit <= 0 returns all matches.
func (s *System) Query(pattern string, limit int) []string {
	s.mu.RLock()
	var out []string
	for id := range s.raw {
		if matchPattern(id, pattern) {
			out = append(out, id)
		}
	}
	s.mu.RUnlock()

	sort.Strings(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func matchPattern(id, pattern string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(id, strings.TrimSuffix(pattern, "*"))
	}
	return strings.Contains(id, pattern)
}

func schemaURL(id string) string {
	return "mosaic:///" + strings.ReplaceAll(id, ".", "/") + ".json"
}

var errPrinter = message.NewPrinter(language.English)

// flatten collects the leaf causes of a validation error into per-field
// errors.
func flatten(vErr *jsonschema.ValidationError) []extension.FieldError {
	if len(vErr.Causes) == 0 {
		return []extension.FieldError{{
			Field:   strings.Join(vErr.InstanceLocation, "."),
			Message: vErr.ErrorKind.LocalizedString(errPrinter),
		}}
	}
	var out []extension.FieldError
	for _, cause := range vErr.Causes {
		out = append(out, flatten(cause)...)
	}
	return out
}

var _ extension.TypeSystemPort = (*System)(nil)
