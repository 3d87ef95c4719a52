package extension

import (
	"fmt"
	"strings"
)

// DomainValidationError reports a domain that failed schema validation,
// carrying the type port's structured field errors.
type DomainValidationError struct {
	DomainID string
	Fields   []FieldError
}

// Error implements error
func (e *DomainValidationError) Error() string {
	return fmt.Sprintf("domain %q failed schema validation: %s", e.DomainID, joinFieldErrors(e.Fields))
}

// ExtensionValidationError reports an extension that failed schema
// validation, carrying the type port's structured field errors.
type ExtensionValidationError struct {
	ExtensionID string
	Fields      []FieldError
}

// Error implements error
func (e *ExtensionValidationError) Error() string {
	return fmt.Sprintf("extension %q failed schema validation: %s", e.ExtensionID, joinFieldErrors(e.Fields))
}

// ActionValidationError reports an action instance that failed schema
// validation before any handler was invoked.
type ActionValidationError struct {
	ActionType string
	Fields     []FieldError
}

// Error implements error
func (e *ActionValidationError) Error() string {
	return fmt.Sprintf("action %q failed schema validation: %s", e.ActionType, joinFieldErrors(e.Fields))
}

// ContractValidationError reports a mismatch between an entry's contract
// and its hosting domain's declarations.
type ContractValidationError struct {
	ExtensionID string
	DomainID    string
	EntryID     string

	// MissingProperties are required entry properties the domain does not share
	MissingProperties []string

	// UnsupportedSends are entry send-actions the domain does not allow
	UnsupportedSends []string

	// UnsupportedReceives are entry receive-actions the domain never emits
	UnsupportedReceives []string
}

// Error implements error
func (e *ContractValidationError) Error() string {
	var parts []string
	if len(e.MissingProperties) > 0 {
		parts = append(parts, fmt.Sprintf("required properties not shared by domain: %s", strings.Join(e.MissingProperties, ", ")))
	}
	if len(e.UnsupportedSends) > 0 {
		parts = append(parts, fmt.Sprintf("send actions not accepted by domain: %s", strings.Join(e.UnsupportedSends, ", ")))
	}
	if len(e.UnsupportedReceives) > 0 {
		parts = append(parts, fmt.Sprintf("receive actions not emitted by domain: %s", strings.Join(e.UnsupportedReceives, ", ")))
	}
	return fmt.Sprintf("extension %q (entry %q) violates contract of domain %q: %s",
		e.ExtensionID, e.EntryID, e.DomainID, strings.Join(parts, "; "))
}

// ExtensionTypeError reports an extension whose id does not satisfy the
// domain's required-extension-subtype constraint.
type ExtensionTypeError struct {
	ExtensionID  string
	DomainID     string
	RequiredType string
}

// Error implements error
func (e *ExtensionTypeError) Error() string {
	return fmt.Sprintf("extension %q is not a subtype of %q required by domain %q",
		e.ExtensionID, e.RequiredType, e.DomainID)
}

// UnsupportedLifecycleStageError reports a hook referencing a stage the
// entity's domain does not declare.
type UnsupportedLifecycleStageError struct {
	EntityID  string
	Stage     string
	Supported []string
}

// Error implements error
func (e *UnsupportedLifecycleStageError) Error() string {
	return fmt.Sprintf("entity %q declares hook for unsupported lifecycle stage %q (supported: %s)",
		e.EntityID, e.Stage, strings.Join(e.Supported, ", "))
}

func joinFieldErrors(fields []FieldError) string {
	if len(fields) == 0 {
		return "invalid"
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if f.Field == "" {
			parts = append(parts, f.Message)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return strings.Join(parts, "; ")
}
