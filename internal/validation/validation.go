// Package validation provides request field validation helpers.
package validation

import (
	"fmt"
	"time"

	"github.com/jalonhq/jalon/internal/types"
)

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Collector accumulates validation errors without failing on first.
type Collector struct {
	errors []ValidationError
}

// Add appends a validation error to the collector if non-nil.
func (c *Collector) Add(err *ValidationError) {
	if err != nil {
		c.errors = append(c.errors, *err)
	}
}

// HasErrors returns true if the collector has accumulated any errors.
func (c *Collector) HasErrors() bool {
	return len(c.errors) > 0
}

// Errors returns all accumulated validation errors.
func (c *Collector) Errors() []ValidationError {
	return c.errors
}

// ValidateRequired returns an error if the value is empty.
func ValidateRequired(field, value string) *ValidationError {
	if value == "" {
		return &ValidationError{Field: field, Message: "is required"}
	}
	return nil
}

// ValidateRole returns an error if the value is not a known role.
func ValidateRole(field string, value string) *ValidationError {
	switch types.Role(value) {
	case types.RoleAdmin, types.RoleDelivery, types.RoleSales, types.RoleFinance,
		types.RoleClientAdmin, types.RoleClientMember, types.RoleVendor:
		return nil
	default:
		return &ValidationError{Field: field, Message: fmt.Sprintf("unknown role %q", value)}
	}
}

// ValidateDateRange returns an error if end is not after start.
func ValidateDateRange(field string, start, end time.Time) *ValidationError {
	if !end.After(start) {
		return &ValidationError{Field: field, Message: "end must be after start"}
	}
	return nil
}

// ParseDate parses a date query parameter, accepting RFC 3339 timestamps and
// bare YYYY-MM-DD dates.
func ParseDate(field, value string) (time.Time, *ValidationError) {
	if value == "" {
		return time.Time{}, &ValidationError{Field: field, Message: "is required"}
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, &ValidationError{
		Field:   field,
		Message: "must be an RFC 3339 timestamp or YYYY-MM-DD date",
	}
}
