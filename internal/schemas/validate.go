// Package schemas provides JSON Schema validation for externally supplied documents.
package schemas

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed job_feed.schema.json
var jobFeedSchema string

// JobFeedSchema returns the embedded schema for ingestion feed records.
func JobFeedSchema() string {
	return jobFeedSchema
}

// ValidationError represents a schema validation error with field paths
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation error at a specific field
type FieldError struct {
	Field   string
	Message string
}

// SchemaLoadError represents errors loading or parsing the schema itself
type SchemaLoadError struct {
	Path    string
	Message string
	Cause   error
}

func (e *SchemaLoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to load schema %s: %s: %v", e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to load schema %s: %s", e.Path, e.Message)
}

func (e *SchemaLoadError) Unwrap() error {
	return e.Cause
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("validation failed:\n")
	for i, err := range ve.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	return sb.String()
}

var (
	feedSchemaOnce sync.Once
	feedSchema     *gojsonschema.Schema
	feedSchemaErr  error
)

// ValidateFeedRecord validates one JSON feed record against the embedded job feed schema.
func ValidateFeedRecord(record []byte) error {
	feedSchemaOnce.Do(func() {
		feedSchema, feedSchemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(jobFeedSchema))
	})
	if feedSchemaErr != nil {
		return &SchemaLoadError{
			Path:    "job_feed.schema.json",
			Message: "embedded schema is invalid",
			Cause:   feedSchemaErr,
		}
	}

	result, err := feedSchema.Validate(gojsonschema.NewBytesLoader(record))
	if err != nil {
		return fmt.Errorf("failed to read feed record: %w", err)
	}
	return resultError(result)
}

// resultError converts a failed result into a *ValidationError, or nil when valid.
func resultError(result *gojsonschema.Result) error {
	if result.Valid() {
		return nil
	}

	validationErr := &ValidationError{
		Errors: make([]FieldError, 0, len(result.Errors())),
	}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		validationErr.Errors = append(validationErr.Errors, FieldError{
			Field:   field,
			Message: desc.Description(),
		})
	}
	return validationErr
}
