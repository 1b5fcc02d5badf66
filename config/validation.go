// Package config holds the field validators shared by the pipeline, the
// document index and the storage adapters.
package config

import (
	"fmt"
	"strings"

	errorskg "github.com/sweetpotato0/agentic-rag/errors"
)

// ValidationError describes one rejected field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validator collects field errors so a caller can report every problem at
// once.
type Validator struct {
	errors []ValidationError
}

// NewValidator creates an empty validator.
func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) add(field, msg string) *Validator {
	v.errors = append(v.errors, ValidationError{Field: field, Message: msg})
	return v
}

// RequireNonEmpty rejects a blank string.
func (v *Validator) RequireNonEmpty(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		return v.add(field, "value cannot be empty")
	}
	return v
}

// RequirePositive rejects values below 1.
func (v *Validator) RequirePositive(field string, value int) *Validator {
	if value <= 0 {
		return v.add(field, fmt.Sprintf("value must be positive, got %d", value))
	}
	return v
}

// RequireNonNegative rejects values below 0.
func (v *Validator) RequireNonNegative(field string, value int) *Validator {
	if value < 0 {
		return v.add(field, fmt.Sprintf("value must not be negative, got %d", value))
	}
	return v
}

// ValidateRange requires min <= value <= max.
func (v *Validator) ValidateRange(field string, value, min, max int) *Validator {
	if value < min || value > max {
		return v.add(field, fmt.Sprintf("value must be between %d and %d, got %d", min, max, value))
	}
	return v
}

// ValidateFloatRange requires min <= value <= max.
func (v *Validator) ValidateFloatRange(field string, value, min, max float64) *Validator {
	if value < min || value > max {
		return v.add(field, fmt.Sprintf("value must be between %.2f and %.2f, got %.2f", min, max, value))
	}
	return v
}

// ValidatePort requires a TCP port number.
func (v *Validator) ValidatePort(field string, port int) *Validator {
	return v.ValidateRange(field, port, 1, 65535)
}

// ValidateDBNumber requires a Redis logical database (0-15).
func (v *Validator) ValidateDBNumber(field string, db int) *Validator {
	return v.ValidateRange(field, db, 0, 15)
}

// ValidateOneOf requires value to be one of allowed.
func (v *Validator) ValidateOneOf(field string, value string, allowed ...string) *Validator {
	for _, a := range allowed {
		if a == value {
			return v
		}
	}
	return v.add(field, fmt.Sprintf("value must be one of %v, got %q", allowed, value))
}

// Errors returns the collected field errors.
func (v *Validator) Errors() []ValidationError {
	return v.errors
}

// Error returns nil when every check passed. Otherwise the error lists each
// field and wraps errors.ErrInvalidInput.
func (v *Validator) Error() error {
	if len(v.errors) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(v.errors))
	for _, e := range v.errors {
		msgs = append(msgs, e.Error())
	}
	return fmt.Errorf("configuration rejected (%s): %w", strings.Join(msgs, "; "), errorskg.ErrInvalidInput)
}

// ValidateAgenticConfig validates the reasoning loop bounds. Every cap must
// be finite and positive except maxRetries, where 0 means a single cycle.
func ValidateAgenticConfig(maxRetries, subQuestionCap, retrievalK, iterationCap int) error {
	return NewValidator().
		ValidateRange("maxRetries", maxRetries, 0, 10).
		ValidateRange("subQuestionCap", subQuestionCap, 1, 10).
		ValidateRange("retrievalK", retrievalK, 1, 100).
		ValidateRange("executorIterationCap", iterationCap, 1, 10).
		Error()
}

// ValidateIndexConfig validates chunking parameters of the document index.
func ValidateIndexConfig(chunkSize, chunkOverlap int) error {
	v := NewValidator()
	v.RequirePositive("chunkSize", chunkSize)
	v.RequireNonNegative("chunkOverlap", chunkOverlap)
	if chunkSize > 0 && chunkOverlap >= chunkSize {
		v.add("chunkOverlap", fmt.Sprintf("overlap %d must be smaller than chunk size %d", chunkOverlap, chunkSize))
	}
	return v.Error()
}

// ValidateRunnerConfig validates the exchange concurrency bound.
func ValidateRunnerConfig(maxConcurrency int) error {
	return NewValidator().RequirePositive("maxConcurrency", maxConcurrency).Error()
}

// ValidatePostgresConfig validates the transcript store's PostgreSQL settings.
func ValidatePostgresConfig(host string, port int, user string, password string, dbName string, sslMode string) error {
	return postgresFields(NewValidator(), host, port, user, password, dbName, sslMode).Error()
}

// ValidatePGVectorConfig validates the pgvector chunk store settings.
func ValidatePGVectorConfig(host string, port int, user string, password string, dbName string,
	sslMode string, dimension int, tableName string, indexType string) error {
	v := postgresFields(NewValidator(), host, port, user, password, dbName, sslMode)
	v.ValidateRange("dimension", dimension, 1, 65535)
	v.RequireNonEmpty("tableName", tableName)
	v.ValidateOneOf("indexType", indexType, "HNSW", "IVFFLAT")
	return v.Error()
}

func postgresFields(v *Validator, host string, port int, user, password, dbName, sslMode string) *Validator {
	return v.RequireNonEmpty("host", host).
		ValidatePort("port", port).
		RequireNonEmpty("user", user).
		RequireNonEmpty("password", password).
		RequireNonEmpty("dbName", dbName).
		ValidateOneOf("sslMode", sslMode, "disable", "require", "verify-ca", "verify-full")
}

// ValidateRedisConfig validates the transcript store's Redis settings.
func ValidateRedisConfig(addr string, db int, prefix string) error {
	return NewValidator().
		RequireNonEmpty("addr", addr).
		ValidateDBNumber("db", db).
		RequireNonEmpty("prefix", prefix).
		Error()
}

// ValidateMongoDBConfig validates the transcript store's MongoDB settings.
func ValidateMongoDBConfig(uri string, database string, collection string) error {
	return NewValidator().
		RequireNonEmpty("uri", uri).
		RequireNonEmpty("database", database).
		RequireNonEmpty("collection", collection).
		Error()
}
