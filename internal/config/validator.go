package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "search.workers")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidHeuristics returns the list of valid evaluator names
func ValidHeuristics() []string {
	return []string{HeuristicDTG, HeuristicLandmarks, HeuristicIncrementalDTG}
}

// ValidTransports returns the list of valid transport names
func ValidTransports() []string {
	return []string{TransportChannel, TransportFile}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateSearch()...)
	errors = append(errors, c.validateHeuristic()...)
	errors = append(errors, c.validateComms()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validateSearch() []ValidationError {
	var errors []ValidationError

	if c.Search.Workers < 1 {
		errors = append(errors, ValidationError{
			Field:   "search.workers",
			Value:   c.Search.Workers,
			Message: "must be at least 1",
		})
	}
	if c.Search.MaxPlans < 0 {
		errors = append(errors, ValidationError{
			Field:   "search.max_plans",
			Value:   c.Search.MaxPlans,
			Message: "must be zero (unbounded) or positive",
		})
	}

	return errors
}

func (c *Config) validateHeuristic() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidHeuristics(), c.Heuristic.Name) {
		errors = append(errors, ValidationError{
			Field:   "heuristic.name",
			Value:   c.Heuristic.Name,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidHeuristics(), ", ")),
		})
	}
	if c.Heuristic.Penalty <= 0 {
		errors = append(errors, ValidationError{
			Field:   "heuristic.penalty",
			Value:   c.Heuristic.Penalty,
			Message: "must be positive",
		})
	}

	return errors
}

func (c *Config) validateComms() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidTransports(), c.Comms.Transport) {
		errors = append(errors, ValidationError{
			Field:   "comms.transport",
			Value:   c.Comms.Transport,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidTransports(), ", ")),
		})
	}
	if c.Comms.Transport == TransportFile && c.Comms.Dir == "" {
		errors = append(errors, ValidationError{
			Field:   "comms.dir",
			Value:   c.Comms.Dir,
			Message: "required by the file transport",
		})
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}
