package config

import "fmt"

// ValidationError names the offending field of a configuration value.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Invalid is shorthand for constructing a *ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ValidatePort checks that port is in 1..65535.
func ValidatePort(field string, port int) error {
	if port < 1 || port > 65535 {
		return Invalid(field, "must be between 1 and 65535")
	}
	return nil
}

// ValidatePositive checks that an integer setting is greater than zero.
func ValidatePositive(field string, n int) error {
	if n <= 0 {
		return Invalid(field, "must be greater than zero")
	}
	return nil
}

// ValidateFraction checks that f is in [0, 1).
func ValidateFraction(field string, f float64) error {
	if f < 0 || f >= 1 {
		return Invalid(field, "must be in [0, 1)")
	}
	return nil
}

// ValidateLogLevel checks if a log level is valid.
func ValidateLogLevel(level string) error {
	switch level {
	case "debug", "info", "warn", "warning", "error", "fatal":
		return nil
	default:
		return Invalid("logging.level", "must be one of: debug, info, warn, error, fatal")
	}
}

// Validate checks that the server port is usable.
func (c *ServerConfig) Validate() error {
	return ValidatePort("server.port", c.Port)
}

// Validate checks the fields needed to open a connection.
func (c *DatabaseConfig) Validate() error {
	if c.Host == "" {
		return Invalid("database.host", "is required")
	}
	if err := ValidatePort("database.port", c.Port); err != nil {
		return err
	}
	if c.User == "" {
		return Invalid("database.user", "is required")
	}
	if c.Database == "" {
		return Invalid("database.database", "is required")
	}
	return nil
}
