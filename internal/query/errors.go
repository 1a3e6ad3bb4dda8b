package query

import (
	"errors"
	"fmt"
)

// ErrAlreadyBound is returned when an entry point is called on a controller
// already bound to another one. Use one controller per kind and pass.
var ErrAlreadyBound = errors.New("controller already bound to another query kind")

// ConfigError reports an entity declaration that cannot be run.
type ConfigError struct {
	Entity string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("entity %q: %s", e.Entity, e.Reason)
}

// QueryError is a fatal, non-retriable failure to open a cursor.
type QueryError struct {
	Query string
	Kind  Kind
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s query failed '%s': %v", e.Kind, e.Query, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}
