package images

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownField is returned when a name does not map to a configured field.
	ErrUnknownField = errors.New("images: unknown field")

	// ErrInvalidVariant is returned when only one of width/height is given,
	// or either is negative.
	ErrInvalidVariant = errors.New("images: invalid variant")

	// ErrInvalidFileName is returned by ParseFileName for names it did not produce.
	ErrInvalidFileName = errors.New("images: invalid file name")

	// ErrInvalidKey is returned for primary keys that cannot name exactly one
	// directory below the root.
	ErrInvalidKey = errors.New("images: invalid record key")
)

// ConfigError reports an invalid behavior or field configuration.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("images: config: field %q: %s", e.Field, e.Msg)
	}
	return fmt.Sprintf("images: config: %s", e.Msg)
}

// StoreError is a filesystem failure. It is never retried.
type StoreError struct {
	Op   string
	Path string
	Err  error
}

func (e *StoreError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("images: %s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("images: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// DecodeError means a source image could not be read as an image.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("images: decode %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("images: decode: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
