package cache

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrUnavailable marks a failure to talk to the backing store. It is
	// never returned for a plain miss.
	ErrUnavailable = errors.New("cache backend unavailable")
	// ErrPoolExhausted is returned when no pooled connection could be
	// checked out before the checkout timeout.
	ErrPoolExhausted = errors.New("cache connection pool exhausted")
	// ErrClosed is returned by operations on a closed backend or service.
	ErrClosed = errors.New("cache is closed")
	// ErrConstruction wraps the failure to build the configured backend.
	ErrConstruction = errors.New("cache backend construction failed")
	// ErrNilValue is returned when a nil value is written.
	ErrNilValue = errors.New("cache value is nil")
	// ErrInvalidDestination is returned when Get is given something other
	// than a non-nil pointer.
	ErrInvalidDestination = errors.New("cache destination must be a non-nil pointer")
)

// CheckValue rejects nil values, including typed nil pointers.
func CheckValue(value any) error {
	if isNil(value) {
		return ErrNilValue
	}
	return nil
}

// CheckDestination validates dest for Get and returns its pointed-to value.
func CheckDestination(dest any) (reflect.Value, error) {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return reflect.Value{}, fmt.Errorf("%w: got %T", ErrInvalidDestination, dest)
	}
	return rv.Elem(), nil
}

func isNil(value any) bool {
	if value == nil {
		return true
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// isEmpty reports whether a populate result should not be cached: nil of
// any nilable kind, or an empty string, slice, or map.
func isEmpty(value any) bool {
	if isNil(value) {
		return true
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	}
	return false
}
