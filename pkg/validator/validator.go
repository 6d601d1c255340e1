package validator

import (
	"net"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// SplitEndpoints splits a delimiter-separated endpoint list on ',' or '/'
// and drops blank items.
func SplitEndpoints(list string) []string {
	fields := strings.FieldsFunc(list, func(r rune) bool { return r == ',' || r == '/' })
	endpoints := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			endpoints = append(endpoints, f)
		}
	}
	return endpoints
}

// isEndpointList checks that every item of the list is a host:port pair.
func isEndpointList(fl validator.FieldLevel) bool {
	endpoints := SplitEndpoints(fl.Field().String())
	if len(endpoints) == 0 {
		return false
	}
	for _, ep := range endpoints {
		host, port, err := net.SplitHostPort(ep)
		if err != nil || host == "" {
			return false
		}
		if n, err := strconv.Atoi(port); err != nil || n <= 0 || n > 65535 {
			return false
		}
	}
	return true
}

// RegisterCustomValidators registers custom validation functions with the validator.
func RegisterCustomValidators(validate *validator.Validate) error {
	return validate.RegisterValidation("endpoints", isEndpointList)
}
