package config

import (
	"reflect"
	"strings"

	"github.com/pkg/errors"
)

var ErrNotFound = errors.New("field not found")

type Option func(options *options)

type options struct {
	withDefault  bool
	defaultValue interface{}
}

func getOptions(opts ...Option) *options {
	defaultOptions := &options{}
	for _, opt := range opts {
		opt(defaultOptions)
	}
	return defaultOptions
}

func WithDefault(value interface{}) Option {
	return func(options *options) {
		options.withDefault = true
		options.defaultValue = value
	}
}

// GetInterface gets the given, potentially nested, field irrespective of its type.
// Dots in the field name descend into submaps.
func GetInterface(config map[string]interface{}, field string, opts ...Option) (interface{}, error) {
	options := getOptions(opts...)
	head, rest, nested := strings.Cut(field, ".")
	element, ok := config[head]
	if !ok {
		if options.withDefault {
			return options.defaultValue, nil
		}
		return nil, ErrNotFound
	}
	if !nested {
		return element, nil
	}

	submap, ok := element.(map[string]interface{})
	if !ok {
		return nil, errors.Errorf("%v should be a map, got: %v", head, reflect.TypeOf(element))
	}
	out, err := GetInterface(submap, rest, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't get %v", rest)
	}
	return out, nil
}

// getTyped looks up the field and asserts its type. Missing fields yield the default, if any.
func getTyped[T any](config map[string]interface{}, field string, opts ...Option) (T, error) {
	var zero T
	options := getOptions(opts...)
	out, err := GetInterface(config, field)
	if err != nil {
		if options.withDefault && errors.Cause(err) == ErrNotFound {
			return options.defaultValue.(T), nil
		}
		return zero, errors.Wrapf(err, "couldn't get %v", field)
	}

	typed, ok := out.(T)
	if !ok {
		return zero, errors.Errorf("expected %v, got %v", reflect.TypeOf(zero), reflect.TypeOf(out))
	}
	return typed, nil
}

func GetMap(config map[string]interface{}, field string, opts ...Option) (map[string]interface{}, error) {
	return getTyped[map[string]interface{}](config, field, opts...)
}

func GetString(config map[string]interface{}, field string, opts ...Option) (string, error) {
	return getTyped[string](config, field, opts...)
}

func GetInt(config map[string]interface{}, field string, opts ...Option) (int, error) {
	return getTyped[int](config, field, opts...)
}

func GetBool(config map[string]interface{}, field string, opts ...Option) (bool, error) {
	return getTyped[bool](config, field, opts...)
}

// GetStringList gets a list whose every element is a string.
func GetStringList(config map[string]interface{}, field string, opts ...Option) ([]string, error) {
	options := getOptions(opts...)
	out, err := getTyped[[]interface{}](config, field)
	if err != nil {
		if options.withDefault && errors.Cause(err) == ErrNotFound {
			return options.defaultValue.([]string), nil
		}
		return nil, err
	}

	outStrings := make([]string, len(out))
	for i := range out {
		outString, ok := out[i].(string)
		if !ok {
			return nil, errors.Errorf("expected string slice, got %v at index %v", reflect.TypeOf(out[i]), i)
		}
		outStrings[i] = outString
	}
	return outStrings, nil
}
