package runner

import (
	"errors"
	"fmt"
	"os"
	"reflect"
)

var stringMapType = reflect.TypeFor[map[string]string]()

// ExpandTemplates expands ${VAR} references in place in the struct (or slice
// of structs) in points to.
//
// string, *string and []string fields are expanded only when tagged
// `template` (or `template:""`); `template:"-"` opts out. map[string]string
// values are always expanded. Nested structs, *struct, []struct and []*struct
// are walked whatever their tag. nil pointers, maps and slices are left as-is
// and unexported fields are skipped.
func ExpandTemplates[T any](in *T, variables map[string]string) error {
	if in == nil {
		return nil
	}
	v := reflect.ValueOf(in).Elem()
	switch v.Kind() {
	case reflect.Struct, reflect.Slice:
		return expander(variables).walk(v, true)
	default:
		return fmt.Errorf("ExpandTemplates expects *struct or *[]struct; got *%s", v.Type())
	}
}

type expander map[string]string

// walk expands v in place. tagged reports whether the field holding v opted
// into string expansion.
func (e expander) walk(v reflect.Value, tagged bool) error {
	switch v.Kind() {
	case reflect.String:
		if !tagged {
			return nil
		}
		expanded, err := Expand(v.String(), e)
		if err != nil {
			return err
		}
		v.SetString(expanded)

	case reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		switch v.Elem().Kind() {
		case reflect.String:
			if !tagged {
				return nil
			}
			expanded, err := Expand(v.Elem().String(), e)
			if err != nil {
				return err
			}
			// the pointee may be shared with the caller, so swap the pointer
			ptr := reflect.New(v.Elem().Type())
			ptr.Elem().SetString(expanded)
			v.Set(ptr)
		case reflect.Struct:
			return e.walk(v.Elem(), tagged)
		}

	case reflect.Map:
		if v.IsNil() || !v.Type().ConvertibleTo(stringMapType) {
			return nil
		}
		expanded, err := ExpandMap(v.Convert(stringMapType).Interface().(map[string]string), e)
		if err != nil {
			return err
		}
		v.Set(reflect.ValueOf(expanded).Convert(v.Type()))

	case reflect.Slice:
		for i := range v.Len() {
			if err := e.walk(v.Index(i), tagged); err != nil {
				return err
			}
		}

	case reflect.Struct:
		typ := v.Type()
		for i := range typ.NumField() {
			sf := typ.Field(i)
			if !sf.IsExported() {
				continue
			}
			tag, ok := sf.Tag.Lookup("template")
			if err := e.walk(v.Field(i), ok && tag != "-"); err != nil {
				return fmt.Errorf("%s: %w", sf.Name, err)
			}
		}
	}
	return nil
}

// Expand replaces ${VAR} references in the input string using the provided variables map.
// Returns an error if any referenced variable is not in the variables map.
func Expand(value string, variables map[string]string) (string, error) {
	var errs error

	result := os.Expand(value, func(key string) string {
		if val, ok := variables[key]; ok {
			return val
		}
		errs = errors.Join(errs, fmt.Errorf("environment variable %q is not in the allowed list", key))
		return ""
	})

	if errs != nil {
		return "", errs
	}

	return result, nil
}

// ExpandMap expands all values in a map[string]string.
// Returns an error if any value fails to expand.
func ExpandMap(values map[string]string, variables map[string]string) (map[string]string, error) {
	if values == nil {
		return nil, nil
	}

	result := make(map[string]string, len(values))
	var errs error

	for k, v := range values {
		expanded, err := Expand(v, variables)
		if err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		result[k] = expanded
	}

	if errs != nil {
		return nil, errs
	}

	return result, nil
}
