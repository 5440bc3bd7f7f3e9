package intake

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// RootSection addresses top-level fields of a record.
const RootSection = "root"

// FieldPath addresses one leaf of a record: section, field and up to two more
// levels of nesting. Section "root" addresses a top-level field directly.
type FieldPath struct {
	Section   string `json:"section"`
	Field     string `json:"field"`
	NestedKey string `json:"nestedKey,omitempty"`
	SubKey    string `json:"subKey,omitempty"`
}

func (p FieldPath) String() string {
	parts := make([]string, 0, 4)
	for _, k := range []string{p.Section, p.Field, p.NestedKey, p.SubKey} {
		if k != "" {
			parts = append(parts, k)
		}
	}
	return strings.Join(parts, ".")
}

// keys resolves the path most-specific first.
func (p FieldPath) keys() ([]string, error) {
	if p.Field == "" {
		return nil, fmt.Errorf("%w: field is required", ErrUnknownField)
	}
	if p.Section == RootSection {
		return []string{p.Field}, nil
	}
	if p.Section == "" {
		return nil, fmt.Errorf("%w: section is required", ErrUnknownField)
	}
	switch {
	case p.SubKey != "" && p.NestedKey == "":
		return nil, fmt.Errorf("%w: subKey %q given without nestedKey", ErrUnknownField, p.SubKey)
	case p.SubKey != "":
		return []string{p.Section, p.Field, p.NestedKey, p.SubKey}, nil
	case p.NestedKey != "":
		return []string{p.Section, p.Field, p.NestedKey}, nil
	default:
		return []string{p.Section, p.Field}, nil
	}
}

// touchesDateOfBirth reports whether writing p may change the date of birth.
func (p FieldPath) touchesDateOfBirth() bool {
	if p.Section == RootSection {
		return p.Field == "personalInfo"
	}
	return p.Section == "personalInfo" && p.Field == "dateOfBirth"
}

// writesAge reports whether p targets the derived age directly.
func (p FieldPath) writesAge() bool {
	return p.Section == "personalInfo" && p.Field == "age"
}

type ageSyncer interface {
	syncAge(today time.Time)
}

// Update returns a copy of rec with the leaf at p replaced by value. Containers
// along the path are copied; every other subtree is shared with rec. Writing the
// date of birth recomputes the age in the same update. On error rec is returned
// unchanged.
func Update[R any](rec R, p FieldPath, value any, today time.Time) (R, error) {
	keys, err := p.keys()
	if err != nil {
		return rec, err
	}
	if p.writesAge() {
		return rec, fmt.Errorf("%w: personalInfo.age is derived from dateOfBirth", ErrUnknownField)
	}

	out := rec
	root := reflect.ValueOf(&out).Elem()
	if root.Kind() != reflect.Struct {
		return rec, fmt.Errorf("%w: %T is not a record", ErrUnknownField, rec)
	}

	leaf := root
	for i, key := range keys {
		if leaf, err = descend(leaf, key); err != nil {
			return rec, fmt.Errorf("%w: %s", err, strings.Join(keys[:i+1], "."))
		}
	}
	if err := assign(leaf, value); err != nil {
		return rec, fmt.Errorf("%w: %s", err, p)
	}

	if p.touchesDateOfBirth() {
		if s, ok := any(&out).(ageSyncer); ok {
			s.syncAge(today)
		}
	}
	return out, nil
}

// descend moves from a struct (or pointer to struct) to the field whose json
// name is key. Pointers are copied before being entered so the caller's value
// is never written through.
func descend(v reflect.Value, key string) (reflect.Value, error) {
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return reflect.Value{}, ErrUnknownField
		}
		cp := reflect.New(v.Type().Elem())
		cp.Elem().Set(v.Elem())
		v.Set(cp)
		v = cp.Elem()
	}
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, ErrUnknownField
	}
	f, ok := fieldByJSONName(v, key)
	if !ok {
		return reflect.Value{}, ErrUnknownField
	}
	return f, nil
}

func fieldByJSONName(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		if sf.Anonymous && sf.Type.Kind() == reflect.Struct {
			if f, ok := fieldByJSONName(v.Field(i), name); ok {
				return f, true
			}
			continue
		}
		if jsonName(sf) == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func jsonName(sf reflect.StructField) string {
	tag := sf.Tag.Get("json")
	if tag == "-" {
		return ""
	}
	if idx := strings.IndexByte(tag, ','); idx >= 0 {
		tag = tag[:idx]
	}
	if tag == "" {
		return sf.Name
	}
	return tag
}

// assign writes value into leaf. JSON input is decoded into the leaf type, nil
// resets the leaf to its zero value, anything else must be assignable or a
// same-kind conversion.
func assign(leaf reflect.Value, value any) error {
	if raw, ok := value.(json.RawMessage); ok {
		if len(bytes.TrimSpace(raw)) == 0 {
			return fmt.Errorf("%w: empty JSON value", ErrInvalidValue)
		}
		target := reflect.New(leaf.Type())
		if err := json.Unmarshal(raw, target.Interface()); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		leaf.Set(target.Elem())
		return nil
	}
	if value == nil {
		leaf.Set(reflect.Zero(leaf.Type()))
		return nil
	}

	rv := reflect.ValueOf(value)
	switch {
	case rv.Type().AssignableTo(leaf.Type()):
		leaf.Set(rv)
	case rv.Kind() == leaf.Kind() && rv.Type().ConvertibleTo(leaf.Type()):
		leaf.Set(rv.Convert(leaf.Type()))
	default:
		return fmt.Errorf("%w: cannot use %T as %s", ErrInvalidValue, value, leaf.Type())
	}
	return nil
}
