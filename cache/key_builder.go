package cache

import (
	"bytes"
	"encoding"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = ":"

// hashedParamsPrefix marks a parameter segment replaced by its xxhash digest.
const hashedParamsPrefix = "xxh64:"

// cyclePrefix marks a value that refers back to one of its ancestors.
const cyclePrefix = "cycle:"

// defaultKeyBuilder implements KeyBuilder using reflection-based canonical
// JSON. Object-like parameters (maps and structs) are always emitted with
// their keys sorted by name, so the same logical parameters produce the same
// key regardless of construction order.
type defaultKeyBuilder struct {
	hashThreshold int
}

// NewDefaultKeyBuilder creates a new instance of the default key builder.
func NewDefaultKeyBuilder() KeyBuilder {
	return &defaultKeyBuilder{}
}

// NewHashingKeyBuilder creates a key builder that replaces the serialized
// parameter segment with its xxhash digest once it exceeds threshold bytes.
// A threshold <= 0 disables hashing.
func NewHashingKeyBuilder(threshold int) KeyBuilder {
	return &defaultKeyBuilder{hashThreshold: threshold}
}

// BuildKey returns method:discriminator:canonical(params).
func (b *defaultKeyBuilder) BuildKey(method, discriminator string, params ...any) string {
	serialized := CanonicalParams(params...)
	if b.hashThreshold > 0 && len(serialized) > b.hashThreshold {
		serialized = hashedParamsPrefix + strconv.FormatUint(xxhash.Sum64String(serialized), 16)
	}
	return strings.Join([]string{method, discriminator, serialized}, KeySeparator)
}

// CanonicalParams serializes params as a canonical JSON array.
func CanonicalParams(params ...any) string {
	values := make([]any, len(params))
	for i, p := range params {
		values[i] = canonicalize(reflect.ValueOf(p))
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(values); err != nil {
		// canonicalize only emits encodable values; keep keys usable anyway
		return fmt.Sprintf("unencodable:%v", params)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

var textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()

// canonicalizer converts values into a tree of nil, bool, numbers, strings,
// []any and map[string]any. encoding/json sorts map keys when encoding,
// which gives us the ordering guarantee for maps and structs alike.
//
// path holds the pointers, maps and slices being expanded on the current
// branch. A value reached again through itself is emitted as a cycle
// placeholder. Shared values that are not cyclic are expanded each time.
type canonicalizer struct {
	path map[visit]struct{}
}

type visit struct {
	ptr uintptr
	typ reflect.Type
	len int
}

func canonicalize(v reflect.Value) any {
	c := canonicalizer{path: make(map[visit]struct{})}
	return c.value(v)
}

func (c *canonicalizer) value(v reflect.Value) any {
	if !v.IsValid() {
		return nil
	}

	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil
		}
		if v.Kind() == reflect.Pointer && v.Type().Implements(textMarshalerType) {
			return marshalText(v)
		}
		if v.Kind() == reflect.Pointer {
			return c.enter(v, visit{ptr: v.Pointer(), typ: v.Type()}, func() any {
				return c.value(v.Elem())
			})
		}
		return c.value(v.Elem())
	}

	if v.Type().Implements(textMarshalerType) && v.CanInterface() {
		return marshalText(v)
	}

	switch v.Kind() {
	case reflect.Func:
		if v.IsNil() {
			return nil
		}
		// pointer identity is stable only within one process
		return fmt.Sprintf("func:%#x", v.Pointer())
	case reflect.Chan, reflect.UnsafePointer:
		if v.IsNil() {
			return nil
		}
		return fmt.Sprintf("chan:%#x", v.Pointer())
	case reflect.Bool:
		return v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint()
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return strconv.FormatFloat(f, 'g', -1, 64)
		}
		return f
	case reflect.Complex64, reflect.Complex128:
		return fmt.Sprintf("%v", v.Complex())
	case reflect.String:
		return v.String()
	case reflect.Slice:
		if v.IsNil() {
			return nil
		}
		return c.enter(v, visit{ptr: v.Pointer(), typ: v.Type(), len: v.Len()}, func() any {
			return c.list(v)
		})
	case reflect.Array:
		return c.list(v)
	case reflect.Map:
		if v.IsNil() {
			return nil
		}
		return c.enter(v, visit{ptr: v.Pointer(), typ: v.Type()}, func() any {
			return c.mapping(v)
		})
	case reflect.Struct:
		return c.structure(v)
	}

	return fmt.Sprintf("%v", v)
}

// enter expands v with fn unless v is already being expanded higher up the
// current branch.
func (c *canonicalizer) enter(v reflect.Value, key visit, fn func() any) any {
	if _, seen := c.path[key]; seen {
		return cyclePrefix + v.Type().String()
	}
	c.path[key] = struct{}{}
	defer delete(c.path, key)
	return fn()
}

func (c *canonicalizer) list(v reflect.Value) []any {
	out := make([]any, v.Len())
	for i := range out {
		out[i] = c.value(v.Index(i))
	}
	return out
}

func (c *canonicalizer) mapping(v reflect.Value) map[string]any {
	out := make(map[string]any, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		out[c.mapKey(iter.Key())] = c.value(iter.Value())
	}
	return out
}

func (c *canonicalizer) mapKey(k reflect.Value) string {
	if k.Kind() == reflect.String {
		return k.String()
	}
	switch key := c.value(k).(type) {
	case string:
		return key
	case nil:
		return "null"
	default:
		data, err := json.Marshal(key)
		if err != nil {
			return fmt.Sprintf("%v", key)
		}
		return string(data)
	}
}

// structure keeps exported fields, named by their json tag.
func (c *canonicalizer) structure(v reflect.Value) map[string]any {
	t := v.Type()
	out := make(map[string]any, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		name := field.Name
		if tag, ok := field.Tag.Lookup("json"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		out[name] = c.value(v.Field(i))
	}
	return out
}

func marshalText(v reflect.Value) any {
	m, ok := v.Interface().(encoding.TextMarshaler)
	if !ok {
		return nil
	}
	text, err := m.MarshalText()
	if err != nil {
		return fmt.Sprintf("%T", m)
	}
	return string(text)
}
