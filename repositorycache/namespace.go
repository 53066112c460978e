package repositorycache

import (
	"reflect"
	"strings"
	"unicode"
)

// namespaceSuffix is appended to the entity name to form the default namespace.
const namespaceSuffix = "Repository"

// NamespaceFor returns the default cache namespace for a repository of T,
// e.g. ToolRepository for Tool or *models.Tool. Package paths, pointers and
// generic punctuation are stripped so the namespace stays a plain identifier
// and never contains the key separator.
func NamespaceFor[T any]() string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Pointer || t.Kind() == reflect.Slice {
		t = t.Elem()
	}

	name := t.Name()
	if name == "" {
		name = t.String()
	}
	return identifierFromTypeName(name) + namespaceSuffix
}

// identifierFromTypeName turns a reflected type name such as
// Page[github.com/acme/models.Tool] into PageTool.
func identifierFromTypeName(name string) string {
	fields := strings.FieldsFunc(name, func(r rune) bool {
		return r == '[' || r == ']' || r == ',' || r == '*' || unicode.IsSpace(r)
	})

	var b strings.Builder
	b.Grow(len(name))
	for _, f := range fields {
		if i := strings.LastIndexAny(f, "./"); i >= 0 {
			f = f[i+1:]
		}
		upperNext := true
		for _, r := range f {
			switch {
			case unicode.IsLetter(r):
				if upperNext {
					r = unicode.ToUpper(r)
					upperNext = false
				}
				b.WriteRune(r)
			case unicode.IsDigit(r):
				b.WriteRune(r)
				upperNext = false
			default:
				upperNext = true
			}
		}
	}
	return b.String()
}
