// Package template renders `<name>` placeholder strings against an ordered
// list of substitution providers.
//
// Rendering is a single deterministic pass: each placeholder is offered to
// the providers in priority order and the first provider that recognizes the
// name wins. Providers decide what an unresolved name means — variable
// providers decline so the placeholder survives for a later pass, while the
// metadata provider claims every dotted name and substitutes an empty string
// when the field cannot be resolved.
package template

import (
	"regexp"
	"strings"
	"time"
)

var placeholderPattern = regexp.MustCompile(`<([^<>]+)>`)

// Provider resolves a placeholder name to its substitution value. The second
// return value reports whether the provider recognizes the name at all.
type Provider interface {
	Lookup(name string) (string, bool)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(name string) (string, bool)

func (f ProviderFunc) Lookup(name string) (string, bool) { return f(name) }

// Render substitutes every `<name>` placeholder in tmpl using the first
// provider that recognizes the name. Unrecognized placeholders are left
// intact so a later pass with more providers can still resolve them.
func Render(tmpl string, providers ...Provider) string {
	return placeholderPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		name := match[1 : len(match)-1]
		for _, p := range providers {
			if p == nil {
				continue
			}
			if value, ok := p.Lookup(name); ok {
				return value
			}
		}
		return match
	})
}

// Vars builds a provider over a name→value map.
func Vars(vars map[string]string) Provider {
	return ProviderFunc(func(name string) (string, bool) {
		value, ok := vars[name]
		return value, ok
	})
}

// Literal builds a provider that resolves exactly one name.
func Literal(name, value string) Provider {
	return ProviderFunc(func(candidate string) (string, bool) {
		if candidate == name {
			return value, true
		}
		return "", false
	})
}

// Builtins resolves the built-in function placeholders `<now>` and `<mtime>`,
// both formatted with the provided layout. The modification time is looked up
// lazily so templates without `<mtime>` never touch the filesystem.
func Builtins(layout string, now func() time.Time, mtime func() (time.Time, error)) Provider {
	return ProviderFunc(func(name string) (string, bool) {
		switch name {
		case "now":
			return now().Format(layout), true
		case "mtime":
			if mtime == nil {
				return "", false
			}
			ts, err := mtime()
			if err != nil {
				return "", true
			}
			return ts.Format(layout), true
		default:
			return "", false
		}
	})
}

// IsMetaName reports whether a placeholder name addresses a metadata field
// (`<sourceName.fieldName>`).
func IsMetaName(name string) bool {
	return strings.Contains(name, ".")
}

// SplitMetaName splits a `source.field` placeholder into its parts. Fields
// may themselves be qualified, so only the first dot separates.
func SplitMetaName(name string) (source, field string) {
	idx := strings.Index(name, ".")
	if idx < 0 {
		return name, ""
	}
	return name[:idx], name[idx+1:]
}
