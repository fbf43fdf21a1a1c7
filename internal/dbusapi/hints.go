package dbusapi

import "github.com/godbus/dbus/v5"

// UnwrapHints converts D-Bus variants into plain Go values, recursing into
// arrays, dicts and structs so nested variants disappear too.
func UnwrapHints(in map[string]dbus.Variant) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = unwrap(v.Value())
	}
	return out
}

func unwrap(v any) any {
	switch x := v.(type) {
	case dbus.Variant:
		return unwrap(x.Value())
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = unwrap(e)
		}
		return out
	case []dbus.Variant:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = unwrap(e.Value())
		}
		return out
	case map[string]dbus.Variant:
		return UnwrapHints(x)
	case dbus.ObjectPath:
		return string(x)
	case dbus.Signature:
		return x.String()
	default:
		return v
	}
}
