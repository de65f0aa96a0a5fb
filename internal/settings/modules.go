package settings

// ModuleKeys lists the portal feature modules in display order.
var ModuleKeys = []string{
	"timeline",
	"files",
	"invoices",
	"contracts",
	"forms",
	"messages",
	"ai-assistant",
}

// Modules maps a module key to whether the module is enabled.
type Modules map[string]bool

// DefaultModules enables every module.
func DefaultModules() Modules {
	out := make(Modules, len(ModuleKeys))
	for _, key := range ModuleKeys {
		out[key] = true
	}
	return out
}

// ResolveModules layers the account template's module flags and then the
// portal's over the defaults. Only boolean values for known keys apply.
func ResolveModules(portal, global Object) Modules {
	out := DefaultModules()
	for _, layer := range []Object{global, portal} {
		for _, key := range ModuleKeys {
			if enabled, ok := layer[key].(bool); ok {
				out[key] = enabled
			}
		}
	}
	return out
}

// NarrowModules keeps the known module keys that hold booleans.
func NarrowModules(raw any) Object {
	src, ok := asObject(raw)
	if !ok {
		return Object{}
	}
	out := Object{}
	for _, key := range ModuleKeys {
		if enabled, ok := src[key].(bool); ok {
			out[key] = enabled
		}
	}
	return out
}
