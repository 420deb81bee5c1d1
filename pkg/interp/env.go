package interp

// Env is one immutable link in a chain of bindings. Extending never touches
// the parent, so a closure can hold on to any node safely.
type Env struct {
	name   string
	value  Value
	parent *Env
}

// Empty is the root environment with no bindings.
var Empty = &Env{}

func Extend(name string, value Value, parent *Env) *Env {
	if parent == nil {
		parent = Empty
	}
	return &Env{name: name, value: value, parent: parent}
}

// Lookup returns the innermost binding of name.
func (e *Env) Lookup(name string) (Value, error) {
	for env := e; env != nil && env != Empty; env = env.parent {
		if env.name == name {
			return env.value, nil
		}
	}
	return nil, runtimeErrorf(KindFreeVariable, "free variable: %s", name)
}

// Binding is a name visible in an environment with its value.
type Binding struct {
	Name  string
	Value Value
}

// Bindings lists the visible bindings innermost first. Shadowed names are
// left out.
func (e *Env) Bindings() []Binding {
	var out []Binding
	seen := make(map[string]bool)
	for env := e; env != nil && env != Empty; env = env.parent {
		if seen[env.name] {
			continue
		}
		seen[env.name] = true
		out = append(out, Binding{Name: env.name, Value: env.value})
	}
	return out
}

// Names lists the visible names innermost first.
func (e *Env) Names() []string {
	bindings := e.Bindings()
	names := make([]string, len(bindings))
	for i, b := range bindings {
		names[i] = b.Name
	}
	return names
}
