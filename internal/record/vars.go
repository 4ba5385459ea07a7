package record

// Vars is an ordered name→value mapping of capture and derived variables.
// Insertion order is preserved so reports list variables the way they were
// produced, and Merge never overwrites an existing name so original captures
// take precedence over later-derived values.
type Vars struct {
	names  []string
	values map[string]string
}

// NewVars returns an empty variable map.
func NewVars() *Vars {
	return &Vars{values: make(map[string]string)}
}

// Set stores a value, inserting the name if it is new and overwriting the
// value otherwise.
func (v *Vars) Set(name, value string) {
	if _, ok := v.values[name]; !ok {
		v.names = append(v.names, name)
	}
	v.values[name] = value
}

// Merge stores a value only when the name is not already present.
func (v *Vars) Merge(name, value string) bool {
	if _, ok := v.values[name]; ok {
		return false
	}
	v.names = append(v.names, name)
	v.values[name] = value
	return true
}

// Get returns the value for name.
func (v *Vars) Get(name string) (string, bool) {
	value, ok := v.values[name]
	return value, ok
}

// Names returns variable names in insertion order.
func (v *Vars) Names() []string {
	out := make([]string, len(v.names))
	copy(out, v.names)
	return out
}

// Map returns a plain map view for template rendering.
func (v *Vars) Map() map[string]string {
	out := make(map[string]string, len(v.values))
	for name, value := range v.values {
		out[name] = value
	}
	return out
}

// Len returns the number of variables.
func (v *Vars) Len() int {
	return len(v.names)
}
