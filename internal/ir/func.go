package ir

// Func is the runtime view of one compiled function: its formal arguments,
// its environment and the storage of every tensor it touches.
type Func struct {
	Name    string
	Args    []Var
	Env     *Environment
	Storage *Storage
}

// Arg returns the formal argument called name.
func (f *Func) Arg(name string) (Var, bool) {
	for _, a := range f.Args {
		if a.Name == name {
			return a, true
		}
	}
	return Var{}, false
}
