package providers

// BodyBuilder renders the JSON request body a provider expects for a prompt.
type BodyBuilder func(prompt string) ([]byte, error)

// Spec is one immutable entry of the provider chain. Priority is the
// position of the spec in the chain slice.
type Spec struct {
	Name      string
	Endpoint  string
	Format    string
	BuildBody BodyBuilder
}

// Names returns provider names in chain order.
func Names(chain []Spec) []string {
	out := make([]string, len(chain))
	for i, spec := range chain {
		out[i] = spec.Name
	}
	return out
}
