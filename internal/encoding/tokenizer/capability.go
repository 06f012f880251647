package tokenizer

// Status is the outcome of a backend capability check.
type Status int

const (
	StatusAvailable Status = iota
	StatusMissing
)

func (s Status) String() string {
	switch s {
	case StatusAvailable:
		return "available"
	case StatusMissing:
		return "missing"
	default:
		return "unknown"
	}
}

// Capability describes whether a backend library is usable.
// Install is only set when Status is StatusMissing.
type Capability struct {
	Backend string
	Status  Status
	Install string
}

// Available reports whether the backend can load models.
func (c Capability) Available() bool { return c.Status == StatusAvailable }

func available(backend string) Capability {
	return Capability{Backend: backend, Status: StatusAvailable}
}

func missing(backend, install string) Capability {
	return Capability{Backend: backend, Status: StatusMissing, Install: install}
}
