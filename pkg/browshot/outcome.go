package browshot

// StatusNetworkError is the synthetic status code assigned to attempts that
// failed before an HTTP status was received. It never collides with a real
// HTTP status.
const StatusNetworkError = 0

// Class partitions attempt outcomes by how the caller should react.
type Class int

const (
	// ClassSuccess means the attempt returned a usable image.
	ClassSuccess Class = iota
	// ClassTransient means the attempt failed but is worth retrying.
	ClassTransient
	// ClassPermanent means retrying the same request will not help.
	ClassPermanent
)

func (c Class) String() string {
	switch c {
	case ClassSuccess:
		return "success"
	case ClassTransient:
		return "transient"
	case ClassPermanent:
		return "permanent"
	}
	return "unknown"
}

// Outcome is the classified result of a single capture attempt.
type Outcome struct {
	Class      Class
	StatusCode int    // real HTTP status, or StatusNetworkError
	Image      []byte // set on success only
	Detail     string // human-readable failure detail
}

// OK reports whether the attempt produced an image.
func (o Outcome) OK() bool {
	return o.Class == ClassSuccess
}
