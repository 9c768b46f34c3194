package security

// RouteClass selects the rate-limit bucket for a route.
type RouteClass string

const (
	RouteGeneral RouteClass = "general"
	// RouteAuth marks login, registration, refresh and password change.
	RouteAuth RouteClass = "auth"
)

// Endpoint names with registered validation schemas.
const (
	EndpointLogin          = "login"
	EndpointRegister       = "register"
	EndpointRefresh        = "refresh"
	EndpointChangePassword = "change_password"
)

// Request is the transport-neutral view of an inbound call. Sanitizing gates
// rewrite Body, Query and Params in place.
type Request struct {
	ClientAddr string
	Class      RouteClass
	Endpoint   string
	Body       map[string]any
	Query      map[string]string
	Params     map[string]string
}
