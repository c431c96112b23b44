package models

// ErrorKind is the machine-readable classification surfaced in the
// response envelope alongside a human-readable message.
type ErrorKind string

const (
	ErrUnknownAction     ErrorKind = "unknown_action"
	ErrInvalidSelection  ErrorKind = "invalid_selection"
	ErrMissingParameters ErrorKind = "missing_parameters"
	ErrInvalidParameters ErrorKind = "invalid_parameters"
	ErrTripNotFound      ErrorKind = "trip_not_found"
	ErrRouteNotFound     ErrorKind = "route_not_found"
	ErrStopNotFound      ErrorKind = "stop_not_found"
	ErrPathNotFound      ErrorKind = "path_not_found"
	ErrAmbiguousTarget   ErrorKind = "ambiguous_target"
	ErrContextMismatch   ErrorKind = "context_mismatch"
	ErrAlreadyDeployed   ErrorKind = "already_deployed"
	ErrVehicleConflict   ErrorKind = "vehicle_conflict"
	ErrDriverConflict    ErrorKind = "driver_conflict"
	ErrSessionExpired    ErrorKind = "session_expired"
	ErrSessionNotPending ErrorKind = "session_not_pending"
	ErrGraphCycle        ErrorKind = "graph_cycle"
	ErrLLMTimeout        ErrorKind = "llm_timeout"
	ErrDatabase          ErrorKind = "database_error"
)

// AgentError is a node-local error captured on the Flow State.
// Nothing above a node is allowed to throw uncaught.
type AgentError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *AgentError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// NotFoundKind maps an entity type to its resolver-miss error kind.
func NotFoundKind(et EntityType) ErrorKind {
	switch et {
	case EntityRoute:
		return ErrRouteNotFound
	case EntityPath:
		return ErrPathNotFound
	case EntityStop:
		return ErrStopNotFound
	default:
		return ErrTripNotFound
	}
}
