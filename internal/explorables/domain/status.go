package domain

// Status is the lifecycle state of a project run.
type Status string

const (
	StatusCreated                Status = "created"
	StatusGeneratingCode         Status = "generating_code"
	StatusCreatingSandbox        Status = "creating_sandbox"
	StatusInstallingDependencies Status = "installing_dependencies"
	StatusExecutingCode          Status = "executing_code"
	StatusReady                  Status = "ready"
	StatusFailed                 Status = "failed"
)

// order ranks the forward path; failed is reachable from any non-terminal state.
var order = map[Status]int{
	StatusCreated:                0,
	StatusGeneratingCode:         1,
	StatusCreatingSandbox:        2,
	StatusInstallingDependencies: 3,
	StatusExecutingCode:          4,
	StatusReady:                  5,
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	if s == StatusFailed {
		return true
	}
	_, ok := order[s]
	return ok
}

// IsTerminal reports whether s is ready or failed.
func (s Status) IsTerminal() bool {
	return s == StatusReady || s == StatusFailed
}

// CanTransition reports whether a project may move from one status to another.
// Forward skips are allowed (installing_dependencies and generating_code are optional),
// backwards moves are not, except a ready project restarting for a continuation.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if to == StatusFailed {
		return !from.IsTerminal()
	}
	if from == StatusReady && to == StatusCreated {
		return true
	}
	if from.IsTerminal() {
		return false
	}
	return order[to] > order[from]
}
