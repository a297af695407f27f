package environment

import (
	"encoding/json"
	"fmt"
)

// State is the lifecycle state of an environment.
type State string

const (
	// StateCreated indicates the environment is registered but has no infrastructure.
	StateCreated State = "created"

	// StateProvisioned indicates the VM exists and is reachable over SSH.
	StateProvisioned State = "provisioned"

	// StateConfigured indicates Docker, Compose and the firewall are installed.
	StateConfigured State = "configured"

	// StateReleased indicates the application files are on the VM.
	StateReleased State = "released"

	// StateRunning indicates the services are up and healthy.
	StateRunning State = "running"

	// StateDestroyed indicates the infrastructure was torn down. It is terminal.
	StateDestroyed State = "destroyed"
)

// States lists every state in lifecycle order.
var States = []State{
	StateCreated,
	StateProvisioned,
	StateConfigured,
	StateReleased,
	StateRunning,
	StateDestroyed,
}

// next holds the forward edges of the lifecycle graph.
// Destroyed is reachable from every non-terminal state and is handled separately.
var next = map[State]State{
	StateCreated:     StateProvisioned,
	StateProvisioned: StateConfigured,
	StateConfigured:  StateReleased,
	StateReleased:    StateRunning,
}

// Validate checks if the state is valid.
func (s State) Validate() error {
	switch s {
	case StateCreated, StateProvisioned, StateConfigured,
		StateReleased, StateRunning, StateDestroyed:
		return nil
	default:
		return fmt.Errorf("invalid environment state: %s", s)
	}
}

// IsTerminal returns true if no transition leaves s.
func (s State) IsTerminal() bool {
	return s == StateDestroyed
}

// HasInstance returns true if an environment in s owns a provisioned VM.
func (s State) HasInstance() bool {
	switch s {
	case StateProvisioned, StateConfigured, StateReleased, StateRunning:
		return true
	default:
		return false
	}
}

// Tag returns the name used as the top-level key of the persisted document.
func (s State) Tag() string {
	switch s {
	case StateCreated:
		return "Created"
	case StateProvisioned:
		return "Provisioned"
	case StateConfigured:
		return "Configured"
	case StateReleased:
		return "Released"
	case StateRunning:
		return "Running"
	case StateDestroyed:
		return "Destroyed"
	default:
		return ""
	}
}

// StateFromTag parses a document tag back into a State.
func StateFromTag(tag string) (State, error) {
	for _, s := range States {
		if s.Tag() == tag {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown state tag %q", tag)
}

// CanTransition reports whether the lifecycle graph has an edge from -> to.
func CanTransition(from, to State) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StateDestroyed {
		return from.Validate() == nil
	}
	return next[from] == to
}

// Transition returns a *TransitionError when from -> to is not an edge.
func Transition(name Name, from, to State) error {
	if CanTransition(from, to) {
		return nil
	}
	return &TransitionError{Environment: name, From: from, To: to}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *State) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = State(str)
	return s.Validate()
}

// TransitionError reports an operation that is incompatible with the current state.
type TransitionError struct {
	Environment Name

	// From is the state the environment is in.
	From State

	// To is the state the operation tried to reach, if known.
	To State

	// Required is the state the operation needed, if known.
	Required State
}

func (e *TransitionError) Error() string {
	switch {
	case e.Required != "":
		return fmt.Sprintf("environment %q is %s, but the operation requires %s", e.Environment, e.From, e.Required)
	case e.To == "":
		return fmt.Sprintf("environment %q is %s, which this operation does not accept", e.Environment, e.From)
	case e.From.IsTerminal():
		return fmt.Sprintf("environment %q is %s and cannot move to %s", e.Environment, e.From, e.To)
	default:
		return fmt.Sprintf("environment %q cannot move from %s to %s", e.Environment, e.From, e.To)
	}
}

// Help returns remediation text for the operator.
func (e *TransitionError) Help() string {
	if e.From.IsTerminal() {
		return fmt.Sprintf("Environment %q was destroyed. Run 'deployer purge %s' and create it again.", e.Environment, e.Environment)
	}
	want := e.Required
	if want == "" {
		for from, to := range next {
			if to == e.To {
				want = from
			}
		}
	}
	if cmd := commandReaching(next[e.From]); cmd != "" && e.From.before(want) {
		return fmt.Sprintf("Environment %q is %s. Run 'deployer %s %s' first, or check it with 'deployer show %s'.",
			e.Environment, e.From, cmd, e.Environment, e.Environment)
	}
	return fmt.Sprintf("Check the state of %q with 'deployer show %s'.", e.Environment, e.Environment)
}

// before reports whether s comes earlier than other on the forward path.
func (s State) before(other State) bool {
	return s.position() < other.position()
}

func (s State) position() int {
	for i, st := range States {
		if st == s {
			return i
		}
	}
	return -1
}

// commandReaching names the command that moves an environment into s.
func commandReaching(s State) string {
	switch s {
	case StateProvisioned:
		return "provision"
	case StateConfigured:
		return "configure"
	case StateReleased:
		return "release"
	case StateRunning:
		return "run"
	default:
		return ""
	}
}
