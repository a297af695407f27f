package environment

import "fmt"

// Require narrows env to the concrete state type T, or returns a
// *TransitionError naming both the current and the required state.
//
//	created, err := environment.Require[*environment.Created](env)
func Require[T AnyEnvironment](env AnyEnvironment) (T, error) {
	var zero T
	if env == nil {
		return zero, fmt.Errorf("environment is nil")
	}
	if t, ok := env.(T); ok {
		return t, nil
	}
	return zero, &TransitionError{
		Environment: env.Base().Name,
		From:        env.State(),
		Required:    zero.State(),
	}
}

// RequireState returns a *TransitionError unless env is in one of the allowed states.
func RequireState(env AnyEnvironment, allowed ...State) error {
	if env == nil {
		return fmt.Errorf("environment is nil")
	}
	for _, s := range allowed {
		if env.State() == s {
			return nil
		}
	}
	te := &TransitionError{Environment: env.Base().Name, From: env.State()}
	if len(allowed) == 1 {
		te.Required = allowed[0]
	}
	return te
}
