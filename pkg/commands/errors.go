package commands

import (
	"errors"
	"fmt"

	"github.com/openfroyo/deployer/pkg/engine"
	"github.com/openfroyo/deployer/pkg/environment"
	"github.com/openfroyo/deployer/pkg/stores"
)

// classify maps domain errors into the engine taxonomy.
func classify(err error) *engine.EngineError {
	var (
		te *environment.TransitionError
		re *stores.RepositoryError
		ne *environment.NameError
	)
	switch {
	case errors.As(err, &te):
		return engine.NewStateTransitionError(te.Error(), err).WithHelp(te.Help())
	case errors.As(err, &re):
		e := engine.NewRepositoryError(re.Error(), err).WithHelp(re.Help())
		switch re.Kind {
		case stores.ErrorKindNotFound:
			e = e.WithCode(engine.ErrCodeNotFound)
		case stores.ErrorKindPermission:
			e = e.WithCode(engine.ErrCodePermissionDenied)
		case stores.ErrorKindCorrupted:
			e = e.WithCode(engine.ErrCodeCorrupted)
		}
		return e
	case errors.As(err, &ne):
		return engine.NewValidationError(ne.Error(), err).WithHelp(ne.Help())
	default:
		return engine.Classify(err)
	}
}

// fail classifies err and attaches the invocation context.
func fail(inv engine.Invocation, err error) error {
	if err == nil {
		return nil
	}
	return classify(err).WithCommand(inv.Command).WithEnvironment(inv.Environment)
}

func notFound(name environment.Name) *engine.EngineError {
	return engine.NewStateTransitionError(fmt.Sprintf("environment %q does not exist", name), nil).
		WithCode(engine.ErrCodeNotFound).
		WithHelp("Create it with 'deployer create --config FILE', or run 'deployer list' to see known environments.")
}
