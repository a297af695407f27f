package commands

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/openfroyo/deployer/pkg/engine"
	"github.com/openfroyo/deployer/pkg/environment"
)

// List loads every stored environment concurrently. Environments that fail
// to load are reported in Failures and do not fail the command.
func (c *Container) List(ctx context.Context) (_ *ListResult, err error) {
	inv := engine.Invocation{Command: CommandList}
	x := c.begin(ctx, inv)
	defer func() { x.Finish(err) }()

	limit := c.ListConcurrency
	if limit < 1 {
		limit = 1
	}

	var (
		mu     sync.Mutex
		result = &ListResult{Environments: []Summary{}}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for name, err := range c.Repository.ListNames(ctx) {
		if err != nil {
			_ = g.Wait()
			return nil, fail(inv, err)
		}
		g.Go(func() error {
			env, found, err := c.Repository.Load(gctx, name)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				if gctx.Err() != nil {
					return gctx.Err()
				}
				e := classify(err)
				result.Failures = append(result.Failures, ListFailure{Name: name, Error: e.Error(), Help: e.Help()})
				c.log(inv).WithEnvironment(string(name)).WithError(err).Warn("cannot load environment")
			case found:
				result.Environments = append(result.Environments, summarize(env))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fail(inv, err)
	}

	sort.Slice(result.Environments, func(i, j int) bool {
		return result.Environments[i].Name < result.Environments[j].Name
	})
	sort.Slice(result.Failures, func(i, j int) bool {
		return result.Failures[i].Name < result.Failures[j].Name
	})
	return result, nil
}

func summarize(env environment.AnyEnvironment) Summary {
	common := env.Base()
	s := Summary{
		Name:      common.Name,
		State:     env.State(),
		Provider:  common.Provider.Kind,
		UpdatedAt: common.UpdatedAt,
	}
	if inst, ok := environment.InstanceOf(env); ok {
		s.InstanceIP = inst.IP
	}
	return s
}
