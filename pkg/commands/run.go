package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/openfroyo/deployer/pkg/artifacts"
	"github.com/openfroyo/deployer/pkg/engine"
	"github.com/openfroyo/deployer/pkg/environment"
)

// healthPath is the tracker API health endpoint.
const healthPath = "/api/health_check"

// Run starts the released stack and waits for the tracker API to answer.
func (c *Container) Run(ctx context.Context, name string) (_ *RunResult, err error) {
	inv := engine.Invocation{Command: CommandRun, Environment: name}
	x := c.begin(ctx, inv)
	defer func() { x.Finish(err) }()

	env, err := c.load(ctx, inv)
	if err != nil {
		return nil, err
	}
	released, err := environment.Require[*environment.Released](env)
	if err != nil {
		return nil, fail(inv, err)
	}
	warnings, err := c.guard(ctx, inv, env, false)
	if err != nil {
		return nil, err
	}

	common := released.Base()
	ip := released.Instance.IP
	r := c.remote(common, ip)
	defer r.close()

	steps := []engine.Step{
		engine.NewStep("start-services",
			c.connectAction(r),
			remoteAction("compose-pull", r, composeCmd("pull --quiet")),
			remoteAction("compose-up", r, composeCmd("up --detach --remove-orphans")),
		),
		engine.NewStep("health-check", c.healthAction(healthURL(ip, common.Services))),
	}

	exec, err := c.execute(x, steps)
	if err != nil {
		return &RunResult{Name: common.Name, InstanceIP: ip, Execution: exec}, err
	}

	running := released.Start(c.now())
	if err := c.save(ctx, inv, running); err != nil {
		return &RunResult{Name: common.Name, InstanceIP: ip, Execution: exec}, err
	}

	return &RunResult{
		Name:       common.Name,
		InstanceIP: ip,
		Endpoints:  endpoints(ip, common.Services),
		StartedAt:  running.StartedAt,
		Warnings:   warnings,
		Execution:  exec,
	}, nil
}

func (c *Container) healthAction(url string) engine.Action {
	a := engine.NewAction("http-health-check", func(ctx context.Context) error {
		return c.Prober.Probe(ctx, url)
	})
	if c.Timeouts.HTTPProbe > 0 {
		a = engine.WithTimeout(a, c.Timeouts.HTTPProbe)
	}
	return engine.Retrying(a, c.Retry.HealthCheck)
}

func healthURL(ip string, s environment.Services) string {
	return fmt.Sprintf("http://%s:%d%s", ip, s.HTTPAPIPort, healthPath)
}

// endpoints lists the public URLs of the running stack.
func endpoints(ip string, s environment.Services) []string {
	out := []string{
		fmt.Sprintf("udp://%s:%d/announce", ip, artifacts.TrackerUDPPort),
	}
	if s.TrackerDomain != "" {
		out = append(out, "https://"+s.TrackerDomain+"/announce", "https://"+s.TrackerDomain+"/api")
	} else {
		out = append(out,
			fmt.Sprintf("http://%s:%d/announce", ip, artifacts.TrackerHTTPPort),
			"http://"+ip+":"+strconv.Itoa(s.HTTPAPIPort)+"/api",
		)
	}
	if s.Grafana {
		if s.GrafanaDomain != "" {
			out = append(out, "https://"+s.GrafanaDomain)
		} else {
			out = append(out, fmt.Sprintf("http://%s:%d", ip, artifacts.GrafanaPort))
		}
	}
	return out
}
