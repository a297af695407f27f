// Package topology derives the docker compose network membership of each
// service from the features it uses.
package topology

import (
	"slices"
)

// Network is a docker compose network joining services that talk to each other.
type Network string

const (
	NetworkDatabase      Network = "database"
	NetworkMetrics       Network = "metrics"
	NetworkVisualization Network = "visualization"
	NetworkProxy         Network = "proxy"
)

// Networks lists every network in canonical order.
var Networks = []Network{NetworkDatabase, NetworkMetrics, NetworkVisualization, NetworkProxy}

// Flags are the features a single service participates in.
type Flags struct {
	Database      bool
	Metrics       bool
	Visualization bool
	TLS           bool
}

// rule adds a network when its predicate holds.
type rule struct {
	network Network
	applies func(Flags) bool
}

var rules = []rule{
	{NetworkDatabase, func(f Flags) bool { return f.Database }},
	{NetworkMetrics, func(f Flags) bool { return f.Metrics }},
	{NetworkVisualization, func(f Flags) bool { return f.Visualization }},
	{NetworkProxy, func(f Flags) bool { return f.TLS }},
}

// Derive returns the networks a service with the given flags must join,
// sorted and without duplicates.
func Derive(f Flags) []Network {
	out := []Network{}
	for _, r := range rules {
		if r.applies(f) {
			out = append(out, r.network)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Service is a container of the deployed stack.
type Service string

const (
	ServiceTracker    Service = "tracker"
	ServiceMySQL      Service = "mysql"
	ServicePrometheus Service = "prometheus"
	ServiceGrafana    Service = "grafana"
	ServiceCaddy      Service = "caddy"
)

// Features are the stack-wide options chosen at environment creation.
type Features struct {
	MySQL      bool
	Prometheus bool
	Grafana    bool
	TrackerTLS bool
	GrafanaTLS bool
}

// TLS reports whether the reverse proxy is needed.
func (f Features) TLS() bool {
	return f.TrackerTLS || (f.Grafana && f.GrafanaTLS)
}

// serviceRule describes one service: whether the stack deploys it and the
// features it takes part in.
type serviceRule struct {
	service Service
	enabled func(Features) bool
	flags   func(Features) Flags
}

// serviceRules is in deployment order.
var serviceRules = []serviceRule{
	{
		service: ServiceTracker,
		enabled: func(Features) bool { return true },
		flags: func(f Features) Flags {
			return Flags{Database: f.MySQL, Metrics: f.Prometheus, TLS: f.TrackerTLS}
		},
	},
	{
		service: ServiceMySQL,
		enabled: func(f Features) bool { return f.MySQL },
		flags:   func(Features) Flags { return Flags{Database: true} },
	},
	{
		service: ServicePrometheus,
		enabled: func(f Features) bool { return f.Prometheus },
		flags:   func(f Features) Flags { return Flags{Metrics: true, Visualization: f.Grafana} },
	},
	{
		service: ServiceGrafana,
		enabled: func(f Features) bool { return f.Grafana },
		flags:   func(f Features) Flags { return Flags{Visualization: true, TLS: f.GrafanaTLS} },
	},
	{
		service: ServiceCaddy,
		enabled: Features.TLS,
		flags:   func(Features) Flags { return Flags{TLS: true} },
	},
}

// Services returns the enabled services in deployment order.
func (f Features) Services() []Service {
	var out []Service
	for _, r := range serviceRules {
		if r.enabled(f) {
			out = append(out, r.service)
		}
	}
	return out
}

// FlagsFor returns the per-service flags for s under f. Unknown services
// take part in nothing.
func FlagsFor(s Service, f Features) Flags {
	for _, r := range serviceRules {
		if r.service == s {
			return r.flags(f)
		}
	}
	return Flags{}
}

// Stack maps every enabled service to its networks.
type Stack map[Service][]Network

// DeriveStack computes the network membership of every enabled service.
func DeriveStack(f Features) Stack {
	stack := make(Stack)
	for _, s := range f.Services() {
		stack[s] = Derive(FlagsFor(s, f))
	}
	return stack
}

// Networks returns the networks used by at least one service, sorted.
func (s Stack) Networks() []Network {
	var out []Network
	for _, nets := range s {
		out = append(out, nets...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}
