// Package config loads the two configuration files of the deployer CLI.
//
// # Environment creation config
//
// "deployer create --config FILE" reads an EnvironmentConfig from YAML, JSON
// or CUE, chosen by file extension. YAML and JSON reject unknown fields. CUE
// files are unified with the embedded #Environment schema, which also
// supplies defaults. Every format is then validated with struct tags and a
// few cross-field rules (grafana needs prometheus, TLS domains need an admin
// email), and converted into environment.Common.
//
//	loader, err := config.NewLoader()
//	if err != nil {
//	    return err
//	}
//	cfg, err := loader.LoadFile("envs/staging.yaml")
//	if err != nil {
//	    return err // *engine.EngineError of kind validation
//	}
//	common, err := cfg.ToCommon()
//
// # Workspace config
//
// deployer.yaml in the working directory (or --config-file) sets the data
// and build directories, the audit database, the policy directory, tool
// binaries, timeouts, telemetry and the retry policies of the actions that
// wait for remote resources. DEPLOYER_* environment variables override it.
package config
