// Package engine provides the execution core of the deployer.
//
// # Overview
//
// Every mutating command is expressed as a three-level hierarchy:
//
//  1. Command - the user-facing operation (provision, configure, ...)
//  2. Step - an ordered, named phase of a command
//  3. Action - a single external interaction (subprocess, SSH call, file render)
//
// The Runner executes steps in declaration order and actions within a step in
// declaration order. The first failing step aborts the command; later steps
// are reported as skipped and never run, unless the failed step was wrapped
// with ContinueOnFailure.
//
// Handlers that do work around their steps open the command with Begin and
// close it with Finish, so a rejection before the first step or a failure
// after the last one is still the command's recorded outcome:
//
//	x := runner.Begin(ctx, inv)
//	defer func() { x.Finish(err) }()
//
// # Retries
//
// Retries are opt-in and per action:
//
//	wait := engine.Retrying(engine.NewAction("wait-for-ssh", probe), engine.RetryPolicy{
//	    MaxAttempts:  10,
//	    InitialDelay: 2 * time.Second,
//	    MaxDelay:     30 * time.Second,
//	})
//
// Only errors classified as transient, throttled or conflict are retried.
// Actions wrapped with Destructive are never retried.
//
// # Errors
//
// All failures surfaced by the runner are *EngineError values. The Kind places
// the error in the taxonomy (validation, state_transition, repository, action,
// cancelled, internal), the Class drives retry decisions, and Help returns the
// remediation text shown to the operator.
//
// # Observability
//
// The runner reports a start and an end Record for every command, step and
// action attempt to an Observer. Loggers, tracers, metrics and the audit log
// all plug in through that interface.
package engine
