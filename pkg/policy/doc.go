// Package policy guards mutating commands with Rego rules evaluated by the
// Open Policy Agent.
//
// Every policy is a Rego module defining a "deny" set in its own package.
// Members are either strings or objects with "message" and "severity"
// ("error" blocks, "warning" is reported only). The input document is
//
//	{
//	    "command": "destroy",
//	    "environment": "staging",
//	    "state": "running",
//	    "labels": {"protected": "true"},
//	    "force": false
//	}
//
// Built-in policies refuse destroy and purge of environments labelled
// protected=true unless --force is given, and warn when purge is used on an
// environment whose instance may still exist. Additional .rego files are
// loaded from the workspace policy_dir:
//
//	package deployer.guard.office_hours
//
//	import rego.v1
//
//	deny contains "no production changes on Fridays" if {
//		input.labels.tier == "production"
//		time.weekday(time.now_ns()) == "Friday"
//	}
package policy
