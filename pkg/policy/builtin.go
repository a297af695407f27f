package policy

// BuiltinPolicies returns the policies every guard evaluates.
func BuiltinPolicies() []Policy {
	return []Policy{
		protectedEnvironmentPolicy(),
		purgeLiveInfrastructurePolicy(),
	}
}

// protectedEnvironmentPolicy blocks destructive commands on environments
// labelled protected=true unless --force is given.
func protectedEnvironmentPolicy() Policy {
	return Policy{
		Name:        "protected-environment",
		Description: "Destroy and purge of environments labelled protected=true require --force",
		Severity:    SeverityError,
		Source:      "builtin",
		Rego: `package deployer.guard.protected

import rego.v1

destructive := {"destroy", "purge"}

deny contains violation if {
	destructive[input.command]
	input.labels.protected == "true"
	not input.force
	violation := {
		"message": sprintf("environment %s is labelled protected=true; rerun %s with --force", [input.environment, input.command]),
		"severity": "error",
	}
}
`,
	}
}

// purgeLiveInfrastructurePolicy warns when purge forgets an environment
// whose VM may still exist.
func purgeLiveInfrastructurePolicy() Policy {
	return Policy{
		Name:        "purge-live-infrastructure",
		Description: "Warns when purging an environment that was provisioned and not destroyed",
		Severity:    SeverityWarning,
		Source:      "builtin",
		Rego: `package deployer.guard.purge

import rego.v1

live := {"provisioned", "configured", "released", "running"}

deny contains violation if {
	input.command == "purge"
	live[input.state]
	violation := {
		"message": sprintf("environment %s is %s; purge removes local state only and the instance keeps running", [input.environment, input.state]),
		"severity": "warning",
	}
}
`,
	}
}
