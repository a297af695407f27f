package tools

import (
	"context"
)

// Ansible runs playbooks with ansible-playbook.
type Ansible struct {
	runner Runner
	binary string
}

// NewAnsible returns a playbook runner calling binary through runner.
func NewAnsible(runner Runner, binary string) *Ansible {
	if binary == "" {
		binary = "ansible-playbook"
	}
	return &Ansible{runner: runner, binary: binary}
}

// Playbook runs one playbook against inventory with the extra variables file.
// dir is the working directory, usually the directory holding the inventory.
func (a *Ansible) Playbook(ctx context.Context, dir, inventory, variables, playbook string) error {
	args := []string{"-i", inventory}
	if variables != "" {
		args = append(args, "-e", "@"+variables)
	}
	args = append(args, playbook)

	_, err := a.runner.Run(ctx, Command{
		Binary: a.binary,
		Args:   args,
		Dir:    dir,
		Env: []string{
			"ANSIBLE_HOST_KEY_CHECKING=False",
			"ANSIBLE_NOCOLOR=1",
			"ANSIBLE_RETRY_FILES_ENABLED=False",
		},
	})
	return err
}
