package termbridge

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// HostKeyPolicy controls how the ssh client treats unknown host keys.
type HostKeyPolicy string

const (
	// HostKeyInsecure disables host key checking and discards known hosts.
	// This is the default because inventory devices are frequently
	// re-provisioned; it leaves sessions open to man-in-the-middle attacks.
	HostKeyInsecure HostKeyPolicy = "insecure"
	// HostKeyAcceptNew records unknown keys and rejects changed ones.
	HostKeyAcceptNew HostKeyPolicy = "accept-new"
	// HostKeyStrict requires the host key to already be known.
	HostKeyStrict HostKeyPolicy = "strict"
)

// ParseHostKeyPolicy parses a policy name. Empty selects HostKeyInsecure.
func ParseHostKeyPolicy(s string) (HostKeyPolicy, error) {
	switch p := HostKeyPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return HostKeyInsecure, nil
	case HostKeyInsecure, HostKeyAcceptNew, HostKeyStrict:
		return p, nil
	default:
		return "", fmt.Errorf("unknown ssh host key policy %q", s)
	}
}

// Command is a program plus discrete arguments, ready to be spawned without
// a shell in between. Dir and Env are filled from the bridge's SpawnConfig.
type Command struct {
	Program string
	Args    []string
	Dir     string
	Env     []string
}

// String renders the command for logs. It is never executed.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Program)
	for _, a := range c.Args {
		parts = append(parts, strconv.Quote(a))
	}
	return strings.Join(parts, " ")
}

// CommandOptions carries host-level settings for BuildCommand.
type CommandOptions struct {
	// Shell overrides the platform default shell for local sessions.
	Shell string
	// SSHBinary is the ssh client program. Defaults to "ssh".
	SSHBinary string
	// HostKeyPolicy defaults to HostKeyInsecure.
	HostKeyPolicy HostKeyPolicy
}

// BuildCommand turns a normalized descriptor into a spawnable command.
// keyPath is the ephemeral identity file written for this session, or empty.
// It has no side effects.
func BuildCommand(d Descriptor, keyPath string, opts CommandOptions) Command {
	if !d.IsSSH() {
		shell := opts.Shell
		if shell == "" {
			shell = DefaultShell
		}
		return Command{Program: shell}
	}

	program := opts.SSHBinary
	if program == "" {
		program = "ssh"
	}

	args := hostKeyArgs(opts.HostKeyPolicy)
	args = append(args, "-o", "LogLevel=ERROR")
	if d.Port > 0 {
		args = append(args, "-p", strconv.Itoa(d.Port))
	}
	if keyPath != "" {
		args = append(args, "-i", keyPath, "-o", "IdentitiesOnly=yes")
	}
	if strings.Contains(d.Address, ":") {
		args = append(args, "-6")
	}

	dest := d.Address
	if d.Username != "" {
		dest = d.Username + "@" + d.Address
	}
	args = append(args, "--", dest)

	return Command{Program: program, Args: args}
}

func hostKeyArgs(p HostKeyPolicy) []string {
	switch p {
	case HostKeyStrict:
		return []string{"-o", "StrictHostKeyChecking=yes"}
	case HostKeyAcceptNew:
		return []string{"-o", "StrictHostKeyChecking=accept-new"}
	default:
		return []string{
			"-o", "StrictHostKeyChecking=no",
			"-o", "UserKnownHostsFile=" + os.DevNull,
		}
	}
}
