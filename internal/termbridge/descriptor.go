package termbridge

import (
	"errors"
	"fmt"
	"strings"
)

// Protocol selects how a session reaches its target.
type Protocol string

const (
	// ProtocolNone spawns a local shell on the bridge host.
	ProtocolNone Protocol = "none"
	// ProtocolSSH spawns the ssh client against a remote address.
	ProtocolSSH Protocol = "ssh"
)

// ErrInvalidDescriptor is returned for descriptors that cannot be turned into
// a command, such as an ssh target without an address.
var ErrInvalidDescriptor = errors.New("invalid connection descriptor")

// Descriptor is the normalized description of what a session connects to.
// Password is carried for completeness but never reaches the spawned
// command line.
type Descriptor struct {
	Protocol   Protocol
	Address    string
	Port       int
	Username   string
	PrivateKey string
	Password   string
}

// IsSSH reports whether the descriptor selects the ssh client path.
// Any protocol other than "ssh" falls back to the local shell.
func (d Descriptor) IsSSH() bool {
	return strings.EqualFold(string(d.Protocol), string(ProtocolSSH))
}

// HasKey reports whether private key material was supplied.
func (d Descriptor) HasKey() bool {
	return strings.TrimSpace(d.PrivateKey) != ""
}

// Target returns a display form of the destination, without secrets.
func (d Descriptor) Target() string {
	if !d.IsSSH() {
		return "local"
	}
	dest := d.Address
	if d.Username != "" {
		dest = d.Username + "@" + dest
	}
	if d.Port > 0 {
		dest = fmt.Sprintf("%s:%d", dest, d.Port)
	}
	return dest
}

// Normalize validates the descriptor and returns a cleaned copy. Local-shell
// descriptors are always valid; their remote fields are dropped.
func (d Descriptor) Normalize() (Descriptor, error) {
	if !d.IsSSH() {
		return Descriptor{Protocol: ProtocolNone}, nil
	}

	out := d
	out.Protocol = ProtocolSSH
	out.Address = strings.TrimSpace(d.Address)
	out.Username = strings.TrimSpace(d.Username)

	if strings.HasPrefix(out.Address, "[") && strings.HasSuffix(out.Address, "]") {
		out.Address = out.Address[1 : len(out.Address)-1]
	}
	if out.Address == "" {
		return Descriptor{}, fmt.Errorf("%w: ssh requires an address", ErrInvalidDescriptor)
	}
	if err := checkArgValue("address", out.Address); err != nil {
		return Descriptor{}, err
	}
	if out.Username != "" {
		if err := checkArgValue("username", out.Username); err != nil {
			return Descriptor{}, err
		}
		if strings.Contains(out.Username, "@") {
			return Descriptor{}, fmt.Errorf("%w: username must not contain '@'", ErrInvalidDescriptor)
		}
	}
	if d.Port < 0 || d.Port > 65535 {
		return Descriptor{}, fmt.Errorf("%w: port %d out of range", ErrInvalidDescriptor, d.Port)
	}
	return out, nil
}

// checkArgValue rejects values the ssh client would parse as options or that
// cannot be passed as a single argv entry.
func checkArgValue(field, v string) error {
	if strings.HasPrefix(v, "-") {
		return fmt.Errorf("%w: %s must not start with '-'", ErrInvalidDescriptor, field)
	}
	if strings.ContainsAny(v, "\x00\r\n") {
		return fmt.Errorf("%w: %s contains control characters", ErrInvalidDescriptor, field)
	}
	return nil
}
