package termbridge

import (
	"os"
	"reflect"
	"testing"
)

func insecureArgs() []string {
	return []string{"-o", "StrictHostKeyChecking=no", "-o", "UserKnownHostsFile=" + os.DevNull, "-o", "LogLevel=ERROR"}
}

// --- Local shell ---

func TestBuildCommand_LocalShellHasNoArgs(t *testing.T) {
	for _, proto := range []Protocol{ProtocolNone, "", "telnet", "rdp"} {
		cmd := BuildCommand(Descriptor{Protocol: proto, Address: "10.0.0.5"}, "", CommandOptions{})
		if cmd.Program != DefaultShell {
			t.Errorf("protocol %q: program = %q, want %q", proto, cmd.Program, DefaultShell)
		}
		if len(cmd.Args) != 0 {
			t.Errorf("protocol %q: args = %q, want none", proto, cmd.Args)
		}
	}
}

func TestBuildCommand_ShellOverride(t *testing.T) {
	cmd := BuildCommand(Descriptor{}, "", CommandOptions{Shell: "/bin/sh"})
	if cmd.Program != "/bin/sh" {
		t.Errorf("program = %q, want /bin/sh", cmd.Program)
	}
}

// --- SSH ---

func TestBuildCommand_SSHArgs(t *testing.T) {
	tests := []struct {
		name    string
		d       Descriptor
		keyPath string
		want    []string
	}{
		{
			name: "address only",
			d:    Descriptor{Protocol: ProtocolSSH, Address: "10.0.0.5"},
			want: append(insecureArgs(), "--", "10.0.0.5"),
		},
		{
			name: "user and port",
			d:    Descriptor{Protocol: ProtocolSSH, Address: "10.0.0.5", Port: 2222, Username: "ops"},
			want: append(insecureArgs(), "-p", "2222", "--", "ops@10.0.0.5"),
		},
		{
			name:    "key file",
			d:       Descriptor{Protocol: ProtocolSSH, Address: "host.example", Username: "root"},
			keyPath: "/tmp/k/abc.key",
			want:    append(insecureArgs(), "-i", "/tmp/k/abc.key", "-o", "IdentitiesOnly=yes", "--", "root@host.example"),
		},
		{
			name: "ipv6",
			d:    Descriptor{Protocol: ProtocolSSH, Address: "fe80::1", Port: 22},
			want: append(insecureArgs(), "-p", "22", "-6", "--", "fe80::1"),
		},
		{
			name: "shell metacharacters stay one argument",
			d:    Descriptor{Protocol: ProtocolSSH, Address: "x; rm -rf /"},
			want: append(insecureArgs(), "--", "x; rm -rf /"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := BuildCommand(tt.d, tt.keyPath, CommandOptions{})
			if cmd.Program != "ssh" {
				t.Errorf("program = %q, want ssh", cmd.Program)
			}
			if !reflect.DeepEqual(cmd.Args, tt.want) {
				t.Errorf("args =\n  %q\nwant\n  %q", cmd.Args, tt.want)
			}
		})
	}
}

func TestBuildCommand_PortPairIsAdjacent(t *testing.T) {
	cmd := BuildCommand(Descriptor{Protocol: "SSH", Address: "h", Port: 2222}, "", CommandOptions{})
	for i, a := range cmd.Args {
		if a == "-p" {
			if i+1 >= len(cmd.Args) || cmd.Args[i+1] != "2222" {
				t.Fatalf("-p not followed by 2222: %q", cmd.Args)
			}
			return
		}
	}
	t.Fatalf("no -p in %q", cmd.Args)
}

func TestBuildCommand_PasswordNeverInArgs(t *testing.T) {
	d := Descriptor{Protocol: ProtocolSSH, Address: "h", Username: "u", Password: "hunter2"}
	cmd := BuildCommand(d, "", CommandOptions{})
	for _, a := range cmd.Args {
		if a == "hunter2" {
			t.Fatalf("password leaked into args: %q", cmd.Args)
		}
	}
}

func TestBuildCommand_HostKeyPolicies(t *testing.T) {
	tests := []struct {
		policy HostKeyPolicy
		want   []string
	}{
		{HostKeyStrict, []string{"-o", "StrictHostKeyChecking=yes"}},
		{HostKeyAcceptNew, []string{"-o", "StrictHostKeyChecking=accept-new"}},
		{HostKeyInsecure, []string{"-o", "StrictHostKeyChecking=no", "-o", "UserKnownHostsFile=" + os.DevNull}},
	}
	for _, tt := range tests {
		cmd := BuildCommand(Descriptor{Protocol: ProtocolSSH, Address: "h"}, "", CommandOptions{HostKeyPolicy: tt.policy, SSHBinary: "/usr/bin/ssh"})
		if cmd.Program != "/usr/bin/ssh" {
			t.Errorf("program = %q", cmd.Program)
		}
		if !reflect.DeepEqual(cmd.Args[:len(tt.want)], tt.want) {
			t.Errorf("policy %s: args = %q, want prefix %q", tt.policy, cmd.Args, tt.want)
		}
	}
}

func TestParseHostKeyPolicy(t *testing.T) {
	for in, want := range map[string]HostKeyPolicy{
		"":           HostKeyInsecure,
		"insecure":   HostKeyInsecure,
		"Accept-New": HostKeyAcceptNew,
		" strict ":   HostKeyStrict,
	} {
		got, err := ParseHostKeyPolicy(in)
		if err != nil || got != want {
			t.Errorf("ParseHostKeyPolicy(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseHostKeyPolicy("yolo"); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func TestCommandString_QuotesArgs(t *testing.T) {
	c := Command{Program: "ssh", Args: []string{"--", "a b"}}
	if got, want := c.String(), `ssh "--" "a b"`; got != want {
		t.Errorf("String() = %s, want %s", got, want)
	}
}
