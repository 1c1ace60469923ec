package termbridge

import (
	"errors"
	"testing"
)

func TestNormalize_LocalDropsRemoteFields(t *testing.T) {
	d, err := Descriptor{Protocol: "local", Address: "h", PrivateKey: "k"}.Normalize()
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if d.Protocol != ProtocolNone || d.Address != "" || d.HasKey() {
		t.Errorf("got %+v, want bare local descriptor", d)
	}
	if d.Target() != "local" {
		t.Errorf("Target() = %q", d.Target())
	}
}

func TestNormalize_SSH(t *testing.T) {
	d, err := Descriptor{Protocol: "Ssh", Address: " [fe80::1] ", Username: " ops ", Port: 22}.Normalize()
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if d.Protocol != ProtocolSSH || d.Address != "fe80::1" || d.Username != "ops" {
		t.Errorf("got %+v", d)
	}
	if got := d.Target(); got != "ops@fe80::1:22" {
		t.Errorf("Target() = %q", got)
	}
}

func TestNormalize_Rejects(t *testing.T) {
	tests := map[string]Descriptor{
		"empty address":      {Protocol: ProtocolSSH},
		"blank address":      {Protocol: ProtocolSSH, Address: "   "},
		"option address":     {Protocol: ProtocolSSH, Address: "-oProxyCommand=id"},
		"option username":    {Protocol: ProtocolSSH, Address: "h", Username: "-F/etc/passwd"},
		"newline in address": {Protocol: ProtocolSSH, Address: "h\nx"},
		"nul in username":    {Protocol: ProtocolSSH, Address: "h", Username: "a\x00b"},
		"at in username":     {Protocol: ProtocolSSH, Address: "h", Username: "a@b"},
		"port out of range":  {Protocol: ProtocolSSH, Address: "h", Port: 70000},
		"negative port":      {Protocol: ProtocolSSH, Address: "h", Port: -1},
		"empty bracket ipv6": {Protocol: ProtocolSSH, Address: "[]"},
	}
	for name, d := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := d.Normalize()
			if !errors.Is(err, ErrInvalidDescriptor) {
				t.Errorf("err = %v, want ErrInvalidDescriptor", err)
			}
		})
	}
}

func TestNormalize_MetacharactersAllowed(t *testing.T) {
	d, err := Descriptor{Protocol: ProtocolSSH, Address: "x; rm -rf /"}.Normalize()
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if d.Address != "x; rm -rf /" {
		t.Errorf("address = %q", d.Address)
	}
}
