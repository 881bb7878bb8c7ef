package sandbox

import "testing"

func TestHostMatchesPattern(t *testing.T) {
	t.Parallel()

	cases := []struct {
		host, port, pattern string
		want                bool
	}{
		{"github.com", "443", "github.com", true},
		{"GitHub.com", "443", "github.com", true},
		{"github.com.", "443", "github.com", true},
		{"api.github.com", "443", "github.com", false},
		{"api.github.com", "443", "*.github.com", true},
		{"github.com", "443", "*.github.com", true},
		{"evilgithub.com", "443", "*.github.com", false},
		{"anything.at.all", "9999", "*", true},
		{"example.com", "8080", "example.com:8080", true},
		{"example.com", "443", "example.com:8080", false},
	}

	for _, c := range cases {
		got := hostMatchesPattern(c.host, c.port, c.pattern)
		if got != c.want {
			t.Errorf("hostMatchesPattern(%q, %q, %q) = %v, want %v", c.host, c.port, c.pattern, got, c.want)
		}
	}
}

func TestNetworkProxy_IsAllowed(t *testing.T) {
	t.Parallel()

	p := &NetworkProxy{filter: &NetworkFilter{
		AllowHosts: []string{"*.npmjs.org", "github.com"},
		DenyHosts:  []string{"registry.npmjs.org"},
	}}

	if p.isAllowed("registry.npmjs.org", "443") {
		t.Error("deny rule must take precedence over a matching allow rule")
	}
	if !p.isAllowed("cdn.npmjs.org", "443") {
		t.Error("cdn.npmjs.org should match *.npmjs.org")
	}
	if !p.isAllowed("github.com", "443") {
		t.Error("github.com should match the exact allow entry")
	}
	if p.isAllowed("evil.example.com", "443") {
		t.Error("hosts outside AllowHosts must be rejected once AllowHosts is non-empty")
	}
}

func TestNetworkProxy_IsAllowed_emptyAllowList(t *testing.T) {
	t.Parallel()

	p := &NetworkProxy{filter: &NetworkFilter{}}
	if !p.isAllowed("anything.example.com", "443") {
		t.Error("empty AllowHosts should admit every destination not explicitly denied")
	}

	p = &NetworkProxy{}
	if !p.isAllowed("anything.example.com", "443") {
		t.Error("a nil filter should admit every destination")
	}
}
