package bootstrap

import (
	"errors"
	"strings"
	"testing"
)

func TestResolve(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		name    string
		host    string
		want    []string
		wantErr bool
	}{
		{
			name: "google",
			host: "dns.google",
			want: []string{"8.8.8.8", "8.8.4.4"},
		},
		{
			name: "cloudflare",
			host: "one.one.one.one",
			want: []string{"1.1.1.1", "1.0.0.1"},
		},
		{
			name: "quad9",
			host: "dns.quad9.net",
			want: []string{"9.9.9.9", "149.112.112.112"},
		},
		{
			name:    "invalid",
			host:    strings.Repeat("x", 300),
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, err := c.Resolve(tt.host)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Resolve() expected error")
				}
				var be *Error
				if !errors.As(err, &be) {
					t.Errorf("Resolve() error = %T, want *Error", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if addr.Port() != 0 {
				t.Errorf("Resolve() port = %d, want 0", addr.Port())
			}

			got := addr.Addr().String()
			for _, want := range tt.want {
				if got == want {
					return
				}
			}
			t.Errorf("Resolve() = %s, want one of %v", got, tt.want)
		})
	}
}
