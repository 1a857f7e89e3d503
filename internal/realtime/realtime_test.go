package realtime

import "testing"

func TestChangeURL(t *testing.T) {
	tests := []struct {
		base, user, want string
	}{
		{"http://localhost:8080", "u1", "ws://localhost:8080/v1/changes?user=u1"},
		{"https://sync.example.com", "u2", "wss://sync.example.com/v1/changes?user=u2"},
		{"wss://sync.example.com", "u3", "wss://sync.example.com/v1/changes?user=u3"},
	}
	for _, tt := range tests {
		got, err := changeURL(tt.base, tt.user)
		if err != nil {
			t.Errorf("changeURL(%q): %v", tt.base, err)
			continue
		}
		if got != tt.want {
			t.Errorf("changeURL(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}

	if _, err := changeURL("ftp://example.com", "u1"); err == nil {
		t.Error("unsupported scheme should error")
	}
}
