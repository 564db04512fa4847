package status

import (
	"strings"
	"testing"
)

func TestView(t *testing.T) {
	tests := []struct {
		name string
		m    Model
		want []string
	}{
		{"open with unread", Model{State: "open", Unread: 3, User: "auth0|a"}, []string{"Live", "3 unread", "auth0|a"}},
		{"backing off", Model{State: "backing_off", Attempts: 2}, []string{"Reconnecting (attempt 2)", "no unread"}},
		{"closed", Model{State: "closed"}, []string{"Offline"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := tt.m.View()
			for _, w := range tt.want {
				if !strings.Contains(v, w) {
					t.Errorf("View() missing %q:\n%s", w, v)
				}
			}
		})
	}
}
