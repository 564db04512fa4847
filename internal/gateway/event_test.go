package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		want    Event
		wantErr bool
	}{
		{name: "notification", frame: `{"type":"notification","message":"Hi"}`, want: Event{Type: EventNotification, Message: "Hi"}},
		{name: "other type", frame: `{"type":"presence","user":"u1"}`, want: Event{Type: "presence"}},
		{name: "no type", frame: `{"message":"orphan"}`, want: Event{Message: "orphan"}},
		{name: "not json", frame: `hello`, wantErr: true},
		{name: "array", frame: `[1,2]`, wantErr: true},
		{name: "truncated", frame: `{"type":`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Decode([]byte(tt.frame))
			if tt.wantErr {
				require.ErrorIs(t, err, ErrMalformedFrame)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.Type, ev.Type)
			assert.Equal(t, tt.want.Message, ev.Message)
			assert.JSONEq(t, tt.frame, string(ev.Raw))
		})
	}
}

func TestEventField(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"notification","message":"m","meta":{"severity":"high"}}`))
	require.NoError(t, err)
	assert.Equal(t, "high", ev.Field("meta.severity").String())
	assert.False(t, ev.Field("missing").Exists())
}
