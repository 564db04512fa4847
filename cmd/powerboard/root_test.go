package main

import (
	"context"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/powerboard/tui/internal/config"
)

func TestRootCommands(t *testing.T) {
	cmd := newRootCmd()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	sort.Strings(names)
	want := []string{"gateway", "login", "logout", "notifications", "tui"}
	if len(names) != len(want) {
		t.Fatalf("commands = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("commands[%d] = %q, want %q", i, names[i], want[i])
		}
	}
	for _, flag := range []string{"config", "log-level", "token"} {
		if cmd.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("missing persistent flag --%s", flag)
		}
	}
}

func TestReconnectPolicy(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.GatewayConfig
		// first is the expected first delay; zero means "check bounds only".
		first time.Duration
	}{
		{"fixed", config.GatewayConfig{ReconnectPolicy: "fixed", ReconnectDelay: 3 * time.Second}, 3 * time.Second},
		{"fixed with budget", config.GatewayConfig{ReconnectPolicy: "fixed", ReconnectDelay: 2 * time.Second, MaxElapsed: time.Minute}, 2 * time.Second},
		{"exponential", config.GatewayConfig{ReconnectPolicy: "exponential", ReconnectDelay: time.Second, ReconnectMaxDelay: 10 * time.Second}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := reconnectPolicy(tt.cfg)
			b.Reset()
			for i := 0; i < 5; i++ {
				d := b.NextBackOff()
				if d == backoff.Stop {
					t.Fatalf("attempt %d: policy gave up", i)
				}
				if tt.first != 0 && d != tt.first {
					t.Errorf("attempt %d: delay = %v, want %v", i, d, tt.first)
				}
				if tt.first == 0 && (d <= 0 || d > tt.cfg.ReconnectMaxDelay*3/2) {
					t.Errorf("attempt %d: delay = %v out of bounds", i, d)
				}
			}
		})
	}
}

func TestOpenClientStaticToken(t *testing.T) {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user-7"}).SignedString([]byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{Storage: config.StorageConfig{Path: filepath.Join(t.TempDir(), "client.db")}}

	cl, err := openClient(cfg, tok)
	if err != nil {
		t.Fatalf("openClient() error = %v", err)
	}
	defer cl.Close()

	if cl.loader != nil {
		t.Error("loader should be nil with a fixed token")
	}
	if err := cl.load(context.Background()); err != nil {
		t.Errorf("load() error = %v", err)
	}
	got, err := cl.token(context.Background())
	if err != nil || got != tok {
		t.Errorf("token() = %q, %v, want the fixed token", got, err)
	}
	if u := cl.user(); u != "user-7" {
		t.Errorf("user() = %q, want user-7", u)
	}
}

func TestOpenClientProvider(t *testing.T) {
	cfg := &config.Config{Storage: config.StorageConfig{Path: filepath.Join(t.TempDir(), "client.db")}}
	cl, err := openClient(cfg, "")
	if err != nil {
		t.Fatalf("openClient() error = %v", err)
	}
	defer cl.Close()

	if cl.loader == nil {
		t.Fatal("loader should be the provider")
	}
	if !cl.loader.Loading() {
		t.Error("provider should be loading before load()")
	}
	if err := cl.load(context.Background()); err != nil {
		t.Fatalf("load() error = %v", err)
	}
	if cl.loader.Loading() {
		t.Error("provider still loading after load()")
	}
	if _, err := cl.token(context.Background()); err == nil {
		t.Error("token() should fail without a stored credential")
	}
	if u := cl.user(); u != "" {
		t.Errorf("user() = %q, want empty", u)
	}
}
