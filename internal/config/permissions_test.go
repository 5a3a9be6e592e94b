package config

import (
	"testing"

	"github.com/af-corp/tiergate/internal/profile"
)

func levelPtr(v int) *int      { return &v }
func thPtr(v float64) *float64 { return &v }

func TestPermissionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     PermissionsConfig
		wantErr bool
	}{
		{"empty", PermissionsConfig{}, false},
		{
			"valid sender override",
			PermissionsConfig{Senders: map[string]*profile.Override{"s": {Level: levelPtr(2)}}},
			false,
		},
		{
			"level out of range",
			PermissionsConfig{Global: &profile.Override{Level: levelPtr(5)}},
			true,
		},
		{
			"threshold out of range",
			PermissionsConfig{Workspace: &profile.Override{EscalationThreshold: thPtr(1.5)}},
			true,
		},
		{
			"negative rate limit",
			PermissionsConfig{Channels: map[string]*profile.Override{"c": {RateLimit: levelPtr(-1)}}},
			true,
		},
		{
			"malformed pattern",
			PermissionsConfig{Global: &profile.Override{DeniedModels: []string{"[bad"}}},
			true,
		},
		{
			"tool min level out of range",
			PermissionsConfig{Tools: map[string]ToolPolicy{"t": {MinLevel: 3}}},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestLayersConversion(t *testing.T) {
	cfg := PermissionsConfig{
		Global:  &profile.Override{Level: levelPtr(1)},
		Senders: map[string]*profile.Override{"s": {Level: levelPtr(2)}},
	}
	layers := cfg.Layers()
	if layers.Global != cfg.Global {
		t.Error("global layer should carry through")
	}
	if layers.Senders["s"] != cfg.Senders["s"] {
		t.Error("sender layer should carry through")
	}
}
