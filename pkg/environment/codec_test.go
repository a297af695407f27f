package environment

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestMarshal_RoundTripEveryState(t *testing.T) {
	for _, env := range everyState(t) {
		t.Run(string(env.State()), func(t *testing.T) {
			data, err := Marshal(env)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}

			var doc map[string]json.RawMessage
			if err := json.Unmarshal(data, &doc); err != nil {
				t.Fatalf("document is not JSON: %v", err)
			}
			if _, ok := doc[env.State().Tag()]; !ok || len(doc) != 1 {
				t.Errorf("document keys = %v, want only %s", keys(doc), env.State().Tag())
			}

			got, err := Unmarshal(data)
			if err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if !reflect.DeepEqual(got, env) {
				t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, env)
			}
		})
	}
}

func TestMarshal_CreatedHasNoLaterData(t *testing.T) {
	data, err := Marshal(newTestCreated(t))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	for _, field := range []string{"instance_ip", "configured_at", "compose_digest", "started_at", "destroyed_at"} {
		if strings.Contains(string(data), field) {
			t.Errorf("Created document contains %q", field)
		}
	}
}

func TestUnmarshal_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{"Created":`},
		{"empty object", `{}`},
		{"two keys", `{"Created":{},"Running":{}}`},
		{"unknown tag", `{"Exploded":{"name":"demo"}}`},
		{"unknown field", `{"Created":{"name":"demo","instance_ip":"10.0.0.1","provider":{"kind":"lxd","lxd":{"profile_name":"p"}}}}`},
		{"bad name", `{"Created":{"name":"Bad Name","provider":{"kind":"lxd","lxd":{"profile_name":"p"}}}}`},
		{"missing ip", `{"Provisioned":{"name":"demo","provider":{"kind":"lxd","lxd":{"profile_name":"p"}}}}`},
		{"array", `[]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Unmarshal([]byte(tt.doc)); err == nil {
				t.Error("Unmarshal() expected error")
			}
		})
	}
}

func keys(m map[string]json.RawMessage) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
