package environment

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Marshal encodes env as a tagged document with a single top-level key
// naming the state, e.g. {"Provisioned": {...}}.
func Marshal(env AnyEnvironment) ([]byte, error) {
	if env == nil {
		return nil, fmt.Errorf("cannot marshal nil environment")
	}
	tag := env.State().Tag()
	if tag == "" {
		panic(fmt.Sprintf("environment: no document tag for state %q", env.State()))
	}
	data, err := json.MarshalIndent(map[string]AnyEnvironment{tag: env}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal environment: %w", err)
	}
	return append(data, '\n'), nil
}

// Unmarshal decodes a tagged document produced by Marshal.
// Unknown tags, unknown fields and documents with more than one key are rejected.
func Unmarshal(data []byte) (AnyEnvironment, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse environment document: %w", err)
	}
	if len(doc) != 1 {
		return nil, fmt.Errorf("environment document must have exactly one state key, found %d", len(doc))
	}

	for tag, raw := range doc {
		state, err := StateFromTag(tag)
		if err != nil {
			return nil, err
		}
		env := empty(state)

		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(env); err != nil {
			return nil, fmt.Errorf("failed to decode %s environment: %w", tag, err)
		}
		if err := validateDecoded(env); err != nil {
			return nil, fmt.Errorf("invalid %s environment: %w", tag, err)
		}
		return env, nil
	}
	return nil, fmt.Errorf("environment document is empty")
}

func empty(s State) AnyEnvironment {
	switch s {
	case StateCreated:
		return &Created{}
	case StateProvisioned:
		return &Provisioned{}
	case StateConfigured:
		return &Configured{}
	case StateReleased:
		return &Released{}
	case StateRunning:
		return &Running{}
	case StateDestroyed:
		return &Destroyed{}
	default:
		panic(fmt.Sprintf("environment: unknown state %q", s))
	}
}

func validateDecoded(env AnyEnvironment) error {
	base := env.Base()
	if err := ValidateName(string(base.Name)); err != nil {
		return err
	}
	if err := base.Provider.Validate(); err != nil {
		return err
	}
	if inst, ok := InstanceOf(env); ok && inst.IP == "" {
		return fmt.Errorf("instance_ip is missing")
	}
	return nil
}
