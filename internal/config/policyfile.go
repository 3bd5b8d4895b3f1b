package config

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"admission-gateway/middleware/ratelimit/domain"

	"gopkg.in/yaml.v3"
)

type policyFile struct {
	Policies []domain.Policy `yaml:"policies"`
}

// ReadPolicyFile reads a YAML document with a top-level "policies" list.
// Durations use Go syntax ("60s", "15m").
func ReadPolicyFile(path string) ([]domain.Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return DecodePolicies(bytes.NewReader(raw))
}

func DecodePolicies(r io.Reader) ([]domain.Policy, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f policyFile
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode policies: %w", err)
	}
	return f.Policies, nil
}

// EncodePolicies writes policies in the format DecodePolicies reads.
func EncodePolicies(w io.Writer, policies []domain.Policy) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(policyFile{Policies: policies}); err != nil {
		return fmt.Errorf("encode policies: %w", err)
	}
	return enc.Close()
}
