package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SupportedBindingsVersion is the apiVersion accepted in bindings files.
const SupportedBindingsVersion = "duckquery/v1"

// BindingsFile is the YAML document seeding document→provider bindings.
//
//	apiVersion: duckquery/v1
//	kind: Bindings
//	bindings:
//	  - document: file:///reports/daily.sql
//	    provider: warehouse
type BindingsFile struct {
	APIVersion string         `yaml:"apiVersion"`
	Kind       string         `yaml:"kind"`
	Bindings   []BindingEntry `yaml:"bindings"`
}

// BindingEntry binds one document to a provider identity.
type BindingEntry struct {
	Document string `yaml:"document"`
	Provider string `yaml:"provider"`
}

// LoadBindingsFile parses a bindings file. A missing file yields no bindings.
func LoadBindingsFile(path string) ([]BindingEntry, error) {
	data, err := os.ReadFile(path) //nolint:gosec // intentional: reading user-specified config files
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return ParseBindings(bytes.NewReader(data), path)
}

// ParseBindings decodes and validates a bindings document. Unknown fields are
// rejected. name is only used in error messages.
func ParseBindings(r io.Reader, name string) ([]BindingEntry, error) {
	var doc BindingsFile
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	if doc.APIVersion != SupportedBindingsVersion {
		return nil, fmt.Errorf("%s: unsupported apiVersion %q (expected %q)", name, doc.APIVersion, SupportedBindingsVersion)
	}
	if doc.Kind != "Bindings" {
		return nil, fmt.Errorf("%s: unexpected kind %q (expected %q)", name, doc.Kind, "Bindings")
	}

	seen := make(map[string]bool, len(doc.Bindings))
	for i, b := range doc.Bindings {
		doc.Bindings[i].Document = strings.TrimSpace(b.Document)
		doc.Bindings[i].Provider = strings.TrimSpace(b.Provider)
		b = doc.Bindings[i]
		if b.Document == "" || b.Provider == "" {
			return nil, fmt.Errorf("%s: binding %d needs both document and provider", name, i)
		}
		if seen[b.Document] {
			return nil, fmt.Errorf("%s: document %q is bound twice", name, b.Document)
		}
		seen[b.Document] = true
	}
	return doc.Bindings, nil
}
