// Copyright 2026 Red Hat, Inc.
// SPDX-License-Identifier: Apache-2.0

package container

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// defaultLinkOverrideFile, when present inside envroot, pins
// envroot/_default to a specific container name instead of the
// lexicographic tie-break among "fedora-toolbox*" names.
const defaultLinkOverrideFile = "default_link_override.yaml"

// defaultLinkOverride is the on-disk shape of defaultLinkOverrideFile.
type defaultLinkOverride struct {
	Name string `yaml:"name"`
}

// loadDefaultLinkOverride reads envroot's override file, if any. A
// missing file is not an error — it means "use the lexicographic
// tie-break", the original behavior.
func loadDefaultLinkOverride(envroot string) (string, error) {
	data, err := os.ReadFile(filepath.Join(envroot, defaultLinkOverrideFile))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	var override defaultLinkOverride
	if err := yaml.Unmarshal(data, &override); err != nil {
		return "", err
	}
	return override.Name, nil
}
