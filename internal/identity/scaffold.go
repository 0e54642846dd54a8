package identity

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ScaffoldResult reports whether the profile was written or left alone.
type ScaffoldResult struct {
	Path    string
	Created bool
}

// ScaffoldProfile writes a starter profile for owner into dir as
// <owner>.yaml. An existing file is kept unless force is set.
func ScaffoldProfile(dir, owner string, force bool) (*ScaffoldResult, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" || strings.ContainsAny(owner, `/\`) {
		return nil, fmt.Errorf("invalid owner %q", owner)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}
	res := &ScaffoldResult{Path: filepath.Join(dir, owner+".yaml")}
	if !force {
		if _, err := os.Stat(res.Path); err == nil {
			return res, nil
		}
	}
	data, err := ProfileTemplate(owner)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(res.Path, data, 0o600); err != nil {
		return nil, err
	}
	res.Created = true
	return res, nil
}
