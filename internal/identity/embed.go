package identity

import (
	"embed"
	"strings"
)

//go:embed templates/profile.yaml
var templateFS embed.FS

// ProfileTemplate returns the starter profile for owner.
func ProfileTemplate(owner string) ([]byte, error) {
	data, err := templateFS.ReadFile("templates/profile.yaml")
	if err != nil {
		return nil, err
	}
	return []byte(strings.ReplaceAll(string(data), "{{OWNER}}", owner)), nil
}
