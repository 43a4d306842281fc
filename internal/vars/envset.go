package vars

import (
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/unkn0wn-root/reqstage/internal/errdef"
	"github.com/unkn0wn-root/reqstage/internal/reqmodel"
)

// LoadEnvironments reads a YAML environment file mapping environment
// names to variable maps:
//
//	production:
//	  baseUrl: https://api.example.com
//	staging:
//	  baseUrl: https://staging.example.com
//
// Environments come back sorted by name so callers get a stable order.
func LoadEnvironments(path string) ([]reqmodel.Environment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeFilesystem, err, "read environments %s", path)
	}
	var raw map[string]map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errdef.Wrap(errdef.CodeParse, err, "parse environments %s", path)
	}

	envs := make([]reqmodel.Environment, 0, len(raw))
	for name, values := range raw {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		envs = append(envs, reqmodel.Environment{Name: name, Variables: values})
	}
	sort.Slice(envs, func(i, j int) bool { return envs[i].Name < envs[j].Name })
	return envs, nil
}

// SelectEnv picks the named environment, or the only one present when
// no name is given.
func SelectEnv(envs []reqmodel.Environment, name string) *reqmodel.Environment {
	if name == "" {
		if len(envs) == 1 {
			return &envs[0]
		}
		return nil
	}
	for i := range envs {
		if strings.EqualFold(envs[i].Name, name) {
			return &envs[i]
		}
	}
	return nil
}
