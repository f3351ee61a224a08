package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// yamlTaskFile is the on-disk shape of the optional convenience loader: a
// nested representation of the same flat key/value map spec.md §6 defines,
// for operators who would rather hand-edit a file than a flat map. It is
// layered strictly underneath LoadFromMap — ToFlatMap produces exactly the
// keys LoadFromMap already understands, so there is only one parsing path.
type yamlTaskFile struct {
	BaseURL string            `yaml:"baseUrl"`
	Auth    map[string]string `yaml:"auth"`
	Proxy   map[string]string `yaml:"proxy"`
	Global  map[string]string `yaml:"global"`
	APIs    []map[string]string `yaml:"apis"`
}

// LoadTaskFile reads a YAML task definition and flattens it into the
// api{N}.-prefixed key/value map LoadFromMap expects.
func LoadTaskFile(data []byte) (*TaskConfig, error) {
	var file yamlTaskFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse task yaml: %w", err)
	}

	values := map[string]string{
		"http.api.base.url": file.BaseURL,
		"apis.num":          fmt.Sprintf("%d", len(file.APIs)),
	}
	for k, v := range file.Global {
		values[k] = v
	}
	for k, v := range file.Auth {
		values["auth."+k] = v
	}
	for k, v := range file.Proxy {
		values["proxy."+k] = v
	}
	for i, api := range file.APIs {
		prefix := fmt.Sprintf("api%d.", i+1)
		for k, v := range api {
			values[prefix+k] = v
		}
	}

	return LoadFromMap(values)
}
