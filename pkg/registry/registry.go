// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadDescriptor reads a descriptor override file.
func LoadDescriptor(path string) (*ServiceDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var d ServiceDescriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse descriptor %s: %w", path, err)
	}
	return &d, nil
}

// MergeDefaults fills every empty field of d from def. Params present in
// def but missing in d are added.
func (d *ServiceDescriptor) MergeDefaults(def ServiceDescriptor) {
	if d.Name == "" {
		d.Name = def.Name
	}
	if d.Picture == "" {
		d.Picture = def.Picture
	}
	if d.About == "" {
		d.About = def.About
	}
	if d.Amount == "" {
		d.Amount = def.Amount
	}
	for name, param := range def.NIP90Params {
		if d.NIP90Params == nil {
			d.NIP90Params = make(map[string]ParamSpec)
		}
		if _, ok := d.NIP90Params[name]; !ok {
			d.NIP90Params[name] = param
		}
	}
}

// JSON renders the descriptor as announcement content.
func (d ServiceDescriptor) JSON() (string, error) {
	if d.NIP90Params != nil {
		params := make(map[string]ParamSpec, len(d.NIP90Params))
		for name, param := range d.NIP90Params {
			if param.Values == nil {
				param.Values = []string{}
			}
			params[name] = param
		}
		d.NIP90Params = params
	}
	b, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
