// pkg/registry/schema.go
package registry

// ServiceDescriptor is the content of the service's handler announcement:
// what the service is called, what it costs and which job parameters it
// understands.
type ServiceDescriptor struct {
	Name               string               `json:"name"`
	Picture            string               `json:"picture,omitempty"`
	About              string               `json:"about,omitempty"`
	Amount             string               `json:"amount,omitempty"`
	SupportsEncryption bool                 `json:"supportsEncryption"`
	AcceptsNutZaps     bool                 `json:"acceptsNutZaps"`
	NIP90Params        map[string]ParamSpec `json:"nip90Params,omitempty"`
}

// ParamSpec documents one accepted `param` tag.
type ParamSpec struct {
	Required    bool     `json:"required"`
	Values      []string `json:"values"`
	Description string   `json:"description"`
}

// ProfileMetadata is the kind 0 profile content.
type ProfileMetadata struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name,omitempty"`
	About       string `json:"about,omitempty"`
	Picture     string `json:"picture,omitempty"`
	NIP05       string `json:"nip05,omitempty"`
	LUD16       string `json:"lud16,omitempty"`
}
