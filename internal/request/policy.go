package request

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"example.com/edidgen/internal/edid"
)

// Policy selects how the DSC flag is decided.
type Policy string

const (
	// PolicyAuto generates without DSC and retries with it when the first
	// pass reports DSC as required.
	PolicyAuto Policy = "auto"
	PolicyOn   Policy = "on"
	PolicyOff  Policy = "off"
)

// ParsePolicy accepts auto/on/off and their boolean spellings. Empty means
// auto.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return PolicyAuto, nil
	case "on", "true", "yes":
		return PolicyOn, nil
	case "off", "false", "no":
		return PolicyOff, nil
	}
	return "", fmt.Errorf("unknown dsc policy %q", s)
}

// UnmarshalJSON accepts either a policy string or a boolean.
func (p *Policy) UnmarshalJSON(b []byte) error {
	var flag bool
	if err := json.Unmarshal(b, &flag); err == nil {
		*p = PolicyOff
		if flag {
			*p = PolicyOn
		}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParsePolicy(s)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// UnmarshalYAML mirrors UnmarshalJSON.
func (p *Policy) UnmarshalYAML(n *yaml.Node) error {
	v, err := ParsePolicy(n.Value)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Run generates req under policy. With PolicyAuto the request is
// regenerated with DSC on when the first result says it is required.
func Run(g *edid.Generator, req edid.Request, policy Policy) *edid.Result {
	switch policy {
	case PolicyOn:
		req.DSC = true
		return g.Generate(req)
	case PolicyOff:
		req.DSC = false
		return g.Generate(req)
	}
	req.DSC = false
	res := g.Generate(req)
	if !res.Metadata.DSCRequired {
		return res
	}
	req.DSC = true
	return g.Generate(req)
}
