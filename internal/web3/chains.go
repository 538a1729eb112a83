package web3

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ChainDefinition describes one network the service can talk to.
type ChainDefinition struct {
	Name         string `yaml:"name" json:"name"`
	Type         string `yaml:"type" json:"type"`
	ChainID      uint64 `yaml:"chain_id" json:"chain_id,omitempty"`
	RPCURL       string `yaml:"rpc_url" json:"-"`
	ExplorerURL  string `yaml:"explorer_url" json:"explorer_url,omitempty"`
	NativeSymbol string `yaml:"native_symbol" json:"native_symbol"`
	Testnet      bool   `yaml:"testnet" json:"testnet"`
}

type chainsFile struct {
	Chains []ChainDefinition `yaml:"chains"`
}

// Registry holds the configured networks keyed by name.
type Registry struct {
	order  []string
	chains map[string]ChainDefinition
}

// LoadChains reads the YAML chain definition file.
func LoadChains(path string) (*Registry, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chains file: %w", err)
	}
	var file chainsFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("parse chains file: %w", err)
	}
	return NewRegistry(file.Chains)
}

// NewRegistry validates the definitions and indexes them by name.
func NewRegistry(defs []ChainDefinition) (*Registry, error) {
	reg := &Registry{chains: make(map[string]ChainDefinition, len(defs))}
	for _, def := range defs {
		if def.Name == "" {
			return nil, fmt.Errorf("chain definition missing a name")
		}
		if _, err := ParseChainType(def.Type); err != nil {
			return nil, fmt.Errorf("chain %s: %w", def.Name, err)
		}
		if def.RPCURL == "" {
			return nil, fmt.Errorf("chain %s: rpc_url is required", def.Name)
		}
		if _, exists := reg.chains[def.Name]; exists {
			return nil, fmt.Errorf("duplicate chain definition %s", def.Name)
		}
		reg.chains[def.Name] = def
		reg.order = append(reg.order, def.Name)
	}
	return reg, nil
}

// Lookup returns the definition for a chain name.
func (r *Registry) Lookup(name string) (ChainDefinition, bool) {
	def, ok := r.chains[name]
	return def, ok
}

// List returns the definitions in file order.
func (r *Registry) List() []ChainDefinition {
	out := make([]ChainDefinition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.chains[name])
	}
	return out
}
