package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ProductShard defines a set of products subscribed over a single feed
// connection. Splitting products across connections bounds per-socket
// message volume on busy books.
type ProductShard struct {
	Name     string   `yaml:"name"`
	Products []string `yaml:"products"`
}

// ProductShards represents the full shard configuration.
type ProductShards struct {
	Shards []ProductShard `yaml:"shards"`
}

// LoadProductShards loads shard configuration from the given path.
func LoadProductShards(path string) (*ProductShards, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read shards file: %w", err)
	}
	var cfg ProductShards
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse shards file: %w", err)
	}

	seen := make(map[string]string)
	for _, shard := range cfg.Shards {
		for _, product := range shard.Products {
			if prev, ok := seen[product]; ok {
				return nil, fmt.Errorf("product %s assigned to both shard %s and shard %s", product, prev, shard.Name)
			}
			seen[product] = shard.Name
		}
	}
	return &cfg, nil
}
