package config

import (
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Seed is the start-up catalog: sellers and the items they list.
type Seed struct {
	Sellers []SeedSeller `koanf:"sellers"`
	Items   []SeedItem   `koanf:"items"`
}

type SeedSeller struct {
	ID          int64  `koanf:"id"`
	UserID      int64  `koanf:"user_id"`
	DisplayName string `koanf:"display_name"`
}

type SeedItem struct {
	ID          int64    `koanf:"id"`
	SellerID    int64    `koanf:"seller_id"`
	Name        string   `koanf:"name"`
	Description string   `koanf:"description"`
	MenuName    string   `koanf:"menu_name"`
	Tags        []string `koanf:"tags"`
	PriceCents  int64    `koanf:"price_cents"`
	Available   *bool    `koanf:"available"`
	// Quantity is omitted for untracked items.
	Quantity *int `koanf:"quantity"`
}

func LoadSeed(path string) (Seed, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return Seed{}, fmt.Errorf("load seed %s: %w", path, err)
	}
	var s Seed
	if err := k.Unmarshal("", &s); err != nil {
		return Seed{}, fmt.Errorf("unmarshal seed: %w", err)
	}

	sellers := make(map[int64]bool, len(s.Sellers))
	for _, sl := range s.Sellers {
		if sl.ID <= 0 || sl.UserID <= 0 {
			return Seed{}, fmt.Errorf("seed: seller %d needs id and user_id", sl.ID)
		}
		sellers[sl.ID] = true
	}
	for _, it := range s.Items {
		if it.ID <= 0 {
			return Seed{}, fmt.Errorf("seed: item %q needs an id", it.Name)
		}
		if !sellers[it.SellerID] {
			return Seed{}, fmt.Errorf("seed: item %d references unknown seller %d", it.ID, it.SellerID)
		}
		if it.Quantity != nil && *it.Quantity < 0 {
			return Seed{}, fmt.Errorf("seed: item %d has negative quantity", it.ID)
		}
	}
	return s, nil
}
