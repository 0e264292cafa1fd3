package memory

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-assess/pkg/adapters/lakehouse"
	"github.com/ekaya-inc/ekaya-assess/pkg/config"
)

// Fixture is the YAML layout accepted by LoadFixture:
//
//	refs:
//	  main:
//	    sales:
//	      - name: orders
//	        columns: [{name: id, type: integer}]
//	        rows: [{id: 1}]
type Fixture struct {
	Refs map[string]map[string][]Table `yaml:"refs"`
}

// ParseFixture builds an adapter from fixture YAML.
func ParseFixture(data []byte) (*Adapter, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}

	a := New()
	for ref, namespaces := range f.Refs {
		a.AddRef(ref)
		for namespace, tables := range namespaces {
			for _, t := range tables {
				if t.Name == "" {
					return nil, fmt.Errorf("fixture ref %s namespace %s: table without name", ref, namespace)
				}
				a.AddTable(ref, namespace, t)
			}
		}
	}
	return a, nil
}

// LoadFixture reads a fixture file.
func LoadFixture(path string) (*Adapter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	return ParseFixture(data)
}

func init() {
	lakehouse.Register(lakehouse.AdapterRegistration{
		Info: lakehouse.AdapterInfo{
			Type:        adapterType,
			DisplayName: "In-memory fixture",
			Description: "Refs and tables loaded from a YAML fixture file",
		},
		Factory: func(_ context.Context, cfg *config.LakehouseConfig, _ *lakehouse.PoolManager, logger *zap.Logger) (lakehouse.Source, error) {
			a, err := LoadFixture(cfg.FixturePath)
			if err != nil {
				return nil, err
			}
			logger.Named("lakehouse-memory").Info("loaded fixture",
				zap.String("path", cfg.FixturePath),
				zap.Int("refs", len(a.refs)))
			return a, nil
		},
	})
}
