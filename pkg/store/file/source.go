// Package file reads query-group definitions from a local YAML file. The
// file is re-read on every lifecycle poll, so edits land without a restart.
package file

import (
	"context"
	"fmt"

	"github.com/spf13/viper"

	"github.com/querywarden/querywarden/pkg/model"
)

type Source struct {
	path string
}

func NewSource(path string) *Source {
	return &Source{path: path}
}

// Groups parses the file's definitions. Expected shape:
//
//	groups:
//	  - id: analytics
//	    mode: enforced
//	    limits:
//	      cpu: {soft: 0.7, hard: 0.8}
func (s *Source) Groups(_ context.Context) ([]*model.GroupConfig, error) {
	v := viper.New()
	v.SetConfigFile(s.path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read group definitions %s: %w", s.path, err)
	}

	var doc struct {
		Groups []model.GroupDefinition `mapstructure:"groups"`
	}
	if err := v.Unmarshal(&doc); err != nil {
		return nil, fmt.Errorf("decode group definitions %s: %w", s.path, err)
	}

	configs := make([]*model.GroupConfig, 0, len(doc.Groups))
	for _, def := range doc.Groups {
		cfg, err := def.Config()
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}
