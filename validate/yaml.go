package validate

import (
	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/validata-io/validata/dbtable"
	"github.com/validata-io/validata/querybuilder"
	"github.com/validata-io/validata/verrors"
)

// The YAML shape is stable: field order follows the struct declarations, so
// a parse/serialize cycle reproduces the document byte for byte.

type yamlDocument struct {
	Validations []yamlConfig `yaml:"validations"`
}

type yamlConfig struct {
	Type          string          `yaml:"type"`
	SourceConn    string          `yaml:"source_conn"`
	TargetConn    string          `yaml:"target_conn"`
	Source        yamlTable       `yaml:"source"`
	Target        yamlTable       `yaml:"target"`
	Aggregates    []yamlAggregate `yaml:"aggregates,omitempty"`
	GroupColumns  []yamlColumn    `yaml:"grouped_columns,omitempty"`
	PrimaryKeys   []yamlColumn    `yaml:"primary_keys,omitempty"`
	Filters       []yamlFilter    `yaml:"filters,omitempty"`
	Threshold     float64         `yaml:"threshold,omitempty"`
	Limit         int             `yaml:"limit,omitempty"`
	ResultHandler string          `yaml:"result_handler,omitempty"`
}

type yamlTable struct {
	Schema string `yaml:"schema"`
	Table  string `yaml:"table"`
}

type yamlAggregate struct {
	Kind         string `yaml:"kind"`
	SourceColumn string `yaml:"source_column,omitempty"`
	TargetColumn string `yaml:"target_column,omitempty"`
	Alias        string `yaml:"alias"`
}

type yamlColumn struct {
	SourceColumn string `yaml:"source_column"`
	TargetColumn string `yaml:"target_column"`
	Alias        string `yaml:"alias"`
	Cast         string `yaml:"cast,omitempty"`
}

type yamlFilter struct {
	Kind         string      `yaml:"kind"`
	SourceColumn string      `yaml:"source_column,omitempty"`
	TargetColumn string      `yaml:"target_column,omitempty"`
	Value        interface{} `yaml:"value,omitempty"`
	Custom       string      `yaml:"custom,omitempty"`
}

// ToYAML serializes the config as one validation block.
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(toYAMLConfig(c))
}

// ConfigFromYAML parses one validation block and finalizes it, so a config
// loaded from disk passes the same validation as one built in process.
func ConfigFromYAML(data []byte) (*Config, error) {
	var y yamlConfig
	if err := yaml.Unmarshal(data, &y); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "parsing validation yaml"), verrors.ErrConfig)
	}
	return fromYAMLConfig(y)
}

// ConfigsToYAML serializes many configs as one document, the format written
// by run --config-file and read back by run-config.
func ConfigsToYAML(cfgs []*Config) ([]byte, error) {
	doc := yamlDocument{Validations: make([]yamlConfig, len(cfgs))}
	for i, cfg := range cfgs {
		doc.Validations[i] = toYAMLConfig(cfg)
	}
	return yaml.Marshal(doc)
}

// ConfigsFromYAML parses a multi-validation document.
func ConfigsFromYAML(data []byte) ([]*Config, error) {
	var doc yamlDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "parsing validation yaml"), verrors.ErrConfig)
	}
	if len(doc.Validations) == 0 {
		return nil, verrors.Configf("yaml document contains no validations")
	}
	cfgs := make([]*Config, len(doc.Validations))
	for i, y := range doc.Validations {
		cfg, err := fromYAMLConfig(y)
		if err != nil {
			return nil, errors.Wrapf(err, "validation %d", i)
		}
		cfgs[i] = cfg
	}
	return cfgs, nil
}

func toYAMLConfig(c *Config) yamlConfig {
	y := yamlConfig{
		Type:          string(c.Kind),
		SourceConn:    c.SourceConn,
		TargetConn:    c.TargetConn,
		Source:        yamlTable{Schema: c.Source.Schema, Table: c.Source.Table},
		Target:        yamlTable{Schema: c.Target.Schema, Table: c.Target.Table},
		Threshold:     c.Threshold,
		Limit:         c.Limit,
		ResultHandler: c.ResultHandler,
	}
	for _, a := range c.Aggregates {
		y.Aggregates = append(y.Aggregates, yamlAggregate{
			Kind:         string(a.Kind),
			SourceColumn: a.SourceColumn,
			TargetColumn: a.TargetColumn,
			Alias:        a.Alias,
		})
	}
	y.GroupColumns = toYAMLColumns(c.GroupColumns)
	y.PrimaryKeys = toYAMLColumns(c.PrimaryKeys)
	for _, f := range c.Filters {
		y.Filters = append(y.Filters, yamlFilter{
			Kind:         string(f.Kind),
			SourceColumn: f.SourceColumn,
			TargetColumn: f.TargetColumn,
			Value:        f.Value,
			Custom:       f.Custom,
		})
	}
	return y
}

func toYAMLColumns(mappings []ColumnMapping) []yamlColumn {
	var cols []yamlColumn
	for _, m := range mappings {
		cols = append(cols, yamlColumn{
			SourceColumn: m.SourceColumn,
			TargetColumn: m.TargetColumn,
			Alias:        m.Alias,
			Cast:         m.Cast,
		})
	}
	return cols
}

func fromYAMLColumns(cols []yamlColumn) []ColumnMapping {
	var mappings []ColumnMapping
	for _, c := range cols {
		mappings = append(mappings, ColumnMapping{
			SourceColumn: c.SourceColumn,
			TargetColumn: c.TargetColumn,
			Alias:        c.Alias,
			Cast:         c.Cast,
		})
	}
	return mappings
}

func fromYAMLConfig(y yamlConfig) (*Config, error) {
	b := NewConfigBuilder(
		Kind(y.Type),
		y.SourceConn,
		y.TargetConn,
		dbtable.Name{Schema: y.Source.Schema, Table: y.Source.Table},
		dbtable.Name{Schema: y.Target.Schema, Table: y.Target.Table},
	)
	for _, a := range y.Aggregates {
		b.AppendAggregates(AggregateSpec{
			Kind:         querybuilder.AggregateKind(a.Kind),
			SourceColumn: a.SourceColumn,
			TargetColumn: a.TargetColumn,
			Alias:        a.Alias,
		})
	}
	b.AppendGroupColumns(fromYAMLColumns(y.GroupColumns)...)
	b.AppendPrimaryKeys(fromYAMLColumns(y.PrimaryKeys)...)
	for _, f := range y.Filters {
		b.AppendFilters(FilterSpec{
			Kind:         querybuilder.FilterKind(f.Kind),
			SourceColumn: f.SourceColumn,
			TargetColumn: f.TargetColumn,
			Value:        f.Value,
			Custom:       f.Custom,
		})
	}
	b.SetThreshold(y.Threshold).SetLimit(y.Limit).SetResultHandler(y.ResultHandler)
	cfg, err := b.Finalize()
	if err != nil {
		return nil, errors.Wrapf(err, "validating %s block for %s", y.Type, y.Source.Table)
	}
	return cfg, nil
}
