package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"doc-reindexer/internal/errors"
	"doc-reindexer/internal/models"
)

const (
	BackendSolr      = "solr"
	BackendReindexer = "reindexer"

	// WriterJSON is the only response format the clients can parse.
	WriterJSON = "json"
)

type Index struct {
	Backend            string        `mapstructure:"backend"`
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	Path               string        `mapstructure:"path"`
	Collection         string        `mapstructure:"collection"`
	WriterType         string        `mapstructure:"writer_type"`
	Timeout            time.Duration `mapstructure:"timeout"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
}

type Run struct {
	Query              string        `mapstructure:"query"`
	StartOffset        int           `mapstructure:"start_offset"`
	EndOffset          int           `mapstructure:"end_offset"`
	PageSize           int           `mapstructure:"page_size"`
	CommitFrequency    int           `mapstructure:"commit_frequency"`
	RetryDelay         time.Duration `mapstructure:"retry_delay"`
	OptimizeOnComplete bool          `mapstructure:"optimize_on_complete"`
	DriftWindow        time.Duration `mapstructure:"drift_window"`
}

type Log struct {
	Level string `mapstructure:"level"`
}

type Config struct {
	Index Index `mapstructure:"index"`
	Run   Run   `mapstructure:"run"`
	Log   Log   `mapstructure:"log"`

	// FieldRules is filled from the raw "field_rules" entries by Load.
	FieldRules models.FieldRules `mapstructure:"-"`
}

var defaults = map[string]any{
	"index.backend":              BackendSolr,
	"index.host":                 "http://127.0.0.1",
	"index.port":                 8983,
	"index.path":                 "/solr/",
	"index.collection":           "core1",
	"index.writer_type":          WriterJSON,
	"index.timeout":              60 * time.Second,
	"index.insecure_skip_verify": false,
	"run.query":                  "*:*",
	"run.start_offset":           0,
	"run.end_offset":             0,
	"run.page_size":              1000,
	"run.commit_frequency":       10,
	"run.retry_delay":            5 * time.Second,
	"run.optimize_on_complete":   false,
	"run.drift_window":           10 * time.Minute,
	"field_rules":                []string{},
	"log.level":                  "info",
}

// flagKeys maps command line flag names onto config keys.
var flagKeys = map[string]string{
	"backend":              "index.backend",
	"host":                 "index.host",
	"port":                 "index.port",
	"path":                 "index.path",
	"collection":           "index.collection",
	"writer-type":          "index.writer_type",
	"timeout":              "index.timeout",
	"insecure-skip-verify": "index.insecure_skip_verify",
	"query":                "run.query",
	"start":                "run.start_offset",
	"end":                  "run.end_offset",
	"rows":                 "run.page_size",
	"commit-frequency":     "run.commit_frequency",
	"retry-delay":          "run.retry_delay",
	"optimize":             "run.optimize_on_complete",
	"drift-window":         "run.drift_window",
	"field-rule":           "field_rules",
	"log-level":            "log.level",
}

// RegisterFlags declares one flag per config key. Flags only override file and
// environment values when set explicitly.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("backend", BackendSolr, "index backend: solr or reindexer")
	fs.String("host", "http://127.0.0.1", "index host, including scheme for solr")
	fs.Int("port", 8983, "index port")
	fs.String("path", "/solr/", "base path of the index (solr)")
	fs.String("collection", "core1", "collection, core or namespace to reindex")
	fs.String("writer-type", WriterJSON, "response format, only json is supported")
	fs.Duration("timeout", 60*time.Second, "timeout applied to every index call, 0 for none")
	fs.Bool("insecure-skip-verify", false, "skip TLS certificate verification")
	fs.String("query", "*:*", "query selecting the documents to reindex")
	fs.Int("start", 0, "offset to start reindexing from")
	fs.Int("end", 0, "offset to stop reindexing at, 0 for no end")
	fs.Int("rows", 1000, "documents fetched per page")
	fs.Int("commit-frequency", 10, "pages between commits")
	fs.Duration("retry-delay", 5*time.Second, "wait before retrying an empty page")
	fs.Bool("optimize", false, "optimize the index once the run completes")
	fs.Duration("drift-window", 10*time.Minute, "how long seen document ids are remembered")
	fs.StringArray("field-rule", nil, "field edit as field=blank|drop, repeatable, applied in order")
	fs.String("log-level", "info", "log level: debug, info, warn, error")
}

// Load resolves the configuration from flags, environment (REINDEX_*), .env files
// and an optional yaml file. path overrides the default ./config/config.yaml lookup.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, errors.Wrap(err, errors.Config, "load .env")
	}

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("./config")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	v.SetEnvPrefix("REINDEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, errors.Wrap(err, errors.Config, "read config")
		}
	}

	if fs != nil {
		for name, key := range flagKeys {
			f := fs.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, errors.Wrap(err, errors.Config, "bind flag %s", name)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, errors.Config, "unmarshal")
	}
	entries, err := fieldRuleEntries(v)
	if err != nil {
		return nil, err
	}
	rules, err := models.ParseFieldRules(entries)
	if err != nil {
		return nil, err
	}
	cfg.FieldRules = rules

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// fieldRuleEntries accepts a list of "field=op" strings, a comma separated
// string (environment) or a yaml mapping of field to op in the config file.
func fieldRuleEntries(v *viper.Viper) ([]string, error) {
	switch val := v.Get("field_rules").(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(val) == "" {
			return nil, nil
		}
		return strings.Split(val, ","), nil
	case map[string]any:
		// viper lower-cases and dot-splits map keys, which would corrupt field
		// names, so the mapping is read straight from the file
		return fileFieldRules(v.ConfigFileUsed())
	default:
		return cast.ToStringSlice(val), nil
	}
}

// fileFieldRules reads the field_rules mapping of a yaml file, keeping key
// case, dots and the configured order.
func fileFieldRules(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.Config, "read field rules")
	}
	var doc struct {
		FieldRules yaml.Node `yaml:"field_rules"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil || doc.FieldRules.Kind != yaml.MappingNode {
		return nil, errors.New(errors.Config, "field_rules mapping in %s could not be read, use a list of field=blank|drop entries", path)
	}
	content := doc.FieldRules.Content
	out := make([]string, 0, len(content)/2)
	for i := 0; i+1 < len(content); i += 2 {
		out = append(out, content[i].Value+"="+content[i+1].Value)
	}
	return out, nil
}

// Validate reports the first configuration error. Every failure is fatal.
func (c *Config) Validate() error {
	switch c.Index.Backend {
	case BackendSolr, BackendReindexer:
	default:
		return errors.New(errors.Config, "unknown backend %q", c.Index.Backend)
	}
	if c.Index.WriterType != WriterJSON {
		return errors.New(errors.Config, "unsupported writer type %q, only %q is supported", c.Index.WriterType, WriterJSON)
	}
	if c.Index.Host == "" {
		return errors.New(errors.Config, "index host is required")
	}
	if c.Index.Port <= 0 || c.Index.Port > 65535 {
		return errors.New(errors.Config, "invalid index port %d", c.Index.Port)
	}
	if c.Index.Collection == "" {
		return errors.New(errors.Config, "index collection is required")
	}
	if c.Index.Timeout < 0 {
		return errors.New(errors.Config, "timeout must not be negative")
	}
	if c.Run.PageSize < 1 {
		return errors.New(errors.Config, "page size must be positive, got %d", c.Run.PageSize)
	}
	if c.Run.CommitFrequency < 1 {
		return errors.New(errors.Config, "commit frequency must be positive, got %d", c.Run.CommitFrequency)
	}
	if c.Run.StartOffset < 0 || c.Run.EndOffset < 0 {
		return errors.New(errors.Config, "offsets must not be negative")
	}
	if c.Run.EndOffset != 0 && c.Run.EndOffset <= c.Run.StartOffset {
		return errors.New(errors.Config, "end offset %d must be greater than start offset %d", c.Run.EndOffset, c.Run.StartOffset)
	}
	if c.Run.RetryDelay < 0 {
		return errors.New(errors.Config, "retry delay must not be negative")
	}
	return nil
}

// Endpoint is the base url of the collection, e.g. http://127.0.0.1:8983/solr/core1/.
func (i Index) Endpoint() string {
	path := "/" + strings.Trim(i.Path, "/") + "/"
	if path == "//" {
		path = "/"
	}
	return fmt.Sprintf("%s:%d%s%s/", strings.TrimRight(i.Host, "/"), i.Port, path, strings.Trim(i.Collection, "/"))
}

// loadDotEnv copies .env and .env.local values into the environment without
// overriding variables that are already set.
func loadDotEnv() error {
	for _, name := range []string{".env", ".env.local"} {
		values, err := godotenv.Read(name)
		if err != nil {
			continue
		}
		for k, v := range values {
			if _, exists := os.LookupEnv(k); !exists {
				if err := os.Setenv(k, v); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
