// Package config holds the daemon configuration loaded from TOML.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/geodata/featuretxn/internal/logger"
)

const (
	defaultAddr             = "127.0.0.1:8080"
	defaultStorePath        = "featuretxn.db"
	defaultOperationTimeout = 2500 * time.Millisecond
	defaultShutdownTimeout  = 10 * time.Second
	defaultWriteRateLimit   = 100
	defaultWriteBurst       = 200
)

// Backend names the record store implementation.
const (
	BackendMemory    = "memory"
	BackendCouchbase = "couchbase"
)

// Duration is a time.Duration which decodes from strings like "2.5s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return errors.WithStack(err)
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// CollectionConfig declares a collection created at startup.
type CollectionConfig struct {
	ID        string `toml:"id"`
	Versioned bool   `toml:"versioned"`
}

// CouchbaseConfig holds the settings of the couchbase backend.
type CouchbaseConfig struct {
	ConnStr         string `toml:"conn-str"`
	Username        string `toml:"username"`
	Password        string `toml:"password"`
	Bucket          string `toml:"bucket"`
	Scope           string `toml:"scope"`
	Collection      string `toml:"collection"`
	DurabilityLevel string `toml:"durability-level"`
}

// Config is the daemon configuration.
type Config struct {
	Addr             string   `toml:"addr"`
	StorePath        string   `toml:"store-path"`
	Backend          string   `toml:"backend"`
	OperationTimeout Duration `toml:"operation-timeout"`
	ShutdownTimeout  Duration `toml:"shutdown-timeout"`

	// WriteRateLimit defaults to 100 requests per second when absent from
	// the file. An explicit 0 disables the limiter.
	WriteRateLimit float64 `toml:"write-rate-limit"`
	WriteBurst     int     `toml:"write-burst"`

	// TransactionExpiry disposes transactions older than this. Zero keeps
	// them until they are disposed by a client.
	TransactionExpiry Duration `toml:"transaction-expiry"`
	CleanupQueueSize  uint32   `toml:"cleanup-queue-size"`

	Log         logger.Config      `toml:"log"`
	Couchbase   CouchbaseConfig    `toml:"couchbase"`
	Collections []CollectionConfig `toml:"collection"`

	// WarningMsgs collects the problems found while loading which do not
	// prevent startup.
	WarningMsgs []string `toml:"-"`
}

// NewConfig returns a Config holding the defaults.
func NewConfig() *Config {
	c := &Config{}
	c.adjust(nil)
	return c
}

// Load reads the TOML file at path on top of the defaults. An empty path
// yields the defaults.
func Load(path string) (*Config, error) {
	c := &Config{}
	var meta *toml.MetaData
	if path != "" {
		md, err := toml.DecodeFile(path, c)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load config %s", path)
		}
		meta = &md
	}

	c.adjust(meta)
	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

func adjustString(v *string, defValue string) {
	if len(*v) == 0 {
		*v = defValue
	}
}

func adjustDuration(v *Duration, defValue time.Duration) {
	if v.Duration == 0 {
		v.Duration = defValue
	}
}

func isDefined(meta *toml.MetaData, key string) bool {
	return meta != nil && meta.IsDefined(key)
}

func (c *Config) adjust(meta *toml.MetaData) {
	if meta != nil {
		undecoded := meta.Undecoded()
		if len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, key := range undecoded {
				keys = append(keys, key.String())
			}
			c.WarningMsgs = append(c.WarningMsgs,
				"config contains undefined items: "+strings.Join(keys, ", "))
		}
	}

	adjustString(&c.Addr, defaultAddr)
	adjustString(&c.StorePath, defaultStorePath)
	adjustString(&c.Backend, BackendMemory)
	adjustDuration(&c.OperationTimeout, defaultOperationTimeout)
	adjustDuration(&c.ShutdownTimeout, defaultShutdownTimeout)
	if !isDefined(meta, "write-rate-limit") {
		c.WriteRateLimit = defaultWriteRateLimit
	}
	if !isDefined(meta, "write-burst") {
		c.WriteBurst = defaultWriteBurst
	}
	adjustString(&c.Log.Level, "info")
	adjustString(&c.Log.Format, "json")
	adjustString(&c.Log.Output, "stderr")
}

// Validate checks the settings which have no usable default.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendCouchbase:
		if c.Couchbase.ConnStr == "" || c.Couchbase.Bucket == "" {
			return errors.New("couchbase backend requires conn-str and bucket")
		}
	default:
		return errors.Errorf("unknown backend %q", c.Backend)
	}

	seen := make(map[string]struct{}, len(c.Collections))
	for _, col := range c.Collections {
		if col.ID == "" {
			return errors.New("collection without id")
		}
		if _, ok := seen[col.ID]; ok {
			return errors.Errorf("duplicate collection %s", col.ID)
		}
		seen[col.ID] = struct{}{}
	}

	if c.TransactionExpiry.Duration < 0 {
		return errors.New("transaction expiry must not be negative")
	}

	if c.WriteRateLimit < 0 || c.WriteBurst < 0 {
		return errors.New("write rate limit must not be negative")
	}

	return nil
}

func (c *Config) String() string {
	return fmt.Sprintf("addr=%s backend=%s store=%s op-timeout=%s collections=%d",
		c.Addr, c.Backend, c.StorePath, c.OperationTimeout, len(c.Collections))
}
