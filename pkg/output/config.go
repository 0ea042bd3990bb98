package output

import (
	"strings"
	"time"

	"github.com/dd0wney/netharness/pkg/validation"
)

// DirTimeFormat names run directories, e.g. 2024-03-01_14:05:09.
const DirTimeFormat = "2006-01-02_15:04:05"

// Config configures a Controller.
type Config struct {
	// Root holds one directory per run.
	Root string
	// Tag is appended to the run directory name.
	Tag string
	// CompressStreams writes streams snappy-framed with a ".sz" suffix.
	CompressStreams bool
	// Now stamps the run directory; defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns the standard output settings.
func DefaultConfig() Config {
	return Config{Root: "output", Tag: "run", Now: time.Now}
}

// ApplyDefaults fills unset fields from DefaultConfig.
func (c *Config) ApplyDefaults() {
	def := DefaultConfig()
	c.Root = validation.DefaultOr(c.Root, def.Root)
	c.Tag = validation.DefaultOr(c.Tag, def.Tag)
	if c.Now == nil {
		c.Now = def.Now
	}
}

// Validate checks the settings.
func (c *Config) Validate() error {
	return validation.NewConfigValidator("output").
		Required("root", c.Root).
		Required("tag", c.Tag).
		Custom("tag", func() error {
			if strings.ContainsAny(c.Tag, `/\`) {
				return errTagSeparator
			}
			return nil
		}).
		Validate()
}
