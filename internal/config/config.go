// Package config is used to build the immutable run configuration from flags, env and the config file
package config

import (
	"fmt"
	"os"

	"github.com/blacktop/symp/internal/patches"
	"github.com/blacktop/symp/pkg/macho"
	"github.com/spf13/viper"
)

// Mode is what symp does with the matches it finds.
type Mode int

const (
	ModeLookup Mode = iota
	ModePatch
)

func (m Mode) String() string {
	if m == ModePatch {
		return "patch"
	}
	return "lookup"
}

// Config is the configuration struct
type Config struct {
	Symbol string
	Path   string

	Archs   macho.ArchMask
	Payload *patches.Payload

	Quiet       bool
	Interactive bool
	Dump        bool
	Disass      int

	archNames []string
	patch     string
	binary    string
	hex       string
}

// Mode returns ModePatch when a payload was given.
func (c *Config) Mode() Mode {
	if c.Payload != nil {
		return ModePatch
	}
	return ModeLookup
}

func (c *Config) verify() error {
	if c.Symbol == "" {
		return fmt.Errorf("config: symbol must not be empty")
	}
	if c.Path == "" {
		return fmt.Errorf("config: file must not be empty")
	}
	if fi, err := os.Stat(c.Path); err != nil {
		return fmt.Errorf("config: failed to stat %s: %v", c.Path, err)
	} else if fi.IsDir() {
		return fmt.Errorf("config: %s is a directory", c.Path)
	}

	var sources int
	for _, s := range []string{c.patch, c.binary, c.hex} {
		if s != "" {
			sources++
		}
	}
	if sources > 1 {
		return fmt.Errorf("config: only one of --patch, --binary or --hex can be used")
	}

	for _, name := range c.archNames {
		arch, err := macho.ParseArch(name)
		if err != nil {
			return fmt.Errorf("config: %v", err)
		}
		c.Archs |= arch
	}

	if c.Disass < 0 {
		return fmt.Errorf("config: --disass must be positive")
	}
	if c.Interactive && sources == 0 {
		return fmt.Errorf("config: --interactive only applies when patching")
	}

	var err error
	switch {
	case c.patch != "":
		c.Payload, err = patches.Lookup(c.patch)
	case c.binary != "":
		c.Payload, err = patches.FromFile(c.binary)
	case c.hex != "":
		c.Payload, err = patches.FromHex(c.hex)
	}
	if err != nil {
		return fmt.Errorf("config: %v", err)
	}

	return nil
}

// LoadConfig builds the Config for the <symbol> <file> positional args from the symp.* viper keys
func LoadConfig(args []string) (*Config, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("config: expected <symbol> <file>, got %d argument(s)", len(args))
	}

	c := &Config{
		Symbol:      args[0],
		Path:        args[1],
		Quiet:       viper.GetBool("symp.quiet"),
		Interactive: viper.GetBool("symp.interactive"),
		Dump:        viper.GetBool("symp.dump"),
		Disass:      viper.GetInt("symp.disass"),
		archNames:   viper.GetStringSlice("symp.arch"),
		patch:       viper.GetString("symp.patch"),
		binary:      viper.GetString("symp.binary"),
		hex:         viper.GetString("symp.hex"),
	}

	if err := c.verify(); err != nil {
		return nil, err
	}

	return c, nil
}
