// Package config holds the settings of an x2arm run and loads them from a
// JSON file.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/invopop/jsonschema"

	"x2arm/internal/cfg"
	"x2arm/internal/disasm"
)

// Output formats.
const (
	OutputText = "text"
	OutputJSON = "json"
	OutputDOT  = "dot"
)

// Config is the x2arm configuration file. Flags given on the command line
// override the values read from it.
type Config struct {
	Debug         bool   `json:"debug" jsonschema:"title=Debug,description=Enable debug logging"`
	Output        string `json:"output,omitempty" jsonschema:"title=Output,description=Listing format,enum=text,enum=json,enum=dot,default=text"`
	Syntax        string `json:"syntax,omitempty" jsonschema:"title=Syntax,description=Assembly dialect,enum=intel,enum=gnu,enum=go,default=intel"`
	Full          bool   `json:"full,omitempty" jsonschema:"title=Full,description=Show encoded instruction bytes"`
	Symbols       bool   `json:"symbols,omitempty" jsonschema:"title=Symbols,description=Also explore every function symbol in the text section"`
	MaxBlocks     int    `json:"maxBlocks,omitempty" jsonschema:"title=Max Blocks,description=Blocks decoded before exploration stops,minimum=1,default=65536"`
	MaxBlockInsts int    `json:"maxBlockInsts,omitempty" jsonschema:"title=Max Block Instructions,description=Instructions decoded per block,minimum=1,default=65536"`
	Workers       int    `json:"workers,omitempty" jsonschema:"title=Workers,description=Concurrent block decoders,minimum=1,default=1"`
	Timeout       string `json:"timeout,omitempty" jsonschema:"title=Timeout,description=Wall-clock limit for exploration (Go duration; empty for none),example=30s"`
	ProfilePath   string `json:"profilePath,omitempty" jsonschema:"title=Profile Path,description=Path for CPU profile output"`
}

// Default returns the settings used when no file or flag says otherwise.
func Default() Config {
	return Config{
		Output:        OutputText,
		Syntax:        string(disasm.SyntaxIntel),
		MaxBlocks:     cfg.DefaultMaxBlocks,
		MaxBlockInsts: cfg.DefaultMaxBlockInsts,
		Workers:       1,
	}
}

// Load reads a JSON config file on top of the defaults. Unknown fields are
// rejected.
func Load(path string) (Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("config: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return c, fmt.Errorf("config: %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("config: %s: %w", path, err)
	}
	return c, nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if !slices.Contains([]string{OutputText, OutputJSON, OutputDOT}, c.Output) {
		errs = append(errs, fmt.Errorf("output %q: want text, json or dot", c.Output))
	}
	if _, err := disasm.ParseSyntax(c.Syntax); err != nil {
		errs = append(errs, err)
	}
	if c.MaxBlocks < 1 {
		errs = append(errs, fmt.Errorf("maxBlocks must be positive, got %d", c.MaxBlocks))
	}
	if c.MaxBlockInsts < 1 {
		errs = append(errs, fmt.Errorf("maxBlockInsts must be positive, got %d", c.MaxBlockInsts))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if _, err := c.TimeoutDuration(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// TimeoutDuration parses Timeout; zero means no limit.
func (c Config) TimeoutDuration() (time.Duration, error) {
	if c.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("timeout must not be negative, got %s", d)
	}
	return d, nil
}

// DecoderSyntax returns the parsed dialect, defaulting to intel.
func (c Config) DecoderSyntax() disasm.Syntax {
	s, err := disasm.ParseSyntax(c.Syntax)
	if err != nil {
		return disasm.SyntaxIntel
	}
	return s
}

// Options converts the exploration settings for cfg.NewBuilder.
func (c Config) Options(logger *log.Logger) cfg.Options {
	return cfg.Options{
		MaxBlocks:     c.MaxBlocks,
		MaxBlockInsts: c.MaxBlockInsts,
		Workers:       c.Workers,
		Logger:        logger,
	}
}

// Schema returns the indented JSON schema of Config.
func Schema() ([]byte, error) {
	reflector := new(jsonschema.Reflector)
	bts, err := json.MarshalIndent(reflector.Reflect(&Config{}), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return bts, nil
}
