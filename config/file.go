package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/funcn-ai/funcn-sub000/core"
	"github.com/funcn-ai/funcn-sub000/model"
	"github.com/funcn-ai/funcn-sub000/retry"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of a configuration file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// File is the declarative form of a call: the static configuration, its
// retry policy and the fallback chain.
//
//	call:
//	  provider: openai
//	  model: gpt-4o-mini
//	  params:
//	    temperature: 0.2
//	retry:
//	  max_attempts: 3
//	  backoff: exponential
//	  initial: 250ms
//	  retry_on: [provider_transport, validation]
//	  reinsert: [validation]
//	fallbacks:
//	  - provider: anthropic
//	    model: claude-sonnet-4-0
type File struct {
	Call      CallSection       `json:"call" yaml:"call" toml:"call"`
	Retry     *RetrySection     `json:"retry,omitempty" yaml:"retry,omitempty" toml:"retry,omitempty"`
	Fallbacks []FallbackSection `json:"fallbacks,omitempty" yaml:"fallbacks,omitempty" toml:"fallbacks,omitempty"`
}

// CallSection holds the static call fields.
type CallSection struct {
	Provider      string        `json:"provider" yaml:"provider" toml:"provider"`
	Model         string        `json:"model" yaml:"model" toml:"model"`
	Params        model.Params  `json:"params" yaml:"params,omitempty" toml:"params,omitempty"`
	Stream        bool          `json:"stream,omitempty" yaml:"stream,omitempty" toml:"stream,omitempty"`
	StreamOptions StreamOptions `json:"stream_options" yaml:"stream_options,omitempty" toml:"stream_options,omitempty"`
	JSONMode      bool          `json:"json_mode,omitempty" yaml:"json_mode,omitempty" toml:"json_mode,omitempty"`
}

// RetrySection describes a retry.Policy.
type RetrySection struct {
	MaxAttempts int           `json:"max_attempts" yaml:"max_attempts" toml:"max_attempts"`
	Backoff     string        `json:"backoff" yaml:"backoff" toml:"backoff"` // exponential | constant | none
	Initial     time.Duration `json:"initial" yaml:"initial" toml:"initial"`
	Max         time.Duration `json:"max" yaml:"max" toml:"max"`
	Multiplier  float64       `json:"multiplier" yaml:"multiplier" toml:"multiplier"`
	Jitter      float64       `json:"jitter" yaml:"jitter" toml:"jitter"`
	// RetryOn lists the error kinds worth another attempt.
	RetryOn []string `json:"retry_on" yaml:"retry_on" toml:"retry_on"`
	// Reinsert lists the error kinds shown to the model on the next attempt.
	Reinsert []string `json:"reinsert,omitempty" yaml:"reinsert,omitempty" toml:"reinsert,omitempty"`
}

// FallbackSection describes one retry.FallbackEntry.
type FallbackSection struct {
	Catch    []string      `json:"catch,omitempty" yaml:"catch,omitempty" toml:"catch,omitempty"`
	Provider string        `json:"provider" yaml:"provider" toml:"provider"`
	Model    string        `json:"model" yaml:"model" toml:"model"`
	Params   *model.Params `json:"params,omitempty" yaml:"params,omitempty" toml:"params,omitempty"`
	Retry    *RetrySection `json:"retry,omitempty" yaml:"retry,omitempty" toml:"retry,omitempty"`
}

var knownKinds = []core.ErrorKind{
	core.KindConfiguration,
	core.KindProviderTransport,
	core.KindValidation,
	core.KindToolExecution,
	core.KindStreamInterrupted,
	core.KindRetryExhausted,
	core.KindFallbackExhausted,
}

// FormatOf infers the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	}
	return "", core.NewConfigurationError("file", fmt.Sprintf("unsupported config file extension %q", filepath.Ext(path)))
}

// LoadFile reads, decodes and normalizes a YAML or TOML file.
func LoadFile(path string) (*File, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data, format)
}

// Parse decodes and normalizes a configuration document.
func Parse(data []byte, format Format) (*File, error) {
	var f File
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil {
			return nil, core.NewConfigurationError("file", fmt.Sprintf("decode yaml: %v", err))
		}
	case FormatTOML:
		md, err := toml.Decode(string(data), &f)
		if err != nil {
			return nil, core.NewConfigurationError("file", fmt.Sprintf("decode toml: %v", err))
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, core.NewConfigurationError("file", fmt.Sprintf("unknown toml keys: %v", undecoded))
		}
	default:
		return nil, core.NewConfigurationError("file", fmt.Sprintf("unknown format %q", format))
	}
	if err := f.Normalize(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Normalize trims and lower-cases names, fills retry defaults and rejects
// unknown error kinds or backoff names.
func (f *File) Normalize() error {
	f.Call.Provider = normalizeName(f.Call.Provider)
	f.Call.Model = strings.TrimSpace(f.Call.Model)
	if f.Call.Provider == "" {
		return core.NewConfigurationError("call.provider", "missing")
	}
	if f.Call.Model == "" {
		return core.NewConfigurationError("call.model", "missing")
	}
	if f.Retry != nil {
		if err := f.Retry.normalize("retry"); err != nil {
			return err
		}
	}
	for i := range f.Fallbacks {
		fb := &f.Fallbacks[i]
		field := fmt.Sprintf("fallbacks[%d]", i)
		fb.Provider = normalizeName(fb.Provider)
		fb.Model = strings.TrimSpace(fb.Model)
		if fb.Provider == "" {
			return core.NewConfigurationError(field+".provider", "missing")
		}
		kinds, err := normalizeKinds(field+".catch", fb.Catch)
		if err != nil {
			return err
		}
		fb.Catch = kinds
		if fb.Retry != nil {
			if err := fb.Retry.normalize(field + ".retry"); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *RetrySection) normalize(field string) error {
	if r.MaxAttempts < 1 {
		r.MaxAttempts = 1
	}
	r.Backoff = normalizeName(r.Backoff)
	switch r.Backoff {
	case "":
		r.Backoff = "exponential"
	case "exponential", "constant", "none":
	default:
		return core.NewConfigurationError(field+".backoff", fmt.Sprintf("unknown backoff %q", r.Backoff))
	}
	if r.Jitter < 0 || r.Jitter > 1 {
		return core.NewConfigurationError(field+".jitter", "must be between 0 and 1")
	}
	if len(r.RetryOn) == 0 {
		r.RetryOn = []string{string(core.KindProviderTransport), string(core.KindStreamInterrupted)}
	}
	var err error
	if r.RetryOn, err = normalizeKinds(field+".retry_on", r.RetryOn); err != nil {
		return err
	}
	r.Reinsert, err = normalizeKinds(field+".reinsert", r.Reinsert)
	return err
}

func normalizeName(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func normalizeKinds(field string, kinds []string) ([]string, error) {
	if len(kinds) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(kinds))
	for _, k := range kinds {
		k = normalizeName(k)
		if !slices.Contains(knownKinds, core.ErrorKind(k)) {
			return nil, core.NewConfigurationError(field, fmt.Sprintf("unknown error kind %q", k))
		}
		if !slices.Contains(out, k) {
			out = append(out, k)
		}
	}
	return out, nil
}

// Static converts the call section. Tools, response models and messages are
// code, so they are never read from files.
func (f *File) Static() Static {
	return Static{
		Provider:      f.Call.Provider,
		Model:         f.Call.Model,
		Params:        f.Call.Params,
		Stream:        f.Call.Stream,
		StreamOptions: f.Call.StreamOptions,
		JSONMode:      f.Call.JSONMode,
	}
}

// Policy converts the retry section; without one the call is tried once.
func (f *File) Policy() retry.Policy {
	if f.Retry == nil {
		return retry.Policy{MaxAttempts: 1}
	}
	return f.Retry.Policy()
}

// Policy converts the section into a retry.Policy.
func (r *RetrySection) Policy() retry.Policy {
	p := retry.Policy{
		MaxAttempts: r.MaxAttempts,
		Retryable:   kindPredicate(r.RetryOn),
	}
	switch r.Backoff {
	case "constant":
		p.Backoff = retry.ConstantBackoff(r.Initial)
	case "none":
		p.Backoff = retry.NoBackoff{}
	default:
		p.Backoff = retry.ExponentialBackoff{Initial: r.Initial, Max: r.Max, Multiplier: r.Multiplier, Jitter: r.Jitter}
	}
	if len(r.Reinsert) > 0 {
		p.Reinsert = kindPredicate(r.Reinsert)
	}
	return p
}

// Chain converts the fallbacks. Entries without their own retry section
// inherit the top-level policy.
func (f *File) Chain() []retry.FallbackEntry {
	if len(f.Fallbacks) == 0 {
		return nil
	}
	chain := make([]retry.FallbackEntry, len(f.Fallbacks))
	for i, fb := range f.Fallbacks {
		entry := retry.FallbackEntry{
			Provider: fb.Provider,
			Model:    fb.Model,
			Params:   fb.Params,
			Policy:   f.Policy(),
		}
		if fb.Retry != nil {
			entry.Policy = fb.Retry.Policy()
		}
		if len(fb.Catch) > 0 {
			entry.Catch = kindPredicate(fb.Catch)
		}
		chain[i] = entry
	}
	return chain
}

// kindPredicate matches errors of the listed kinds. Transport errors only
// match while they are retryable.
func kindPredicate(kinds []string) retry.Predicate {
	preds := make([]retry.Predicate, 0, len(kinds))
	for _, k := range kinds {
		switch core.ErrorKind(k) {
		case core.KindProviderTransport:
			preds = append(preds, retry.IsTransport)
		default:
			preds = append(preds, retry.IsKind(core.ErrorKind(k)))
		}
	}
	return retry.Any(preds...)
}
