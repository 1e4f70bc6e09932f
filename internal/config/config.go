package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/gookit/goutil/fsutil"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the endpoint configuration is read from without --config
const DefaultPath = "~/.config/synthmerge.yaml"

// ForbiddenChars may not appear in endpoint or variant names because they
// are part of the merged label syntax
const ForbiddenChars = "()|,"

// Kind selects the wire protocol of an endpoint
type Kind string

const (
	KindOpenAI    Kind = "openai"
	KindAnthropic Kind = "anthropic"
	KindPatchpal  Kind = "patchpal"
	KindOllama    Kind = "ollama"
)

// ConfigError reports a configuration problem found before any work starts
type ConfigError struct {
	Path   string
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config %s: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("config %s: %s %s", e.Path, e.Field, e.Reason)
}

// Context switches how the prompt is framed for an endpoint or variant.
// Unset fields inherit from the endpoint; a flag may be set on one level only.
type Context struct {
	WithSystemMessage *bool `yaml:"with_system_message"`
	NoDiff            *bool `yaml:"no_diff"`
}

// Variant is a named parameter overlay turning one endpoint into several requests
type Variant struct {
	Name    string         `yaml:"name" validate:"excludesall=()0x7C0x2C"`
	Context *Context       `yaml:"context"`
	JSON    map[string]any `yaml:"json"`
}

// Protocol is the kind specific part of an endpoint. The set of
// implementations is closed: OpenAI, Anthropic, Patchpal and Ollama.
type Protocol interface {
	Kind() Kind
	variants() []Variant
}

// OpenAI is a chat completions (or legacy completions with NoChat) endpoint
type OpenAI struct {
	Variants []Variant `yaml:"variants" validate:"unique=Name,dive"`
	NoChat   bool      `yaml:"no_chat"`
}

// Anthropic is a messages API endpoint
type Anthropic struct {
	Variants []Variant `yaml:"variants" validate:"unique=Name,dive"`
}

// Patchpal is a JSON-RPC endpoint returning ranked candidates directly
type Patchpal struct{}

// Ollama is an ollama server, queried through its native API
type Ollama struct {
	Variants []Variant `yaml:"variants" validate:"unique=Name,dive"`
	NoChat   bool      `yaml:"no_chat"`
}

func (*OpenAI) Kind() Kind    { return KindOpenAI }
func (*Anthropic) Kind() Kind { return KindAnthropic }
func (*Patchpal) Kind() Kind  { return KindPatchpal }
func (*Ollama) Kind() Kind    { return KindOllama }

func (p *OpenAI) variants() []Variant    { return p.Variants }
func (p *Anthropic) variants() []Variant { return p.Variants }
func (*Patchpal) variants() []Variant    { return nil }
func (p *Ollama) variants() []Variant    { return p.Variants }

// Endpoint is one configured completion provider. Durations are in seconds
// (timeout) and milliseconds (delay, max_delay, wait).
type Endpoint struct {
	Name               string         `yaml:"name" validate:"required,excludesall=()0x7C0x2C"`
	URL                string         `yaml:"url" validate:"required,url"`
	Timeout            uint64         `yaml:"timeout" default:"600" validate:"min=1"`
	Retries            uint32         `yaml:"retries" default:"100" validate:"min=1"`
	Delay              uint64         `yaml:"delay" default:"10000"`
	MaxDelay           uint64         `yaml:"max_delay" default:"600000" validate:"gtefield=Delay"`
	Wait               uint64         `yaml:"wait"`
	RootCertificatePEM string         `yaml:"root_certificate_pem"`
	APIKeyFile         string         `yaml:"api_key_file"`
	APIKeyEnv          string         `yaml:"api_key_env"`
	Context            *Context       `yaml:"context"`
	JSON               map[string]any `yaml:"json"`
	Protocol           Protocol       `yaml:"-" validate:"-"`
}

// UnmarshalYAML decodes the common fields, applies defaults and then decodes
// the protocol part selected by the type key
func (e *Endpoint) UnmarshalYAML(node *yaml.Node) error {
	type rawEndpoint Endpoint
	var raw struct {
		rawEndpoint `yaml:",inline"`
		Type        Kind `yaml:"type"`
	}
	if err := defaults.Set(&raw.rawEndpoint); err != nil {
		return errors.Wrap(err, "set endpoint defaults failed")
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	var protocol Protocol
	switch raw.Type {
	case KindOpenAI:
		protocol = &OpenAI{}
	case KindAnthropic:
		protocol = &Anthropic{}
	case KindPatchpal:
		protocol = &Patchpal{}
	case KindOllama:
		protocol = &Ollama{}
	case "":
		return errors.Errorf("line %d: endpoint %q has no type", node.Line, raw.Name)
	default:
		return errors.Errorf("line %d: endpoint %q has unknown type %q", node.Line, raw.Name, raw.Type)
	}
	if err := node.Decode(protocol); err != nil {
		return err
	}

	*e = Endpoint(raw.rawEndpoint)
	e.Protocol = protocol
	return nil
}

// Variants returns the configured variants, or one unnamed variant when the
// endpoint has none
func (e *Endpoint) Variants() []Variant {
	if vs := e.Protocol.variants(); len(vs) > 0 {
		return vs
	}
	return []Variant{{}}
}

// Label names a variant of the endpoint: "Name" or "Name (variant)"
func (e *Endpoint) Label(v Variant) string {
	if v.Name == "" {
		return e.Name
	}
	return fmt.Sprintf("%s (%s)", e.Name, v.Name)
}

// PromptContext is the effective context of one variant
type PromptContext struct {
	WithSystemMessage bool
	NoDiff            bool
}

// EffectiveContext combines the endpoint and variant context flags
func (e *Endpoint) EffectiveContext(v Variant) PromptContext {
	var r PromptContext
	for _, c := range []*Context{e.Context, v.Context} {
		if c == nil {
			continue
		}
		if c.WithSystemMessage != nil {
			r.WithSystemMessage = *c.WithSystemMessage
		}
		if c.NoDiff != nil {
			r.NoDiff = *c.NoDiff
		}
	}
	return r
}

// Overlay returns the endpoint JSON overlay merged with the variant one.
// Key collisions are rejected at load time.
func (e *Endpoint) Overlay(v Variant) map[string]any {
	out := make(map[string]any, len(e.JSON)+len(v.JSON))
	for k, val := range e.JSON {
		out[k] = val
	}
	for k, val := range v.JSON {
		out[k] = val
	}
	return out
}

func (e *Endpoint) TimeoutDuration() time.Duration  { return time.Duration(e.Timeout) * time.Second }
func (e *Endpoint) DelayDuration() time.Duration    { return time.Duration(e.Delay) * time.Millisecond }
func (e *Endpoint) MaxDelayDuration() time.Duration { return time.Duration(e.MaxDelay) * time.Millisecond }
func (e *Endpoint) WaitDuration() time.Duration     { return time.Duration(e.Wait) * time.Millisecond }

// APIKey returns the trimmed contents of api_key_file, or the value of the
// api_key_env variable. An endpoint without either has no key.
func (e *Endpoint) APIKey() (string, error) {
	switch {
	case e.APIKeyFile != "":
		data, err := os.ReadFile(fsutil.ExpandPath(e.APIKeyFile))
		if err != nil {
			return "", errors.Wrapf(err, "failed to read API key file of %s", e.Name)
		}
		return strings.TrimSpace(string(data)), nil
	case e.APIKeyEnv != "":
		key, ok := os.LookupEnv(e.APIKeyEnv)
		if !ok {
			return "", errors.Errorf("environment variable %s for the API key of %s is not set", e.APIKeyEnv, e.Name)
		}
		return strings.TrimSpace(key), nil
	}
	return "", nil
}

// Config is the list of endpoints queried for every conflict
type Config struct {
	Endpoints []Endpoint `yaml:"endpoints" validate:"required,min=1,unique=Name,dive"`
	Path      string     `yaml:"-"`
}

// Load reads and validates the configuration file at path; "~" is expanded
func Load(path string) (*Config, error) {
	path = fsutil.ExpandPath(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", path)
	}
	return Parse(path, data)
}

// Parse decodes and validates configuration data; path is used in errors only
func Parse(path string, data []byte) (*Config, error) {
	c := &Config{Path: path}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, &ConfigError{Path: path, Reason: "cannot be decoded: " + err.Error()}
	}
	c.trim()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) trim() {
	for i := range c.Endpoints {
		e := &c.Endpoints[i]
		e.Name = strings.TrimSpace(e.Name)
		e.URL = strings.TrimSpace(e.URL)
		if e.Protocol == nil {
			continue
		}
		variants := e.Protocol.variants()
		for j := range variants {
			variants[j].Name = strings.TrimSpace(variants[j].Name)
		}
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the struct tags, then the overlay rules that span an
// endpoint and its variants
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return c.fieldError(err, "")
	}
	for i := range c.Endpoints {
		e := &c.Endpoints[i]
		prefix := fmt.Sprintf("Config.Endpoints[%d].", i)
		if e.Protocol == nil {
			return &ConfigError{Path: c.Path, Field: prefix + "Type", Reason: "is required"}
		}
		if err := validate.Struct(e.Protocol); err != nil {
			return c.fieldError(err, prefix)
		}
		if err := c.checkOverlays(i, e); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) checkOverlays(index int, e *Endpoint) error {
	for j, v := range e.Protocol.variants() {
		field := fmt.Sprintf("endpoints[%d].variants[%d]", index, j)
		var dup []string
		for k := range v.JSON {
			if _, ok := e.JSON[k]; ok {
				dup = append(dup, k)
			}
		}
		if len(dup) > 0 {
			sort.Strings(dup)
			return &ConfigError{
				Path:   c.Path,
				Field:  field,
				Reason: fmt.Sprintf("of %s sets json key %q already set by the endpoint", e.Name, dup[0]),
			}
		}
		if e.Context == nil || v.Context == nil {
			continue
		}
		if e.Context.WithSystemMessage != nil && v.Context.WithSystemMessage != nil {
			return &ConfigError{Path: c.Path, Field: field, Reason: fmt.Sprintf("of %s sets context with_system_message already set by the endpoint", e.Name)}
		}
		if e.Context.NoDiff != nil && v.Context.NoDiff != nil {
			return &ConfigError{Path: c.Path, Field: field, Reason: fmt.Sprintf("of %s sets context no_diff already set by the endpoint", e.Name)}
		}
	}
	return nil
}

// fieldError turns the first validator failure into a ConfigError
func (c *Config) fieldError(err error, prefix string) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ConfigError{Path: c.Path, Reason: err.Error()}
	}
	fe := fieldErrs[0]
	var reason string
	switch fe.Tag() {
	case "required":
		reason = "is required"
	case "excludesall":
		reason = fmt.Sprintf("%q contains one of the characters %s", fe.Value(), ForbiddenChars)
	case "unique":
		reason = "contains duplicate names"
	case "url":
		reason = fmt.Sprintf("%q is not a valid URL", fe.Value())
	case "min":
		reason = "must be at least " + fe.Param()
	case "gtefield":
		reason = "must not be smaller than " + strings.ToLower(fe.Param())
	default:
		reason = "failed the " + fe.Tag() + " check"
	}
	return &ConfigError{Path: c.Path, Field: prefix + fe.Namespace(), Reason: reason}
}
