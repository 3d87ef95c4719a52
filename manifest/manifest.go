// Package manifest loads declarative composition manifests: the domains,
// entries, and extensions a host wants registered at startup, written in
// TOML or YAML.
package manifest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/teranos/mosaic/errors"
	"github.com/teranos/mosaic/extension"
)

// Manifest is the root document.
type Manifest struct {
	// Schemas registers standalone type entities before anything else
	Schemas []Schema `toml:"schemas" yaml:"schemas"`

	Domains    []Domain    `toml:"domains" yaml:"domains"`
	Entries    []Entry     `toml:"entries" yaml:"entries"`
	Extensions []Extension `toml:"extensions" yaml:"extensions"`
}

// Schema declares one type entity with an inline JSON Schema document.
type Schema struct {
	ID     string `toml:"id" yaml:"id"`
	Base   string `toml:"base" yaml:"base"`
	Schema string `toml:"schema" yaml:"schema"`
}

// Metadata mirrors extension.Metadata.
type Metadata struct {
	Version     string `toml:"version" yaml:"version"`
	HostVersion string `toml:"host_version" yaml:"host_version"`
	Description string `toml:"description" yaml:"description"`
	Author      string `toml:"author" yaml:"author"`
	License     string `toml:"license" yaml:"license"`
}

// Domain declares one extension point.
type Domain struct {
	ID                       string   `toml:"id" yaml:"id"`
	SharedProperties         []string `toml:"shared_properties" yaml:"shared_properties"`
	AcceptedActions          []string `toml:"accepted_actions" yaml:"accepted_actions"`
	ExtensionActions         []string `toml:"extension_actions" yaml:"extension_actions"`
	LifecycleStages          []string `toml:"lifecycle_stages" yaml:"lifecycle_stages"`
	ExtensionLifecycleStages []string `toml:"extension_lifecycle_stages" yaml:"extension_lifecycle_stages"`
	RequiredExtensionType    string   `toml:"required_extension_type" yaml:"required_extension_type"`
	DefaultActionTimeoutMS   int      `toml:"default_action_timeout_ms" yaml:"default_action_timeout_ms"`
	Lifecycle                []Hook   `toml:"lifecycle" yaml:"lifecycle"`
	Metadata                 Metadata `toml:"metadata" yaml:"metadata"`
}

// Entry declares one entry contract.
type Entry struct {
	ID                 string   `toml:"id" yaml:"id"`
	RequiredProperties []string `toml:"required_properties" yaml:"required_properties"`
	OptionalProperties []string `toml:"optional_properties" yaml:"optional_properties"`
	SendsActions       []string `toml:"sends_actions" yaml:"sends_actions"`
	ReceivesActions    []string `toml:"receives_actions" yaml:"receives_actions"`
}

// Extension binds an entry into a domain.
type Extension struct {
	ID        string   `toml:"id" yaml:"id"`
	Domain    string   `toml:"domain" yaml:"domain"`
	Entry     string   `toml:"entry" yaml:"entry"`
	Lifecycle []Hook   `toml:"lifecycle" yaml:"lifecycle"`
	Metadata  Metadata `toml:"metadata" yaml:"metadata"`
}

// Hook binds a linear action sequence to a lifecycle stage. The actions
// run as a chain: each action's success leads to the next.
type Hook struct {
	Stage   string       `toml:"stage" yaml:"stage"`
	Actions []HookAction `toml:"actions" yaml:"actions"`
}

// HookAction is one step of a hook chain.
type HookAction struct {
	Type      string `toml:"type" yaml:"type"`
	Target    string `toml:"target" yaml:"target"`
	TimeoutMS int    `toml:"timeout_ms" yaml:"timeout_ms"`
}

// Load reads a manifest file, picking the format from the extension:
// .toml, .yaml, or .yml.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read manifest %q", path)
	}

	var m Manifest
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &m); err != nil {
			return nil, errors.Wrapf(err, "failed to parse TOML manifest %q", path)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, errors.Wrapf(err, "failed to parse YAML manifest %q", path)
		}
	default:
		return nil, errors.Newf("unsupported manifest format %q (want .toml, .yaml, or .yml)", filepath.Ext(path))
	}
	return &m, nil
}

// Validate checks the manifest's internal references before anything is
// registered: ids present, extensions pointing at declared domains and
// entries.
func (m *Manifest) Validate() error {
	domains := make(map[string]bool, len(m.Domains))
	for i, domain := range m.Domains {
		if domain.ID == "" {
			return errors.Newf("domain #%d has no id", i+1)
		}
		if domains[domain.ID] {
			return errors.Newf("domain %q declared twice", domain.ID)
		}
		domains[domain.ID] = true
	}

	entries := make(map[string]bool, len(m.Entries))
	for i, entry := range m.Entries {
		if entry.ID == "" {
			return errors.Newf("entry #%d has no id", i+1)
		}
		if entries[entry.ID] {
			return errors.Newf("entry %q declared twice", entry.ID)
		}
		entries[entry.ID] = true
	}

	seen := make(map[string]bool, len(m.Extensions))
	for i, ext := range m.Extensions {
		if ext.ID == "" {
			return errors.Newf("extension #%d has no id", i+1)
		}
		if seen[ext.ID] {
			return errors.Newf("extension %q declared twice", ext.ID)
		}
		seen[ext.ID] = true
		if !domains[ext.Domain] {
			return errors.Newf("extension %q references undeclared domain %q", ext.ID, ext.Domain)
		}
		if !entries[ext.Entry] {
			return errors.Newf("extension %q references undeclared entry %q", ext.ID, ext.Entry)
		}
	}

	for _, schema := range m.Schemas {
		if schema.ID == "" {
			return errors.New("schema declaration has no id")
		}
		if schema.Schema != "" && !json.Valid([]byte(schema.Schema)) {
			return errors.Newf("schema for %q is not valid JSON", schema.ID)
		}
	}
	return nil
}

// Apply validates the manifest and registers its contents with the
// registry: schemas first, then domains, entries, and extensions.
func (m *Manifest) Apply(ctx context.Context, port extension.TypeSystemPort, r *extension.Registry) error {
	if err := m.Validate(); err != nil {
		return err
	}

	for _, schema := range m.Schemas {
		entity := extension.TypeEntity{ID: schema.ID, BaseID: schema.Base}
		if schema.Schema != "" {
			entity.Schema = json.RawMessage(schema.Schema)
		}
		if err := port.Register(entity); err != nil {
			return err
		}
	}

	for _, domain := range m.Domains {
		if err := r.RegisterDomain(ctx, domain.toRuntime()); err != nil {
			return err
		}
	}
	for _, entry := range m.Entries {
		if err := r.RegisterEntry(ctx, entry.toRuntime()); err != nil {
			return err
		}
	}
	for _, ext := range m.Extensions {
		if err := r.RegisterExtension(ctx, ext.toRuntime()); err != nil {
			return err
		}
	}
	return nil
}

func (d Domain) toRuntime() extension.Domain {
	return extension.Domain{
		ID:                       d.ID,
		SharedProperties:         d.SharedProperties,
		AcceptedActions:          d.AcceptedActions,
		ExtensionActions:         d.ExtensionActions,
		LifecycleStages:          d.LifecycleStages,
		ExtensionLifecycleStages: d.ExtensionLifecycleStages,
		RequiredExtensionType:    d.RequiredExtensionType,
		DefaultActionTimeout:     time.Duration(d.DefaultActionTimeoutMS) * time.Millisecond,
		Lifecycle:                toRuntimeHooks(d.Lifecycle),
		Metadata:                 d.Metadata.toRuntime(),
	}
}

func (e Entry) toRuntime() extension.Entry {
	return extension.Entry{
		ID:                 e.ID,
		RequiredProperties: e.RequiredProperties,
		OptionalProperties: e.OptionalProperties,
		SendsActions:       e.SendsActions,
		ReceivesActions:    e.ReceivesActions,
	}
}

func (x Extension) toRuntime() extension.Extension {
	return extension.Extension{
		ID:        x.ID,
		DomainID:  x.Domain,
		EntryID:   x.Entry,
		Lifecycle: toRuntimeHooks(x.Lifecycle),
		Metadata:  x.Metadata.toRuntime(),
	}
}

func (md Metadata) toRuntime() extension.Metadata {
	return extension.Metadata{
		Version:     md.Version,
		HostVersion: md.HostVersion,
		Description: md.Description,
		Author:      md.Author,
		License:     md.License,
	}
}

// toRuntimeHooks turns each hook's linear action list into a Next chain.
func toRuntimeHooks(hooks []Hook) []extension.LifecycleHook {
	if len(hooks) == 0 {
		return nil
	}
	out := make([]extension.LifecycleHook, 0, len(hooks))
	for _, hook := range hooks {
		var head *extension.ActionsChain
		for i := len(hook.Actions) - 1; i >= 0; i-- {
			step := hook.Actions[i]
			head = &extension.ActionsChain{
				Action: extension.Action{
					Type:    step.Type,
					Target:  step.Target,
					Timeout: time.Duration(step.TimeoutMS) * time.Millisecond,
				},
				Next: head,
			}
		}
		out = append(out, extension.LifecycleHook{Stage: hook.Stage, Actions: head})
	}
	return out
}
