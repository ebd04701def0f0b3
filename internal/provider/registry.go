package provider

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Registry maps model names and credential shapes to provider specs.
// Matching iterates specs in registration order and returns the first match,
// so ties break deterministically on registration order.
type Registry struct {
	order  []string
	specs  map[string]*Spec
	logger *slog.Logger
}

// NewRegistry creates a registry with the built-in specs registered.
// The first registered spec (glm) is the default.
func NewRegistry(logger *slog.Logger) *Registry {
	r := &Registry{
		specs:  make(map[string]*Spec),
		logger: logger,
	}
	r.registerBuiltins()
	return r
}

func (r *Registry) registerBuiltins() {
	r.Register(&Spec{
		Name:     "glm",
		Keywords: []string{"glm", "zhipu", "智谱"},
		EnvKey:   "GLM_API_KEY",
		BaseURL:  "https://open.bigmodel.cn/api/paas/v4",
	})
	r.Register(&Spec{
		Name:      "deepseek",
		Keywords:  []string{"deepseek", "深度求索"},
		EnvKey:    "DEEPSEEK_API_KEY",
		KeyPrefix: "sk-",
		BaseURL:   "https://api.deepseek.com/v1",
	})
	r.Register(&Spec{
		Name:      "qwen",
		Keywords:  []string{"qwen", "dashscope", "通义千问"},
		EnvKey:    "DASHSCOPE_API_KEY",
		KeyPrefix: "sk-",
		BaseURL:   "https://dashscope.aliyuncs.com/compatible-mode/v1",
	})
	r.Register(&Spec{
		Name:      "moonshot",
		Keywords:  []string{"moonshot", "kimi", "月之暗面"},
		EnvKey:    "MOONSHOT_API_KEY",
		KeyPrefix: "sk-",
		BaseURL:   "https://api.moonshot.cn/v1",
	})
	r.Register(&Spec{
		Name:        "openrouter",
		Keywords:    []string{"openrouter"},
		EnvKey:      "OPENROUTER_API_KEY",
		ModelPrefix: "openrouter/",
		Gateway:     true,
		KeyPrefix:   "sk-or-",
		BaseURL:     "https://openrouter.ai/api/v1",
	})
	r.logger.Debug("registered built-in providers", "count", len(r.order))
}

// Register adds a spec. Re-registering a name replaces the spec but keeps
// its original position in the matching order.
func (r *Registry) Register(spec *Spec) {
	name := strings.ToLower(spec.Name)
	if _, ok := r.specs[name]; !ok {
		r.order = append(r.order, name)
	}
	r.specs[name] = spec
}

// ByName returns the spec with the given name, or nil.
func (r *Registry) ByName(name string) *Spec {
	return r.specs[strings.ToLower(name)]
}

// MatchByModel returns the first spec, in registration order, whose keywords
// match the model name. Falls back to the default spec when nothing matches.
func (r *Registry) MatchByModel(model string) *Spec {
	for _, name := range r.order {
		if r.specs[name].MatchesModel(model) {
			return r.specs[name]
		}
	}
	return r.Default()
}

// MatchByAPIKey returns the first spec whose credential prefix matches the
// key, or nil when nothing matches.
func (r *Registry) MatchByAPIKey(apiKey string) *Spec {
	for _, name := range r.order {
		if r.specs[name].MatchesAPIKey(apiKey) {
			return r.specs[name]
		}
	}
	return nil
}

// Default returns the first registered spec.
func (r *Registry) Default() *Spec {
	if len(r.order) == 0 {
		return nil
	}
	return r.specs[r.order[0]]
}

// All returns every registered spec in registration order.
func (r *Registry) All() []*Spec {
	specs := make([]*Spec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.specs[name])
	}
	return specs
}

// Available returns the specs whose credential env key resolves to a
// non-empty value.
func (r *Registry) Available() []*Spec {
	var specs []*Spec
	for _, name := range r.order {
		spec := r.specs[name]
		if os.Getenv(spec.EnvKey) != "" {
			specs = append(specs, spec)
		}
	}
	return specs
}

// LoadSpecsFile registers extra specs from a YAML file, appended after the
// built-ins in file order.
func (r *Registry) LoadSpecsFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot read providers file %s: %w", path, err)
	}
	var file struct {
		Providers []Spec `yaml:"providers"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("cannot parse providers file %s: %w", path, err)
	}
	for i := range file.Providers {
		spec := file.Providers[i]
		if spec.Name == "" {
			return fmt.Errorf("providers file %s: entry %d has no name", path, i)
		}
		r.Register(&spec)
	}
	r.logger.Info("loaded provider specs", "file", path, "count", len(file.Providers))
	return nil
}
