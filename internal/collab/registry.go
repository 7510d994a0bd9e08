package collab

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Project is a single entry in the project registry.
type Project struct {
	Name    string   `yaml:"name"`
	Path    string   `yaml:"path"`
	Aliases []string `yaml:"aliases,omitempty"`
}

// Registry maps project names and aliases to working directories. It backs
// project resolution for backlog dispatch: an item can name its project
// explicitly or mention it in free text.
type Registry struct {
	projects []Project
	byName   map[string]*Project
}

// registryFile is the on-disk shape of the registry YAML.
type registryFile struct {
	Projects []Project `yaml:"projects"`
}

// LoadRegistry reads a projects registry from a YAML file. A missing file
// yields an empty registry rather than an error.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewRegistry(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading project registry: %w", err)
	}

	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing project registry %s: %w", path, err)
	}

	for i, p := range file.Projects {
		if p.Name == "" || p.Path == "" {
			return nil, fmt.Errorf("project registry %s: entry %d missing name or path", path, i)
		}
	}

	return NewRegistry(file.Projects), nil
}

// NewRegistry builds a registry from a list of projects.
func NewRegistry(projects []Project) *Registry {
	r := &Registry{
		projects: projects,
		byName:   make(map[string]*Project),
	}
	for i := range r.projects {
		p := &r.projects[i]
		r.byName[strings.ToLower(p.Name)] = p
		for _, alias := range p.Aliases {
			r.byName[strings.ToLower(alias)] = p
		}
	}
	return r
}

// Projects returns the registered projects.
func (r *Registry) Projects() []Project {
	return r.projects
}

// ResolveProject maps a project hint to a working directory. An explicit hint
// is matched against names and aliases case-insensitively; failing that, the
// free text is scanned for a mention of any registered name or alias.
func (r *Registry) ResolveProject(hint, freeText string) (string, bool) {
	if hint != "" {
		if p, ok := r.byName[strings.ToLower(hint)]; ok {
			return p.Path, true
		}
		return "", false
	}

	lower := strings.ToLower(freeText)
	for key, p := range r.byName {
		if strings.Contains(lower, key) {
			return p.Path, true
		}
	}
	return "", false
}
