package app

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/bnema/rotavault/internal/boundaries/out"
	"github.com/bnema/rotavault/internal/domain"
)

// sourcesFile mirrors the on-disk sources.yaml layout. Decoding is
// strict: an unknown key is a config error, not something to ignore.
type sourcesFile struct {
	Sources []sourceSpec `yaml:"sources"`
}

type sourceSpec struct {
	Path         string            `yaml:"path"`
	Destinations []destinationSpec `yaml:"destinations"`
}

type destinationSpec struct {
	Name   string     `yaml:"name"`
	Method string     `yaml:"method"`
	Path   string     `yaml:"path"`
	Tiers  []tierSpec `yaml:"tiers"`
}

type tierSpec struct {
	Name     string `yaml:"name"`
	Schedule string `yaml:"schedule"`
	Keep     int    `yaml:"keep"`
}

// LoadSources reads and validates the sources file against the known
// transfer methods. Structural problems fail the load; cron content is
// deliberately not checked here, the scheduler excludes malformed
// destinations itself so one bad expression never blocks the rest.
func LoadSources(path string, methods map[string]out.Transferer) ([]domain.Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sources file: %w", err)
	}
	defer func() { _ = f.Close() }()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var spec sourcesFile
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("%w: %s: %s", domain.ErrInvalidConfig, path, err)
	}

	return buildSources(spec, methods)
}

func buildSources(spec sourcesFile, methods map[string]out.Transferer) ([]domain.Source, error) {
	if len(spec.Sources) == 0 {
		return nil, fmt.Errorf("%w: no sources defined", domain.ErrInvalidConfig)
	}

	// Destination names address destinations across all sources, so
	// uniqueness is global.
	seen := make(map[string]struct{})

	var sources []domain.Source
	for _, src := range spec.Sources {
		if src.Path == "" {
			return nil, fmt.Errorf("%w: source with empty path", domain.ErrInvalidConfig)
		}
		info, err := os.Stat(src.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: source %s: %s", domain.ErrInvalidConfig, src.Path, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%w: source %s is not a directory", domain.ErrInvalidConfig, src.Path)
		}
		if len(src.Destinations) == 0 {
			return nil, fmt.Errorf("%w: source %s has no destinations", domain.ErrInvalidConfig, src.Path)
		}

		source := domain.Source{Path: src.Path}
		for _, dst := range src.Destinations {
			dest, err := buildDestination(src.Path, dst, methods)
			if err != nil {
				return nil, err
			}
			if _, dup := seen[dest.Name]; dup {
				return nil, fmt.Errorf("%w: duplicate destination name %q", domain.ErrInvalidConfig, dest.Name)
			}
			seen[dest.Name] = struct{}{}
			source.Destinations = append(source.Destinations, dest)
		}
		sources = append(sources, source)
	}
	return sources, nil
}

func buildDestination(sourcePath string, spec destinationSpec, methods map[string]out.Transferer) (domain.Destination, error) {
	if spec.Name == "" {
		return domain.Destination{}, fmt.Errorf("%w: destination with empty name under source %s", domain.ErrInvalidConfig, sourcePath)
	}
	if spec.Path == "" {
		return domain.Destination{}, fmt.Errorf("%w: destination %s has no path", domain.ErrInvalidConfig, spec.Name)
	}

	method, ok := methods[spec.Method]
	if !ok {
		return domain.Destination{}, fmt.Errorf("%w: %q in destination %s", domain.ErrMethodNotFound, spec.Method, spec.Name)
	}

	if len(spec.Tiers) == 0 {
		return domain.Destination{}, fmt.Errorf("%w: destination %s has no tiers", domain.ErrInvalidConfig, spec.Name)
	}
	// Cross-tier snapshot sharing needs hardlinks, which only work on
	// local storage. Remote methods are limited to a single tier.
	if len(spec.Tiers) > 1 && !method.LinkCapable() {
		return domain.Destination{}, fmt.Errorf("%w: destination %s uses method %q which cannot link across tiers",
			domain.ErrInvalidConfig, spec.Name, spec.Method)
	}

	tierNames := make(map[string]struct{})
	var tiers []domain.RetentionTier
	for _, tier := range spec.Tiers {
		if tier.Name == "" {
			return domain.Destination{}, fmt.Errorf("%w: tier with empty name in destination %s", domain.ErrInvalidConfig, spec.Name)
		}
		if _, dup := tierNames[tier.Name]; dup {
			return domain.Destination{}, fmt.Errorf("%w: duplicate tier %q in destination %s", domain.ErrInvalidConfig, tier.Name, spec.Name)
		}
		tierNames[tier.Name] = struct{}{}
		if tier.Keep < 0 {
			return domain.Destination{}, fmt.Errorf("%w: negative keep in tier %s of destination %s", domain.ErrInvalidConfig, tier.Name, spec.Name)
		}
		tiers = append(tiers, domain.RetentionTier{Name: tier.Name, Schedule: tier.Schedule, Keep: tier.Keep})
	}

	return domain.Destination{
		Name:       spec.Name,
		SourcePath: sourcePath,
		Method:     spec.Method,
		Path:       spec.Path,
		Tiers:      tiers,
	}, nil
}
