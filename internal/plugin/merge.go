package plugin

import (
	"fmt"

	"github.com/pacc-dev/pacc/internal/cli/prompt"
	"github.com/pacc-dev/pacc/internal/manifest"
	"github.com/pacc-dev/pacc/internal/paccerr"
)

// specSource labels where a specifier came from, for conflict reports.
type specSource struct {
	name  string
	specs []manifest.Specifier
}

// DeclaredSpecs loads and merges the declared plugin set for the scope:
// base pacc.json, then environments.<env>, then pacc.local.json, each
// layer taking precedence per the conflict policy.
func (e *Engine) DeclaredSpecs(opts Options) ([]manifest.Specifier, []string, error) {
	var sources []specSource

	base, err := manifest.Load(e.scope.ManifestPath())
	if err != nil {
		return nil, nil, err
	}
	if base != nil {
		sources = append(sources, specSource{name: "pacc.json", specs: base.Plugins.Repositories})
		if opts.Environment != "" {
			env, ok := base.Environments[opts.Environment]
			if !ok {
				return nil, nil, paccerr.Configuration("unknown_environment",
					"environment %q is not declared in pacc.json", opts.Environment)
			}
			sources = append(sources, specSource{
				name:  "environments." + opts.Environment,
				specs: env.Repositories,
			})
		}
	} else if opts.Environment != "" {
		return nil, nil, paccerr.Configuration("unknown_environment",
			"environment %q requested but no pacc.json exists", opts.Environment)
	}

	local, err := manifest.Load(e.scope.LocalOverridePath())
	if err != nil {
		// A broken local override must not silently fall back to team
		// settings.
		return nil, nil, err
	}
	if local != nil {
		sources = append(sources, specSource{name: "pacc.local.json", specs: local.Plugins.Repositories})
	}

	return e.mergeSources(sources, opts)
}

// mergeSources folds the layers lowest-precedence first.
func (e *Engine) mergeSources(sources []specSource, opts Options) ([]manifest.Specifier, []string, error) {
	merged := map[string]manifest.Specifier{}
	from := map[string]string{}
	var order []string
	var warnings []string

	for _, src := range sources {
		for _, spec := range src.specs {
			repo := spec.Repository
			existing, seen := merged[repo]
			if !seen {
				merged[repo] = spec
				from[repo] = src.name
				order = append(order, repo)
				continue
			}
			if existing.Version == spec.Version && existing.IsMapForm() == spec.IsMapForm() {
				merged[repo] = spec
				from[repo] = src.name
				continue
			}

			// String vs mapping form always yields the override's form.
			if existing.IsMapForm() != spec.IsMapForm() {
				warnings = append(warnings, fmt.Sprintf(
					"%s: %s and %s declare different specifier forms; using %s",
					repo, from[repo], src.name, src.name))
				merged[repo] = spec
				from[repo] = src.name
				continue
			}

			chosen, warn, err := e.resolveConflict(repo, existing, spec, from[repo], src.name, opts)
			if err != nil {
				return nil, warnings, err
			}
			if warn != "" {
				warnings = append(warnings, warn)
			}
			if chosen.Repository == spec.Repository && chosen.Version == spec.Version {
				from[repo] = src.name
			}
			merged[repo] = chosen
		}
	}

	specs := make([]manifest.Specifier, 0, len(order))
	for _, repo := range order {
		specs = append(specs, merged[repo])
	}
	return specs, warnings, nil
}

func (e *Engine) resolveConflict(repo string, base, override manifest.Specifier, baseName, overrideName string, opts Options) (manifest.Specifier, string, error) {
	warn := fmt.Sprintf("%s: %s wants %s, %s wants %s",
		repo, baseName, displayRef(base.Version), overrideName, displayRef(override.Version))

	switch opts.policy() {
	case PolicyTeam:
		return base, warn + "; keeping " + baseName, nil
	case PolicyMerge:
		if manifest.CompareRefs(override.Version, base.Version) >= 0 {
			return override, warn + "; merge takes " + displayRef(override.Version), nil
		}
		return base, warn + "; merge takes " + displayRef(base.Version), nil
	case PolicyPrompt:
		if !opts.Interactive || e.selector == nil {
			return manifest.Specifier{}, "", paccerr.Conflict("prompt_unavailable",
				"conflict on %s requires interactive mode with policy prompt", repo)
		}
		idx, err := e.selector.ChooseOne("Version for "+repo, []prompt.Item{
			{Label: displayRef(base.Version), Description: "declared in " + baseName},
			{Label: displayRef(override.Version), Description: "declared in " + overrideName},
		})
		if err != nil {
			return manifest.Specifier{}, "", err
		}
		if idx == 0 {
			return base, warn + "; user chose " + baseName, nil
		}
		return override, warn + "; user chose " + overrideName, nil
	default: // PolicyLocal
		return override, warn + "; keeping " + overrideName, nil
	}
}

func displayRef(ref string) string {
	if ref == "" {
		return "latest"
	}
	return ref
}
