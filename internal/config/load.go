package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"declpipe/internal/errs"
)

// Load reads a pipeline document from disk, decodes it (JSON or YAML by file
// extension), applies declared defaults, and validates it. All failures are
// kind=config; no partially loaded config is ever returned.
func Load(path string) (*PipelineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfig, err, "reading pipeline file")
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return Parse(data, "json")
	default:
		return Parse(data, "yaml")
	}
}

// Parse decodes a pipeline document from bytes. format is "json" or "yaml".
// Parsing is pure: the same document always yields the same config, with
// defaults applied and DeclaredOrder set from document position.
func Parse(data []byte, format string) (*PipelineConfig, error) {
	var p PipelineConfig
	switch format {
	case "json":
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, errs.Wrap(errs.KindConfig, err, "parsing pipeline document")
		}
	case "yaml":
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, errs.Wrap(errs.KindConfig, err, "parsing pipeline document")
		}
	default:
		return nil, errs.New(errs.KindConfig, "unknown document format %q", format)
	}

	applyDefaults(&p)

	for i := range p.Steps {
		p.Steps[i].DeclaredOrder = i
		if p.Steps[i].Params == nil {
			p.Steps[i].Params = Options{}
		}
	}

	if err := firstError(Lint(&p)); err != nil {
		return nil, err
	}
	return &p, nil
}

// applyDefaults fills in declared defaults so handlers never re-derive them:
// extract format=csv, load format=parquet mode=overwrite, join
// join_type=inner, and the two run-level policies.
func applyDefaults(p *PipelineConfig) {
	if p.OnStepFailure == "" {
		p.OnStepFailure = FailSkipDependents
	}
	if p.OnValidationFailure == "" {
		p.OnValidationFailure = ValidationContinue
	}

	for i := range p.Steps {
		s := &p.Steps[i]
		if s.Params == nil {
			s.Params = Options{}
		}
		switch s.Type {
		case StepExtract:
			setDefault(s.Params, "format", "csv")
		case StepLoad:
			setDefault(s.Params, "format", "parquet")
			setDefault(s.Params, "mode", "overwrite")
		case StepTransform:
			if s.Subtype == SubtypeJoin {
				setDefault(s.Params, "join_type", "inner")
			}
		}
	}
}

func setDefault(o Options, key, val string) {
	if _, ok := o[key]; !ok {
		o[key] = val
	}
}

// firstError converts the error-severity lint issues into a single
// kind=config error, or nil when only warnings (or nothing) were found.
func firstError(issues []Issue) error {
	var msgs []string
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			msgs = append(msgs, iss.Error())
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	return errs.New(errs.KindConfig, "%s", strings.Join(msgs, "; "))
}
