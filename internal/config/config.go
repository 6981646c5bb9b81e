package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type GateFile struct {
	PathPattern  string `yaml:"path_pattern"`
	Deployment   string `yaml:"deployment"`
	RejectStatus int    `yaml:"reject_status"`
}

type File struct {
	Gate        GateFile `yaml:"gate"`
	Deployments []string `yaml:"deployments"`
}

func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &f, nil
}

// Merge overrides env values with the non-empty values of f.
func (e *EnvVars) Merge(f *File) {
	if f == nil {
		return
	}
	if f.Gate.PathPattern != "" {
		e.GatePathPattern = f.Gate.PathPattern
	}
	if f.Gate.Deployment != "" {
		e.GateDeploymentName = f.Gate.Deployment
	}
	if f.Gate.RejectStatus != 0 {
		e.GateRejectStatus = f.Gate.RejectStatus
	}
	for _, d := range f.Deployments {
		d = strings.TrimSpace(d)
		if d != "" {
			e.Deployments = append(e.Deployments, d)
		}
	}
}

func (e *EnvVars) Validate() error {
	var errs []error
	if strings.TrimSpace(e.GatePathPattern) == "" {
		errs = append(errs, errors.New("gate path pattern is required"))
	}
	if strings.TrimSpace(e.GateDeploymentName) == "" {
		errs = append(errs, errors.New("gate deployment name is required (GATE_DEPLOYMENT_NAME or gate.deployment)"))
	}
	if e.GateRejectStatus < 100 || e.GateRejectStatus > 599 {
		errs = append(errs, fmt.Errorf("reject status %d out of range", e.GateRejectStatus))
	}
	if e.AdminEnabled && strings.TrimSpace(e.AdminAPIKey) == "" {
		errs = append(errs, errors.New("admin API requires ADMIN_API_KEY"))
	}
	if e.Port <= 0 || e.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", e.Port))
	}
	return errors.Join(errs...)
}

// Load reads the environment, applies the optional config file and validates
// the result.
func Load() (*EnvVars, error) {
	env, err := LoadEnv()
	if err != nil {
		return nil, err
	}
	if env.GateConfigFile != "" {
		f, err := LoadFile(env.GateConfigFile)
		if err != nil {
			return nil, err
		}
		env.Merge(f)
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return env, nil
}
