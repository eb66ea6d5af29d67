// Package config loads and merges a swarm run's configuration: built-in
// defaults, an optional `.swarm/config.yaml` file, and CLI flag overrides,
// in that order of increasing precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/harrison/swarm/internal/models"
)

// FileName is the config file's name, relative to a repository's .swarm
// directory.
const FileName = "config.yaml"

// Path returns the default config file path for a repository.
func Path(repoPath string) string {
	return filepath.Join(repoPath, ".swarm", FileName)
}

// Default returns a RunConfig populated with the swarm's built-in defaults.
// Task and RepoPath are left empty: every invocation must supply them.
func Default() *models.RunConfig {
	return &models.RunConfig{
		MaxWorkers:        4,
		PlannerModel:      "opus",
		WorkerModel:       "sonnet",
		EscalationModel:   "opus",
		MaxTotalCostUSD:   50.0,
		MaxWorkerCostUSD:  5.0,
		MaxWorkerAttempts: 1,
		EnableEscalation:  true,
		ResolveConflicts:  true,
		ReviewAfterMerge:  false,
		Oversight:         models.OversightPRGated,
		CreatePR:          true,
		DryRun:            false,
	}
}

// yamlConfig mirrors RunConfig's yaml tags but leaves every field a pointer,
// so LoadConfig can tell "absent from the file" apart from "present and
// zero" without a second raw-map pass.
type yamlConfig struct {
	Task              *string  `yaml:"task"`
	RepoPath          *string  `yaml:"repo_path"`
	MaxWorkers        *int     `yaml:"max_workers"`
	OrchestratorModel *string  `yaml:"orchestrator_model"`
	Model             *string  `yaml:"model"`
	EscalationModel   *string  `yaml:"escalation_model"`
	MaxCost           *float64 `yaml:"max_cost"`
	MaxWorkerCost     *float64 `yaml:"max_worker_cost"`
	MaxWorkerRetries  *int     `yaml:"max_worker_retries"`
	EnableEscalation  *bool    `yaml:"enable_escalation"`
	ResolveConflicts  *bool    `yaml:"resolve_conflicts"`
	Review            *bool    `yaml:"review"`
	Oversight         *string  `yaml:"oversight"`
	CreatePR          *bool    `yaml:"create_pr"`
	DryRun            *bool    `yaml:"dry_run"`
	BaseBranch        *string  `yaml:"base_branch"`
}

// LoadConfig loads a RunConfig starting from Default and applying whatever
// fields are present in path's YAML file. A missing file is not an error:
// it yields the defaults untouched. A present-but-malformed file is.
func LoadConfig(path string) (*models.RunConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var y yamlConfig
	if err := yaml.Unmarshal(data, &y); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	applyYAML(cfg, &y)
	return cfg, nil
}

func applyYAML(cfg *models.RunConfig, y *yamlConfig) {
	if y.Task != nil {
		cfg.Task = *y.Task
	}
	if y.RepoPath != nil {
		cfg.RepoPath = *y.RepoPath
	}
	if y.MaxWorkers != nil {
		cfg.MaxWorkers = *y.MaxWorkers
	}
	if y.OrchestratorModel != nil {
		cfg.PlannerModel = *y.OrchestratorModel
	}
	if y.Model != nil {
		cfg.WorkerModel = *y.Model
	}
	if y.EscalationModel != nil {
		cfg.EscalationModel = *y.EscalationModel
	}
	if y.MaxCost != nil {
		cfg.MaxTotalCostUSD = *y.MaxCost
	}
	if y.MaxWorkerCost != nil {
		cfg.MaxWorkerCostUSD = *y.MaxWorkerCost
	}
	if y.MaxWorkerRetries != nil {
		cfg.MaxWorkerAttempts = *y.MaxWorkerRetries
	}
	if y.EnableEscalation != nil {
		cfg.EnableEscalation = *y.EnableEscalation
	}
	if y.ResolveConflicts != nil {
		cfg.ResolveConflicts = *y.ResolveConflicts
	}
	if y.Review != nil {
		cfg.ReviewAfterMerge = *y.Review
	}
	if y.Oversight != nil {
		cfg.Oversight = models.OversightMode(*y.Oversight)
	}
	if y.CreatePR != nil {
		cfg.CreatePR = *y.CreatePR
	}
	if y.DryRun != nil {
		cfg.DryRun = *y.DryRun
	}
	if y.BaseBranch != nil {
		cfg.BaseBranch = *y.BaseBranch
	}
}

// Flags carries CLI flag values for MergeFlags. A nil field means "the flag
// was not set on the command line" and leaves the underlying config value
// untouched; this mirrors the teacher's MergeWithFlags pointer-per-flag
// shape, generalized to RunConfig's field set.
type Flags struct {
	Task              *string
	RepoPath          *string
	MaxWorkers        *int
	OrchestratorModel *string
	Model             *string
	EscalationModel   *string
	MaxCost           *float64
	MaxWorkerCost     *float64
	MaxWorkerRetries  *int
	EnableEscalation  *bool
	ResolveConflicts  *bool
	Review            *bool
	Oversight         *string
	CreatePR          *bool
	DryRun            *bool
	BaseBranch        *string
}

// MergeFlags overlays any CLI flags the caller actually set onto cfg,
// taking precedence over both defaults and the config file.
func MergeFlags(cfg *models.RunConfig, f Flags) {
	applyYAML(cfg, &yamlConfig{
		Task: f.Task, RepoPath: f.RepoPath, MaxWorkers: f.MaxWorkers,
		OrchestratorModel: f.OrchestratorModel, Model: f.Model, EscalationModel: f.EscalationModel,
		MaxCost: f.MaxCost, MaxWorkerCost: f.MaxWorkerCost, MaxWorkerRetries: f.MaxWorkerRetries,
		EnableEscalation: f.EnableEscalation, ResolveConflicts: f.ResolveConflicts, Review: f.Review,
		Oversight: f.Oversight, CreatePR: f.CreatePR, DryRun: f.DryRun, BaseBranch: f.BaseBranch,
	})
}
