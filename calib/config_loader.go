package calib

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// StepScalesFile is the YAML form of StepScales. Zero translation means "derive from the data".
type StepScalesFile struct {
	Translation float64 `yaml:"translation,omitempty" json:"translation,omitempty" validate:"gte=0"`
	Vertical    float64 `yaml:"vertical,omitempty" json:"vertical,omitempty" validate:"gte=0"`
	Rotation    float64 `yaml:"rotation,omitempty" json:"rotation,omitempty" validate:"gte=0,lte=360"`
}

// SearchFile is the YAML form of SearchConfig. Unset fields take DefaultSearchConfig values.
type SearchFile struct {
	Iterations     int            `yaml:"iterations,omitempty" json:"iterations,omitempty" validate:"gte=0"`
	RestartAfter   *int           `yaml:"restartAfter,omitempty" json:"restartAfter,omitempty" validate:"omitnil,gte=0"`
	Steps          StepScalesFile `yaml:"steps,omitempty" json:"steps,omitempty"`
	BehindPenalty  *float64       `yaml:"behindPenalty,omitempty" json:"behindPenalty,omitempty" validate:"omitnil,gte=0"`
	Seed           *int64         `yaml:"seed,omitempty" json:"seed,omitempty"`
	Plane          string         `yaml:"plane,omitempty" json:"plane,omitempty" validate:"omitempty,oneof=xz xy XZ XY"`
	Frame          string         `yaml:"frame,omitempty" json:"frame,omitempty"`
	VerticalOffset float64        `yaml:"verticalOffset,omitempty" json:"verticalOffset,omitempty"`
	FreeVertical   bool           `yaml:"freeVertical,omitempty" json:"freeVertical,omitempty"`
	Initial        *Transform     `yaml:"initial,omitempty" json:"initial,omitempty"`
	TimeBudget     time.Duration  `yaml:"timeBudget,omitempty" json:"timeBudget,omitempty" validate:"gte=0"`
	Refine         bool           `yaml:"refine,omitempty" json:"refine,omitempty"`
	RefineEvals    int            `yaml:"refineEvals,omitempty" json:"refineEvals,omitempty" validate:"gte=0"`
}

// LandmarkSet holds geographic reference points and the site they are relative to
type LandmarkSet struct {
	Site   Site       `yaml:"site" json:"site"`
	Points []Landmark `yaml:"points" json:"points" validate:"dive"`
}

// DatasetFile represents the full dataset file: search settings, reference
// points (given directly or as landmarks) and observations.
type DatasetFile struct {
	Search       SearchFile       `yaml:"search" json:"search"`
	References   []ReferencePoint `yaml:"references,omitempty" json:"references,omitempty" validate:"dive"`
	Landmarks    *LandmarkSet     `yaml:"landmarks,omitempty" json:"landmarks,omitempty"`
	Observations []Observation    `yaml:"observations" json:"observations" validate:"dive"`
}

// Dataset is a loaded, validated dataset ready to hand to NewCalibrator
type Dataset struct {
	References   []ReferencePoint
	Observations []Observation
	Search       SearchConfig
}

// LoadDataset loads a dataset from a YAML file
func LoadDataset(path string) (*Dataset, error) {
	file, err := LoadDatasetFile(path)
	if err != nil {
		return nil, err
	}
	ds, err := file.Build()
	if err != nil {
		return nil, fmt.Errorf("building dataset %s: %w", path, err)
	}
	return ds, nil
}

// LoadDatasetFile reads and validates the raw YAML dataset without building it
func LoadDatasetFile(path string) (*DatasetFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("dataset file not found: %s", path)
		}
		return nil, fmt.Errorf("reading dataset file: %w", err)
	}

	var file DatasetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing dataset YAML: %w", err)
	}

	if err := file.Validate(); err != nil {
		return nil, err
	}
	return &file, nil
}

// Validate checks field-level constraints. Cross-references between
// observations and reference points are checked later by NewCalibrator.
func (f *DatasetFile) Validate() error {
	var err error
	if verr := validate.Struct(f); verr != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(verr, &fieldErrs) {
			for _, fe := range fieldErrs {
				err = multierr.Append(err, &ConfigurationError{
					Field:  fe.Namespace(),
					Reason: fmt.Sprintf("failed %q constraint (value %v)", fe.Tag(), fe.Value()),
				})
			}
		} else {
			err = multierr.Append(err, fmt.Errorf("validating dataset: %w", verr))
		}
	}

	if len(f.References) == 0 && (f.Landmarks == nil || len(f.Landmarks.Points) == 0) {
		err = multierr.Append(err, &ConfigurationError{Field: "references", Reason: "at least one reference point or landmark must be defined"})
	}
	if len(f.Observations) == 0 {
		err = multierr.Append(err, &ConfigurationError{Field: "observations", Reason: "at least one observation must be defined"})
	}
	return err
}

// Build converts the file form into engine inputs, applying defaults
func (f *DatasetFile) Build() (*Dataset, error) {
	refs := append([]ReferencePoint(nil), f.References...)
	if f.Landmarks != nil && len(f.Landmarks.Points) > 0 {
		projected, err := ProjectLandmarks(f.Landmarks.Site, f.Landmarks.Points)
		if err != nil {
			return nil, err
		}
		refs = append(refs, projected...)
	}

	cfg, err := f.Search.Config(refs)
	if err != nil {
		return nil, err
	}

	return &Dataset{
		References:   refs,
		Observations: append([]Observation(nil), f.Observations...),
		Search:       cfg,
	}, nil
}

// Config merges the file settings over DefaultSearchConfig. When no
// translation step is given it is derived from the reference point spread.
func (s SearchFile) Config(refs []ReferencePoint) (SearchConfig, error) {
	cfg := DefaultSearchConfig()

	plane, err := ParsePlane(s.Plane)
	if err != nil {
		return cfg, err
	}
	frame, err := ParseFrame(s.Frame)
	if err != nil {
		return cfg, err
	}
	cfg.Plane = plane
	cfg.Frame = frame

	if s.Iterations > 0 {
		cfg.Iterations = s.Iterations
	}
	if s.RestartAfter != nil {
		cfg.RestartAfter = *s.RestartAfter
	}
	if s.BehindPenalty != nil {
		cfg.BehindPenalty = *s.BehindPenalty
	}

	if s.Steps.Translation > 0 {
		cfg.Steps.Translation = s.Steps.Translation
	} else {
		cfg.Steps.Translation = SuggestStepScales(refs, plane).Translation
	}
	if s.Steps.Rotation > 0 {
		cfg.Steps.Rotation = s.Steps.Rotation
	}
	cfg.Steps.Vertical = s.Steps.Vertical

	cfg.Seed = s.Seed
	cfg.VerticalOffset = s.VerticalOffset
	cfg.FreeVertical = s.FreeVertical
	cfg.Initial = s.Initial
	cfg.TimeBudget = s.TimeBudget
	cfg.Refine = s.Refine
	if s.RefineEvals > 0 {
		cfg.RefineEvals = s.RefineEvals
	}
	return cfg, nil
}

// SaveDatasetFile writes a dataset file as YAML
func SaveDatasetFile(path string, file *DatasetFile) error {
	data, err := yaml.Marshal(file)
	if err != nil {
		return fmt.Errorf("marshaling dataset YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing dataset file: %w", err)
	}

	return nil
}
