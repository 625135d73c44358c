// Package forcebalance assembles the fitting input consumed by a
// ForceBalance optimization: the optimizer settings, the training
// targets, and the parameters released for fitting.
package forcebalance

import (
	"strconv"

	"vfcurate/internal/qcarchive"
)

// Settings holds the ForceBalance optimizer configuration.
type Settings struct {
	Type                          string            `json:"type"`
	MaxIterations                 int               `json:"max_iterations"`
	StepConvergenceThreshold      float64           `json:"step_convergence_threshold"`
	ObjectiveConvergenceThreshold float64           `json:"objective_convergence_threshold"`
	GradientConvergenceThreshold  float64           `json:"gradient_convergence_threshold"`
	NCriteria                     int               `json:"n_criteria"`
	InitialTrustRadius            float64           `json:"initial_trust_radius"`
	FiniteDifferenceH             float64           `json:"finite_difference_h"`
	Extras                        map[string]string `json:"extras"`
}

// DefaultSettings returns the optimizer configuration used for valence
// fits, with the work-queue port baked into the extras.
func DefaultSettings(maxIterations, port int) Settings {
	return Settings{
		Type:                          "ForceBalance",
		MaxIterations:                 maxIterations,
		StepConvergenceThreshold:      0.01,
		ObjectiveConvergenceThreshold: 0.1,
		GradientConvergenceThreshold:  0.1,
		NCriteria:                     2,
		InitialTrustRadius:            -1.0,
		FiniteDifferenceH:             0.01,
		Extras: map[string]string{
			"wq_port":              strconv.Itoa(port),
			"asynchronous":         "True",
			"search_tolerance":     "0.1",
			"backup":               "0",
			"retain_micro_outputs": "0",
		},
	}
}

// Target is one training target of an optimization stage.
type Target interface {
	targetName() string
}

// TorsionProfileTarget fits against torsion scan energy profiles.
type TorsionProfileTarget struct {
	Type              string                `json:"type"`
	ReferenceData     *qcarchive.Collection `json:"reference_data"`
	EnergyDenominator float64               `json:"energy_denominator"`
	EnergyCutoff      float64               `json:"energy_cutoff"`
	Extras            map[string]string     `json:"extras"`
}

func (t TorsionProfileTarget) targetName() string { return "torsion-profile" }

// OptGeoTarget fits against optimized geometries.
type OptGeoTarget struct {
	Type                string                `json:"type"`
	ReferenceData       *qcarchive.Collection `json:"reference_data"`
	Weight              float64               `json:"weight"`
	BondDenominator     float64               `json:"bond_denominator"`
	AngleDenominator    float64               `json:"angle_denominator"`
	DihedralDenominator float64               `json:"dihedral_denominator"`
	ImproperDenominator float64               `json:"improper_denominator"`
	Extras              map[string]string     `json:"extras"`
}

func (t OptGeoTarget) targetName() string { return "opt-geo" }

// ParameterSMIRKS releases the named attributes of one force-field rule
// for fitting. Type is the handler-qualified kind, e.g. "BondSMIRKS".
type ParameterSMIRKS struct {
	Type       string   `json:"type"`
	SMIRKS     string   `json:"smirks"`
	Attributes []string `json:"attributes"`
}

// Hyperparameters sets the fitting priors for one parameter kind.
type Hyperparameters struct {
	Type   string             `json:"type"`
	Priors map[string]float64 `json:"priors"`
}

// Stage is one optimization stage: an optimizer, its targets, and the
// parameters it may move.
type Stage struct {
	Optimizer                Settings          `json:"optimizer"`
	Targets                  []Target          `json:"targets"`
	Parameters               []ParameterSMIRKS `json:"parameters"`
	ParameterHyperparameters []Hyperparameters `json:"parameter_hyperparameters"`
}

// Schema is a complete optimization input document.
type Schema struct {
	ID                string  `json:"id"`
	InitialForceField string  `json:"initial_force_field"`
	Stages            []Stage `json:"stages"`
}
