package mesh

import (
	"github.com/go-playground/validator/v10"

	"github.com/mmgwasm/mmgwasm/errors"
)

// Options control one remesh run. Zero values mean "engine default"; set
// fields are validated before any foreign call is made.
type Options struct {
	// Hmin and Hmax bound the target edge length. When both are set,
	// Hmin must be strictly below Hmax.
	Hmin float64 `json:"hmin,omitempty" validate:"omitempty,gt=0"`
	Hmax float64 `json:"hmax,omitempty" validate:"omitempty,gt=0,gtfield=Hmin"`

	// Hausd bounds the Hausdorff distance to the input boundary.
	Hausd float64 `json:"hausd,omitempty" validate:"omitempty,gt=0"`

	// Hgrad bounds the size ratio between adjacent edges.
	Hgrad float64 `json:"hgrad,omitempty" validate:"omitempty,gt=1"`

	// AngleDetection is the ridge detection threshold in degrees.
	AngleDetection float64 `json:"angleDetection,omitempty" validate:"omitempty,gt=0,lte=180"`

	// Operation suppression switches.
	NoInsert bool `json:"noInsert,omitempty"`
	NoSwap   bool `json:"noSwap,omitempty"`
	NoMove   bool `json:"noMove,omitempty"`
	NoSurf   bool `json:"noSurf,omitempty"`

	// Optim optimizes element shape without changing the size map.
	Optim bool `json:"optim,omitempty"`

	// Verbose is the engine chatter level (-1 silences).
	Verbose int `json:"verbose,omitempty"`

	// Memory is the engine memory budget in MB.
	Memory int `json:"memory,omitempty" validate:"omitempty,gt=0"`
}

var optionsValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks option consistency.
func (o *Options) Validate() error {
	if o == nil {
		return nil
	}
	if err := optionsValidator.Struct(o); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			v := verrs[0]
			return errors.Validation(errors.PhaseRemesh, v.Field(),
				"value %v fails constraint %q", v.Value(), v.Tag())
		}
		return errors.New(errors.PhaseRemesh, errors.KindValidation).
			Cause(err).Detail("options").Build()
	}
	return nil
}
