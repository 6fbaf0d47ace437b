package serialize

import (
	"fmt"

	"github.com/rewired-gh/loadforecast/internal/models"
)

// ExtractWarmStartParameters reads the chain-0 point estimates of a fitted
// model for use as the initial point of a new fit. Scalars come from element
// [0][0], the delta and beta arrays from chain [0].
func ExtractWarmStartParameters(m *models.Model) (*models.ParameterSeed, error) {
	if m == nil || m.Params == nil {
		return nil, fmt.Errorf("%w: model has not been fit", models.ErrMissingParameters)
	}

	k, err := m.Params.Scalar(models.ParamK)
	if err != nil {
		return nil, err
	}
	offset, err := m.Params.Scalar(models.ParamM)
	if err != nil {
		return nil, err
	}
	sigma, err := m.Params.Scalar(models.ParamSigmaObs)
	if err != nil {
		return nil, err
	}
	delta, err := m.Params.Chain(models.ParamDelta)
	if err != nil {
		return nil, err
	}
	beta, err := m.Params.Chain(models.ParamBeta)
	if err != nil {
		return nil, err
	}

	return &models.ParameterSeed{
		K:        k,
		M:        offset,
		SigmaObs: sigma,
		Delta:    append([]float64{}, delta...),
		Beta:     append([]float64{}, beta...),
	}, nil
}
