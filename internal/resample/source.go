package resample

import (
	"context"

	"github.com/basekick-labs/flightstats/pkg/models"
)

// Source provides the raw samples of one flight. Fields the source does not
// know are left out of the result rather than reported as errors.
type Source interface {
	Samples(ctx context.Context, fields []models.FieldID) (map[models.FieldID]models.Series, error)
}
