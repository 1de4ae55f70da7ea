package accounts

import (
	"context"
	"fmt"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-featuregate/gate"
	"github.com/goliatone/go-featuregate/gate/guard"
)

// requireFeature checks the resolved settings flag first and then, when a
// gate is configured, the gate key. Both report disabledErr when off.
func requireFeature(ctx context.Context, allowed bool, featureGate gate.FeatureGate, key string, disabledErr error) error {
	if !allowed {
		return disabledErr
	}

	if featureGate == nil {
		return nil
	}

	return guard.Require(ctx, featureGate, key,
		guard.WithDisabledError(disabledErr),
		guard.WithErrorMapper(func(err error) error {
			return gateError(key, err)
		}),
	)
}

// gateError keeps rich errors from the gate and wraps anything else so the
// transport still renders a 403.
func gateError(key string, err error) error {
	if err == nil {
		return nil
	}

	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return err
	}

	return errors.Wrap(err, errors.CategoryAuthz, fmt.Sprintf("feature %s could not be resolved", key)).
		WithCode(errors.CodeForbidden).
		WithTextCode(TextCodeRegistrationDisabled)
}
