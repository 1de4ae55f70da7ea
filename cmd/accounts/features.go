package main

import (
	"context"

	"github.com/goliatone/go-featuregate/gate"
	"github.com/goliatone/go-featuregate/resolver"
)

// featureDefaults answers resolver default lookups from the [features]
// table. Keys it does not list stay enabled.
type featureDefaults map[string]bool

var _ resolver.Defaults = featureDefaults(nil)

func (d featureDefaults) Default(_ context.Context, key string) (resolver.DefaultResult, error) {
	if enabled, ok := d[gate.NormalizeKey(key)]; ok {
		return resolver.DefaultResult{Set: true, Value: enabled}, nil
	}
	return resolver.DefaultResult{Set: true, Value: true}, nil
}

// newFeatureGate builds the gate checked by registration and password reset
// after the stored settings allowed the request. It returns nil when no
// feature is configured.
func newFeatureGate(features map[string]bool) gate.FeatureGate {
	if len(features) == 0 {
		return nil
	}

	defaults := make(featureDefaults, len(features))
	for key, enabled := range features {
		defaults[gate.NormalizeKey(key)] = enabled
	}

	return resolver.New(resolver.WithDefaults(defaults))
}
