// Package validation checks that the backing services the server was
// configured with are reachable before it starts taking traffic
package validation

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cinesync/backend/internal/logger"
)

// Check probes one service
type Check func(ctx context.Context) error

// Services that may be marked required with CINESYNC_REQUIRE_<NAME>
var knownServices = []string{"store", "redis", "s3", "tmdb", "fcm", "search"}

// ServiceValidator runs the checks of the required services
type ServiceValidator struct {
	requiredServices []string
	checks           map[string]Check
	timeout          time.Duration
}

// NewServiceValidator creates a validator requiring the services named by
// the CINESYNC_REQUIRE_* environment variables
func NewServiceValidator() *ServiceValidator {
	return NewServiceValidatorFor(parseRequiredServices())
}

// NewServiceValidatorFor creates a validator requiring the given services
func NewServiceValidatorFor(required []string) *ServiceValidator {
	return &ServiceValidator{
		requiredServices: required,
		checks:           make(map[string]Check),
		timeout:          10 * time.Second,
	}
}

// Register adds the probe for a service. Services without a probe are
// reported as not configured when required.
func (sv *ServiceValidator) Register(name string, check Check) {
	sv.checks[name] = check
}

// Required returns the names of the required services
func (sv *ServiceValidator) Required() []string {
	return sv.requiredServices
}

// ValidateServices runs the probe of every required service and fails on the
// first error. Registered but optional services are probed too and only
// logged.
func (sv *ServiceValidator) ValidateServices(ctx context.Context) error {
	required := make(map[string]bool, len(sv.requiredServices))
	for _, name := range sv.requiredServices {
		required[name] = true
		if _, ok := sv.checks[name]; !ok {
			return fmt.Errorf("required service %q is not configured", name)
		}
	}

	names := make([]string, 0, len(sv.checks))
	for name := range sv.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		timeoutCtx, cancel := context.WithTimeout(ctx, sv.timeout)
		err := sv.checks[name](timeoutCtx)
		cancel()

		if err == nil {
			logger.Log.Info("Service validated", zap.String("service", name))
			continue
		}
		if required[name] {
			logger.Log.Error("Required service validation failed", zap.String("service", name), zap.Error(err))
			return fmt.Errorf("required service %q validation failed: %w", name, err)
		}
		logger.Log.Warn("Optional service unavailable", zap.String("service", name), zap.Error(err))
	}
	return nil
}

// parseRequiredServices reads the CINESYNC_REQUIRE_* environment variables
func parseRequiredServices() []string {
	var required []string
	for _, service := range knownServices {
		envVar := fmt.Sprintf("CINESYNC_REQUIRE_%s", strings.ToUpper(service))
		if isTruthy(os.Getenv(envVar)) {
			required = append(required, service)
		}
	}
	return required
}

// isTruthy checks if a string value represents a truthy value
func isTruthy(value string) bool {
	if value == "" {
		return false
	}

	value = strings.ToLower(strings.TrimSpace(value))
	return value == "1" || value == "true" || value == "yes" || value == "on"
}
