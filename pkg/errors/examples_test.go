package errors_test

import (
	stderrors "errors"
	"fmt"

	"github.com/agentstation/crmsync/pkg/errors"
)

// Example demonstrates basic error creation and checking.
func Example() {
	err := fmt.Errorf("load: %w", errors.NewNotFoundError("master", "email:ana@example.com"))

	if stderrors.Is(err, errors.ErrNotFound) {
		fmt.Println("Resource not found")
	}

	// Output: Resource not found
}

// Example_classification shows how a run sorts failures into outcome buckets.
func Example_classification() {
	failures := []error{
		errors.NewAPIError("/clients", 503, "unavailable"),
		&errors.RateLimitError{Endpoint: "/clients", StatusCode: 429, Attempts: 5},
		errors.NewMappingError("client", "id", "missing or empty"),
		errors.NewPersistenceError("update", "clients", "9", 400, nil),
	}

	for _, err := range failures {
		switch {
		case errors.IsRateLimited(err):
			fmt.Println("rate_limited")
		case errors.IsTransient(err):
			fmt.Println("network")
		case errors.IsMapping(err):
			fmt.Println("mapping")
		case errors.IsPersistence(err):
			fmt.Println("persistence")
		}
	}

	// Output:
	// network
	// rate_limited
	// mapping
	// persistence
}

// Example_fatalConfig shows the only error class that aborts a run.
func Example_fatalConfig() {
	err := fmt.Errorf("startup: %w", errors.NewConfigError("remote", "base URL is required", nil))

	fmt.Println(errors.IsFatal(err))
	// Output: true
}
