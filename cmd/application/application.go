// Package application provides the application interface for crmsync commands.
//
// The Application interface defines the contract between the application layer and
// command implementations, enabling dependency injection and testability.
//
// Usage in Commands:
//
//	func NewCommand(app application.Application) *cobra.Command {
//	    return &cobra.Command{
//	        RunE: func(cmd *cobra.Command, args []string) error {
//	            client, err := app.Client()
//	            if err != nil {
//	                return err
//	            }
//	            res, err := client.Sync(cmd.Context(), app.SyncOptions()...)
//	            // ... render res
//	        },
//	    }
//	}
//
// Testing with Mocks:
//
//	mock := &application.Mock{
//	    ClientFunc: func() (crmsync.Client, error) {
//	        return crmsync.New(crmsync.WithStore(memory.New()))
//	    },
//	}
//	cmd := NewCommand(mock)
package application

import (
	"github.com/rs/zerolog"

	"github.com/agentstation/crmsync"
	pkgsync "github.com/agentstation/crmsync/pkg/sync"
)

// Application provides the application interface that commands need.
// The App struct from cmd/crmsync/app implements it.
//
// Thread Safety: All methods must be safe for concurrent access.
type Application interface {
	// Client returns the shared client, creating it on first use from the
	// loaded configuration.
	Client() (crmsync.Client, error)

	// SyncOptions returns the sync options taken from the configuration.
	// Commands append their flag overrides after these.
	SyncOptions() []pkgsync.Option

	// Sources returns the configured consolidation sources.
	Sources() []crmsync.Source

	// Logger returns the configured logger instance.
	Logger() *zerolog.Logger

	// OutputFormat returns the configured output format (table, json, yaml).
	OutputFormat() string
}
