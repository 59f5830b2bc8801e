package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/arionlabs/arion/pkg/connectors"
	"github.com/arionlabs/arion/pkg/expr"
	"github.com/arionlabs/arion/pkg/identity"
	"github.com/arionlabs/arion/pkg/protocol"
	"github.com/arionlabs/arion/pkg/services"
)

// NewToolInvoker returns the HTTP tool connector when a gateway URL is
// configured, or the failing fallback so tool nodes report a clear error.
func NewToolInvoker(gatewayURL string, logger *slog.Logger) protocol.ToolInvoker {
	if gatewayURL == "" {
		return connectors.UnconfiguredTools{}
	}

	invoker, err := connectors.NewHTTPToolInvoker(connectors.HTTPConfig{BaseURL: gatewayURL}, logger)
	if err != nil {
		panic(fmt.Errorf("failed to initialize tool connector: %w", err))
	}

	return invoker
}

// NewCompletionService returns the HTTP completion connector when a gateway
// URL is configured.
func NewCompletionService(gatewayURL string, logger *slog.Logger) protocol.CompletionService {
	if gatewayURL == "" {
		return connectors.UnconfiguredCompletion{}
	}

	svc, err := connectors.NewHTTPCompletionService(connectors.HTTPConfig{BaseURL: gatewayURL}, logger)
	if err != nil {
		panic(fmt.Errorf("failed to initialize completion connector: %w", err))
	}

	return svc
}

// NewNotifier returns the webhook notifier when a gateway URL is configured,
// falling back to log-only delivery so notification nodes never fail an
// execution for lack of a transport.
func NewNotifier(gatewayURL string, logger *slog.Logger) protocol.Notifier {
	if gatewayURL == "" {
		return connectors.NewLogNotifier(logger)
	}

	notifier, err := connectors.NewWebhookNotifier(connectors.HTTPConfig{BaseURL: gatewayURL}, logger)
	if err != nil {
		panic(fmt.Errorf("failed to initialize notifier connector: %w", err))
	}

	return notifier
}

// NewIdentityResolver builds the assignee resolver from an optional JSON
// directory file. An empty path yields an empty directory: user and
// expression descriptors still resolve, organizational ones fail cleanly.
func NewIdentityResolver(directoryPath string, logger *slog.Logger) *identity.Resolver {
	var cfg identity.StaticConfig

	if directoryPath != "" {
		raw, err := os.ReadFile(directoryPath)
		if err != nil {
			panic(fmt.Errorf("failed to read identity directory %q: %w", directoryPath, err))
		}

		if err := json.Unmarshal(raw, &cfg); err != nil {
			panic(fmt.Errorf("failed to parse identity directory %q: %w", directoryPath, err))
		}
	}

	return identity.NewResolver(identity.NewStaticProvider(cfg), expr.NewResolver(), logger)
}

// NewPermissionChecker loads the user -> permissions grants from an optional
// JSON file (user id to permission list). An empty path grants nothing, so
// only identity-based access applies.
func NewPermissionChecker(grantsPath string) services.PermissionChecker {
	grants := services.StaticPermissions{}

	if grantsPath != "" {
		raw, err := os.ReadFile(grantsPath)
		if err != nil {
			panic(fmt.Errorf("failed to read permission grants %q: %w", grantsPath, err))
		}

		if err := json.Unmarshal(raw, &grants); err != nil {
			panic(fmt.Errorf("failed to parse permission grants %q: %w", grantsPath, err))
		}
	}

	return grants
}
