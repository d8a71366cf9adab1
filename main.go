// Package main is the entry point for the steps-auth CLI.
//
// The CLI synthesizes, deploys, validates and destroys the Steps identity
// stack: a Cognito user pool and its application client.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/anirudhbiyani/steps-auth/internal/config"
	"github.com/anirudhbiyani/steps-auth/internal/logger"
	"github.com/anirudhbiyani/steps-auth/pkg/authstack"
	"github.com/anirudhbiyani/steps-auth/pkg/providers/awsclient"

	// Import providers to register them
	_ "github.com/anirudhbiyani/steps-auth/pkg/providers/cloudformation"
	_ "github.com/anirudhbiyani/steps-auth/pkg/providers/cognito"
)

const (
	exitError           = 1
	exitValidationError = 2
)

var version = "0.1.0"

// errInvalid signals a validation report with failing checks.
var errInvalid = errors.New("deployment is not valid")

// app holds the dependencies shared by every command.
type app struct {
	configPath string
	logLevel   string

	cfg     *config.Config
	log     *zap.Logger
	manager *authstack.DefaultManager
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{}
	err := newRootCmd(a).ExecuteContext(ctx)
	if a.log != nil {
		_ = a.log.Sync()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if hint := authstack.Hint(err); hint != "" {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
		}
		os.Exit(exitCode(err))
	}
}

// exitCode maps a command error to the process exit status. A declined
// destroy confirmation counts as a failure.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errInvalid):
		return exitValidationError
	default:
		return exitError
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "steps-auth",
		Short:         "Identity stack lifecycle management for Steps",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Config file (default searches ./steps-auth.yaml, ./config, $HOME/.steps-auth)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Override log.level (debug|info|warn|error)")

	root.AddCommand(
		newSynthCmd(a),
		newDeployCmd(a),
		newValidateCmd(a),
		newDestroyCmd(a),
		newListCmd(a),
		newDescribeCmd(a),
		newOutputsCmd(a),
		newProvidersCmd(a),
		newVersionCmd(),
	)
	return root
}

// setup loads configuration and wires the logger, state store and manager.
func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}

	log, _, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	store, err := authstack.NewFileStateStore(cfg.State.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize state store: %w", err)
	}

	providerConfig := cfg.ProviderConfig()
	providerConfig[awsclient.ConfigLogger] = log

	a.cfg = cfg
	a.log = log
	a.manager = authstack.NewManager(
		authstack.WithStateStore(store),
		authstack.WithLogger(log),
		authstack.WithDefaultProvider(authstack.ProviderName(cfg.Deploy.Provider)),
		authstack.WithProviderConfig(authstack.ProviderCloudFormation, providerConfig),
		authstack.WithProviderConfig(authstack.ProviderCognito, providerConfig),
	)

	log.Debug("configuration loaded",
		zap.String("stack", cfg.Stack.ID),
		zap.String("provider", cfg.Deploy.Provider),
		zap.String("state", store.Path()),
	)
	return nil
}

// stack assembles the identity stack from configuration.
func (a *app) stack() *authstack.Stack {
	return authstack.NewAuthStack(a.cfg.Stack.ID, a.cfg.StackProps())
}

// resolveRef loads the deployment named by id, or the most recent deployment
// of the configured stack when id is empty.
func (a *app) resolveRef(ctx context.Context, id string) (*authstack.StackRef, error) {
	if id != "" {
		ref, err := a.manager.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("deployment not found: %w", err)
		}
		return ref, nil
	}

	refs, err := a.manager.List(ctx, authstack.ListFilter{StackID: a.cfg.Stack.ID, Newest: true, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("no deployments of stack %s; pass --ref or deploy first", a.cfg.Stack.ID)
	}
	return &refs[0], nil
}
