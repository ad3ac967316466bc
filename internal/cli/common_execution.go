package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/solbeam/solbeam/internal/config"
	"github.com/solbeam/solbeam/internal/executor"
	"github.com/solbeam/solbeam/internal/ledger"
	"github.com/solbeam/solbeam/internal/logging"
	"github.com/solbeam/solbeam/internal/store"
)

// workflow bundles the collaborators a command needs. Configuration is
// resolved once per invocation and passed in explicitly; nothing here is
// ambient process state.
type workflow struct {
	cfg     *config.Config
	envName string
	env     config.Environment
	store   *store.Store
}

// newWorkflow loads configuration, resolves the target environment from the
// --env flag, and opens the batch store.
func newWorkflow(cmd *cobra.Command) (*workflow, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	envFlag, _ := cmd.Flags().GetString("env")
	envName, env, err := cfg.Env(envFlag)
	if err != nil {
		return nil, err
	}

	st, err := store.New(cfg.DataDir())
	if err != nil {
		return nil, err
	}

	return &workflow{cfg: cfg, envName: envName, env: env, store: st}, nil
}

// identity names the batch for an input file in the resolved environment.
func (w *workflow) identity(inputPath string) store.Identity {
	return store.NewIdentity(w.envName, inputPath)
}

// ledgerClient builds the RPC ledger client for the resolved environment,
// loading the sender keypair.
func (w *workflow) ledgerClient() (ledger.Client, error) {
	if w.env.Keypair == "" {
		return nil, fmt.Errorf("no keypair configured for environment %q", w.envName)
	}
	if w.env.TokenMint == "" {
		return nil, fmt.Errorf("no token mint configured for environment %q", w.envName)
	}

	keypair, err := ledger.LoadKeypair(w.env.Keypair)
	if err != nil {
		return nil, err
	}

	return ledger.NewRPCClient(
		w.env.RPCURL,
		keypair,
		w.env.TokenMint,
		w.env.TokenDecimals,
		logging.ComponentLogger(logger, "ledger"),
	)
}

// newExecutor builds the transfer executor over the given ledger client.
func (w *workflow) newExecutor(client ledger.Client) *executor.Executor {
	return executor.New(w.store, client, executor.Config{
		Workers:        w.cfg.Transfer.Workers,
		ConfirmTimeout: time.Duration(w.cfg.Transfer.ConfirmTimeoutSeconds) * time.Second,
		ConfirmPoll:    time.Duration(w.cfg.Transfer.ConfirmPollSeconds) * time.Second,
	}, logging.ComponentLogger(logger, "executor"))
}
