package cmd

import (
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"gitscribe/internal/config"
	"gitscribe/internal/oauth"
	"gitscribe/pkg/logging"
)

// newLoginCmd creates the terminal device-flow client. It walks the same
// flow the browser frontend uses and prints the resulting auth session id.
func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authenticate against the git hosting provider",
		Long: `Runs the OAuth device authorization flow from the terminal. Open the
printed URL, enter the code, and the command waits until the provider
confirms the authorization.`,
		Args: cobra.NoArgs,
		RunE: runLogin,
	}
}

func runLogin(cmd *cobra.Command, args []string) error {
	logging.Init(logLevel(), cmd.ErrOrStderr())

	cfg, err := config.Load(rootConfigPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	store := oauth.NewMemoryTokenStore(1)
	defer store.Close()
	client := oauth.NewClient(cfg.OAuth, store)

	ctx := cmd.Context()
	info, err := client.Start(ctx)
	if err != nil {
		return fmt.Errorf("starting device flow: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Open %s and enter the code: %s\n\n", info.VerificationURI, info.UserCode)

	spin := spinner.New(spinner.CharSets[14], 100*time.Millisecond,
		spinner.WithWriter(cmd.ErrOrStderr()))
	spin.Suffix = " waiting for authorization..."
	spin.Start()
	defer spin.Stop()

	interval := time.Duration(info.Interval) * time.Second
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}

		result, err := client.Poll(ctx, info.SessionID)
		if err != nil {
			return fmt.Errorf("polling authorization: %w", err)
		}
		switch result.Status {
		case oauth.PollAuthorized:
			spin.Stop()
			user, err := client.UserInfo(ctx, info.SessionID)
			if err == nil {
				fmt.Fprintf(out, "Authorized as %s\n", user.Login)
			} else {
				fmt.Fprintln(out, "Authorized")
			}
			fmt.Fprintf(out, "Auth session: %s\n", info.SessionID)
			return nil
		case oauth.PollPending:
		case oauth.PollSlowDown:
			interval = time.Duration(result.Interval) * time.Second
		case oauth.PollDenied:
			return fmt.Errorf("authorization was denied")
		case oauth.PollExpired:
			return fmt.Errorf("the device code expired, run login again")
		default:
			return fmt.Errorf("authorization failed: %s", result.Status)
		}
	}
}
