package cli

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"breakout-trader/internal/security"
)

func newAuthCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Kite Connect session management",
		Long: `Kite access tokens are valid until 6 AM IST the next day. Run 'auth login-url',
log in through the browser, then pass the request_token from the redirect URL
to 'auth complete'. The token is cached in the config directory.`,
	}
	cmd.AddCommand(newLoginURLCmd(app), newCompleteCmd(app), newAuthStatusCmd(app))
	return cmd
}

func newLoginURLCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login-url",
		Short: "Print (and optionally open) the Kite login URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Config.Credentials.Kite.APIKey == "" {
				return fmt.Errorf("kite api_key is not set in credentials.toml")
			}
			url := app.zerodha().LoginURL()
			if output.IsJSON() {
				return output.JSON(map[string]string{"login_url": url})
			}
			output.Bold("Login URL:")
			output.Println(url)

			if open, _ := cmd.Flags().GetBool("open"); open {
				if err := openURL(url); err != nil {
					output.Warning("Could not open browser automatically")
				}
			}
			output.Dim("Then run: breakout-trader auth complete <request_token>")
			return nil
		},
	}
	cmd.Flags().Bool("open", false, "open the URL in the default browser")
	return cmd
}

func newCompleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "complete <request_token>",
		Short: "Exchange a request token for an access token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			z := app.zerodha()
			if err := z.CompleteLogin(ctx, args[0]); err != nil {
				output.Error("Login failed: %s", security.MaskSecrets(err.Error()))
				return err
			}
			if err := z.Authenticate(ctx); err != nil {
				return err
			}
			output.Success("✓ Session saved")
			return nil
		},
	}
}

func newAuthStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check whether the cached session is valid",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			err := app.zerodha().Authenticate(ctx)
			if output.IsJSON() {
				resp := map[string]interface{}{"authenticated": err == nil}
				if err != nil {
					resp["error"] = security.MaskSecrets(err.Error())
				}
				return output.JSON(resp)
			}
			if err != nil {
				output.Error("✗ Not authenticated: %s", security.MaskSecrets(err.Error()))
				return nil
			}
			output.Success("✓ Authenticated")
			return nil
		},
	}
}

func openURL(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform")
	}
	return cmd.Start()
}
