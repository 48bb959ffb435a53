// Command sidecar supervises one interactive AI agent under a
// pseudo-terminal proxy and bridges it to a chat gateway.
package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyper-ai-inc/csp-sidecar/internal/flowcontrol"
	"github.com/hyper-ai-inc/csp-sidecar/internal/sidecar"
)

const defaultGatewayURL = "http://localhost:8765"

func main() {
	var (
		name          string
		gatewayURL    string
		authToken     string
		initialPrompt string
	)

	root := &cobra.Command{
		Use:   "sidecar --name <agent_name> -- <cmd> [args...]",
		Short: "PTY proxy + gateway bridge for one supervised AI agent",
		Args:  cobra.MinimumNArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			argv := args
			if dash := cmd.ArgsLenAtDash(); dash >= 0 {
				argv = args[dash:]
			}
			if name == "" || len(argv) == 0 {
				return fmt.Errorf("--name and a trailing command (after --) are required")
			}

			cfg := sidecar.Config{
				AgentName:        name,
				GatewayURL:       gatewayURL,
				AuthToken:        authToken,
				InitialPrompt:    initialPrompt,
				Argv:             argv,
				InjectionTimeout: injectionTimeout(),
			}

			return sidecar.New(cfg).Run()
		},
	}

	root.Flags().StringVar(&name, "name", "", "agent name (required)")
	root.Flags().StringVar(&gatewayURL, "gateway-url", defaultGatewayURL, "chat gateway base URL")
	root.Flags().StringVar(&authToken, "auth-token", "", "gateway auth token")
	root.Flags().StringVar(&initialPrompt, "initial-prompt", "", "text injected into the agent shortly after start")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// injectionTimeout reads CSP_INJECTION_TIMEOUT (seconds, float) per
// spec.md §6, falling back to flowcontrol.DefaultInjectionTimeout.
func injectionTimeout() time.Duration {
	raw := os.Getenv("CSP_INJECTION_TIMEOUT")
	if raw == "" {
		return flowcontrol.DefaultInjectionTimeout
	}
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil || seconds <= 0 {
		return flowcontrol.DefaultInjectionTimeout
	}
	return time.Duration(seconds * float64(time.Second))
}
