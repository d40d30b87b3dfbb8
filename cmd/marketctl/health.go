package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/johnhkchen/minecraft-marketplace-sub001/pkg/gateway"
)

func newHealthCmd() *cobra.Command {
	var (
		gatewayURL string
		timeoutMS  int
	)

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check that the data gateway answers catalog reads",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := &http.Client{Timeout: time.Millisecond * time.Duration(timeoutMS)}
			gw := gateway.NewClient(gatewayURL, client)

			start := time.Now()
			if err := gw.Ping(cmd.Context()); err != nil {
				return fmt.Errorf("gateway %s: %w", gatewayURL, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "gateway %s ok (%dms)\n", gatewayURL, time.Since(start).Milliseconds())
			return nil
		},
	}

	cmd.Flags().StringVar(&gatewayURL, "gateway-url", envOr("GATEWAY_URL", "http://localhost:3000"), "data gateway base URL")
	cmd.Flags().IntVar(&timeoutMS, "timeout-ms", 3000, "gateway request timeout")

	return cmd
}
