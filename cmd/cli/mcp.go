package main

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"forge-endpointify/internal/tools"
)

func newMCPCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the endpointify tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			srv := mcp.NewServer(&mcp.Implementation{Name: "forge-endpointify", Version: version}, nil)
			tools.Register(srv, tools.NewHandler(a.svc, a.logger))
			a.logger.Info("mcp stdio server starting")
			if err := srv.Run(cmd.Context(), &mcp.StdioTransport{}); err != nil {
				a.logger.Error("mcp server stopped", zap.Error(err))
				return err
			}
			return nil
		},
	}
}
