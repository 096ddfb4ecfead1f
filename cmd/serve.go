package cmd

import (
	"github.com/RuntimeErrorGr/Serverless-HostScanner/api"

	"github.com/spf13/cobra"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the API server",
	Run: func(cmd *cobra.Command, args []string) {
		api.StartServer()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
