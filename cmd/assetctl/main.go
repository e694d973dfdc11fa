package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"assetpipe/internal/client/uploader"
)

var rootCmd = &cobra.Command{
	Use:   "assetctl",
	Short: "assetctl - studio asset upload client",
	Long: `assetctl uploads files to the studio asset library through the upload API
and inspects or cleans up incomplete multipart uploads.

The API token is read from --token or ASSETPIPE_TOKEN.`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().String("server", "http://localhost:8080", "Upload API base URL")
	rootCmd.PersistentFlags().String("token", "", "Bearer token (or set ASSETPIPE_TOKEN)")
}

// newClient 从全局参数构造 API 客户端
func newClient(cmd *cobra.Command) *uploader.Client {
	server, _ := cmd.Flags().GetString("server")
	token, _ := cmd.Flags().GetString("token")
	if strings.TrimSpace(token) == "" {
		token = os.Getenv("ASSETPIPE_TOKEN")
	}
	return uploader.NewClient(strings.TrimRight(server, "/"), token)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
