package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version 在构建时通过 -ldflags "-X main.version=..." 注入。
var version = "dev"

// newRootCmd 构建 Cobra 命令树。
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "imbotchat",
		Short:         "文本生成 HTTP 服务，带会话历史",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "打印版本号",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.Println(version)
			return nil
		},
	})

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
