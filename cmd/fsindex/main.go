// Package main 启动 fsindex 命令行.
package main

import (
	"os"

	"github.com/yeisme/fsindex/pkg/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
