// vaultd 托管金库节点及其运维命令
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "vaultd",
	Short:         "Custodial token vault",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	for _, f := range []func(*cobra.Command){
		registerServe,
		registerKeygen,
		registerSign,
		registerInspect,
	} {
		f(rootCmd)
	}
}
