package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tesola/staking-sync/internal/version"
)

var runVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the version of staking-sync",
	Run: func(cmd *cobra.Command, args []string) {
		bindCommandFlags(cmd)

		v := version.GetVersion()
		commit := version.GetCommit()

		fmt.Printf("StakingSyncVersion: %s\nCommit: %s\n", v, commit)
	},
}
