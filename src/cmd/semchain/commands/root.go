package commands

import (
	"github.com/provchain/semchain/src/config"
	"github.com/spf13/cobra"
)

var (
	_config = config.NewDefaultConfig()
)

//RootCmd is the root command for SEMCHAIN
var RootCmd = &cobra.Command{
	Use:              "semchain",
	Short:            "semantic blockchain node",
	TraverseChildren: true,
}
