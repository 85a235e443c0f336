package semchain

import (
	"os"

	"github.com/provchain/semchain/src/config"
	"github.com/provchain/semchain/src/graph"
)

// This example starts a node from the default data directory, which must
// contain a validators.json file, and submits one statement.
func Example() {
	// Start from default configuration.
	conf := config.NewDefaultConfig()

	node := NewSemchain(conf)

	// Read in the configuration and initialise the node accordingly.
	if err := node.Init(); err != nil {
		conf.Logger().WithError(err).Error("Cannot initialize semchain")
		os.Exit(1)
	}

	// Run the node and the HTTP service asynchronously.
	node.RunAsync()
	defer node.Shutdown()

	node.Node.SubmitStatements([]graph.Statement{
		graph.NewStatement(
			graph.IRI("http://example.org/batch1"),
			graph.IRI("http://example.org/hasOrigin"),
			graph.IRI("http://example.org/FarmA"),
		),
	})
}
