// Package proxy defines AppProxy: the interface between a semchain node and
// the application that consumes committed graphs.
//
// The node submits nothing to the application but committed blocks, in height
// order. The application submits statements to the node through the channel
// returned by SubmitCh. The inmem subpackage implements AppProxy with native
// callback handlers, and provides a handler that loads every committed graph
// into a graph.StatementStore.
package proxy
