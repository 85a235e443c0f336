package net

// RPCResponse captures both a response and a potential error.
type RPCResponse struct {
	Response interface{}
	Error    error
}

// RPC encapsulates an RPC request and provides a response mechanism.
type RPC struct {
	Command  interface{}
	RespChan chan<- RPCResponse
}

// newRPC wraps cmd in an RPC whose response can be read from the returned
// channel. The channel is buffered so that Respond never blocks on a caller
// that gave up waiting.
func newRPC(cmd interface{}) (RPC, <-chan RPCResponse) {
	respCh := make(chan RPCResponse, 1)
	return RPC{Command: cmd, RespChan: respCh}, respCh
}

// Respond is used to respond with a response, error or both.
func (r *RPC) Respond(resp interface{}, err error) {
	r.RespChan <- RPCResponse{resp, err}
}
