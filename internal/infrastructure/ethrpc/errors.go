package ethrpc

import "fmt"

// Error is returned for every failed RPC call: transport failures carry the
// cause in Err, node-side failures carry Code and Message.
type Error struct {
	Method  string
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("rpc %s: %v", e.Method, e.Err)
	case e.Code != 0:
		return fmt.Sprintf("rpc %s error %d: %s", e.Method, e.Code, e.Message)
	default:
		return fmt.Sprintf("rpc %s: %s", e.Method, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}
