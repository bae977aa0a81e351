// Command familyassistant runs the household agent: a durable task worker
// plus an agent-to-agent (A2A) JSON-RPC/SSE server over a shared Postgres
// store.
package main

import "github.com/familyassistant/core/cmd"

func main() {
	cmd.Execute()
}
