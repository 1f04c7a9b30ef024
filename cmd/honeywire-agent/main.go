// Command honeywire-agent is the deception shared object. Build it with
//
//	go build -buildmode=c-shared -o libhoneywire.so ./cmd/honeywire-agent
//
// and start a server with LD_PRELOAD=/path/to/libhoneywire.so. Processes
// whose argv[0] names a supported technology are deceived according to the
// honeyaml file; every other process only pays for one symbol lookup per
// intercepted call.
//
// The agent is configured through the environment: HONEYWIRE_CONFIG names
// an optional YAML file and HONEYWIRE_* variables override single fields.
package main

func main() {}
