// Package main implements honeyctl, the operator CLI of the honeywire
// deception agent.
//
// honeyctl never injects into a process. It checks honeyaml files before they
// are deployed, follows a honeyaml file the way an injected agent would, and
// reads the evidence the agents record.
//
// Usage:
//
//	honeyctl validate /etc/honeywire/honeyaml.yaml
//	honeyctl watch --format json
//	honeyctl events query --kind status_replaced --limit 20
//	honeyctl events prune --retention-days 7
//	honeyctl version
package main

func main() {
	Execute()
}
