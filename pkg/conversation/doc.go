// Package conversation turns user input into stored conversations. It is the
// layer shared by the CLI, the JSON API, the email processor and the MCP tools.
//
// Invariants:
// - A conversation's message_count and total_cost equal the sum over its stored messages.
// - Continuing an archived conversation makes it active again.
package conversation
