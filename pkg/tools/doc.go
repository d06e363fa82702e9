// Package tools provides the tools exposed to the agent: semantic
// transaction search and a restricted arithmetic calculator.
package tools
