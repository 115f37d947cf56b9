// Package client contains Cobra CLI commands for vary.
package client
