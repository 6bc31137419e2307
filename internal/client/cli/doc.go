// Package cli implements the radsync command line: a cobra command tree over
// an App that wires the Local Store, push queue, transport and sync services.
package cli
