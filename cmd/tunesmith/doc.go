// Package main hosts the tunesmith CLI entrypoint and command graph.
//
// Commands resolve configuration once, open the record store and browser
// sessions they need, and hand the work to the submission and distribution
// pipelines. Long runs go through the workflow pool so progress from several
// songs renders on one terminal.
package main
