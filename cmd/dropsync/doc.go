// Command dropsync plans and executes synchronization of dropped files into
// a managed repository, with metadata matching and catalog write-back.
package main
