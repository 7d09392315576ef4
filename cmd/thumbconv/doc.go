// Package main hosts the thumbconv CLI.
//
// The root command converts one image into a thumbnail; subcommands convert
// numbered sequences, check whether a stamped thumbnail still matches its
// source, and print the effective configuration. Flags override the loaded
// configuration only when given explicitly.
package main
