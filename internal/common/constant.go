// Package common contains shared constants and sentinel errors used across
// membership components.
package common

// DefaultApplicationName is the namespace used when none is configured.
const DefaultApplicationName = "/"

// ListSeparator is forbidden inside user and role names.
const ListSeparator = ","
