// Package types holds the value types shared by repositories: paging
// requests and results, enumerations, value objects, JSON columns and the
// converters that map them to primitive column values.
package types
