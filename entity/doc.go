// Package entity declares the marker types models embed to opt into the
// tenant, active, soft delete, audit, static and row version conventions,
// and the shadow columns each convention adds to a table.
package entity
