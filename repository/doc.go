// Package repository provides the unit of work and a generic repository
// built on Bun. Writes are tracked by a Context and persisted together by
// Save, which stamps the shadow columns, checks row versions and protects
// static entities. Reads apply the tenant, active and delete filters that
// the conventions enable.
package repository
