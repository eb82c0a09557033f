// Package database provides the settings tree, provider connections,
// schema provisioning (ensure created/deleted, versioned and file
// migrations, shadow columns, foreign keys, SQL seeding), query hooks,
// metrics, health checks and the logging contract, built on top of Bun.
package database
