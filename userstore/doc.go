// Package userstore is the PostgreSQL-backed user directory: lookup by email
// or id for login and who-am-i, creation for registration, and password hash
// updates.
//
// It talks to Postgres through database/sql with the pgx driver. Ids are
// ULIDs. Emails are stored normalized and are unique.
package userstore
