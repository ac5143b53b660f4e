// Package database provides the TimescaleDB connection pool used by the
// optional database sink. Deployments writing parquet to local disk (the
// default) never open a pool.
package database
