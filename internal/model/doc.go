// Package model defines shared data types used across the gatherer.
//
// Conventions:
//   - Prices: decimal.Decimal parsed from API strings (never float math upstream
//     of the storage layer; sinks convert at the boundary)
//   - Timestamps: time.Time in UTC; persisted as int64 microseconds since epoch
//   - Sequence numbers: int64 per ticker, strictly increasing; a hole in the
//     persisted sequence means a tick was missed, never that data was reordered
package model
