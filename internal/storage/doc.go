package storage

// Package storage provides a minimal persistence layer for the dispatch
// delivery log.
//
// It currently supports:
//   - Delivery log appends (terminal dispatch outcomes)
//   - Recent-outcome queries for operator inspection
//   - Age-based pruning driven by the sweeper
