package scheduler

// Package scheduler provides scheduled job management for long-lived
// deployments. It handles:
// - Polling the daily pipeline window every 15 minutes, mirroring the
//   external uptime monitor
// - Nightly cleanup of expired admin sessions and aged rows
//
// Serverless deployments leave this disabled and rely on the external
// poller hitting /etl instead.
//
// The jobs are implemented in jobs.go
