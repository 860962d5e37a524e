// Package logx is villagekeep's logging layer on top of zerolog.
//
// A Service owns the sinks (console, JSON file) and can be reconfigured on
// config reload; Loggers derived from it follow the swap. Lines below error
// level pass through an optional token bucket so a record that faults on
// every driver pass cannot drown the log.
package logx
