// Package logging builds the structured logger shared by every Gray Store
// component.
//
// Each entry carries the service name and build version. Components get a
// child logger through Component, so checkpoint, database, mqtt and api
// entries can be told apart:
//
//	logger := logging.New(cfg.Logging, version)
//	scheduler.SetLogger(logger.Component("checkpoint"))
//
// Durations are written as strings such as "250ms". At debug level the
// source location is added to each entry.
//
// Configuration:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// Cipher keys, tokens and passwords must never be logged;
// dbconfig.CipherConfig prints itself without the key.
package logging
