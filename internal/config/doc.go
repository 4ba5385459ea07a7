// Package config loads, normalizes, and validates dropsync configuration.
//
// Two layers feed the engine. The application config is a TOML file holding
// paths, logging, and the catalog backend connection; it supplies repository
// defaults and expands user paths. The sync spec is a per-drop-folder
// `.sync.yml` describing discovery, identity templating, metadata sources,
// match/derive/replace rules, and catalog write-back fields. Command flags
// can override individual settings per invocation.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, compiled expressions, and clear validation errors before
// the pipeline starts.
package config
