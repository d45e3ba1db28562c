// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

/*
Package config loads regionsyncd configuration.

Sources are layered with knadh/koanf, later sources overriding earlier ones:

 1. Built-in defaults (defaultConfig)
 2. An optional YAML file: $CONFIG_PATH, regionsync.yaml, or
    /etc/regionsync/config.yaml
 3. Environment variables listed in envMappings

# Sections

  - transport: remote store URL, bearer token, timeout, rate limit and
    circuit breaker settings
  - push: live event source (websocket, nats or none)
  - reconcile: batch size, page cap, retry policy, periodic interval
  - regions: ownership checks and the regions opened at startup
  - journal: rejected-event journal
  - api: debug HTTP API
  - logging, supervisor

# Example

	transport:
	  url: https://inventory.example.com/sync
	  token: ${TRANSPORT_TOKEN}
	push:
	  mode: websocket
	  url: wss://inventory.example.com/live
	regions:
	  startup: ["inventory", "geo_group:47.1,8.2,47.9,9.0"]

Comma-separated environment values are split for list fields, so
REGIONS_STARTUP=inventory,children_of:box-1 opens two regions.
*/
package config
