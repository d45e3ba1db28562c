// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

// Package testinfra provides an in-memory remote object store for tests.
//
// Remote implements reconcile.Transport directly, and Serve exposes the same
// state over the HTTP protocol spoken by internal/transport, so end-to-end
// tests exercise the real client:
//
//	remote := testinfra.NewRemote()
//	remote.Put(`{"id":"box-1","revision":1}`)
//	srv := remote.Serve(t)
//	client := transport.NewClient(transport.Config{URL: srv.URL})
//
// Every HTTP request is captured for later assertions.
package testinfra
