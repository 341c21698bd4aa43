// Package panel serves the dashboard web UI as an embedded asset.
//
// The static files under web/ are embedded into the binary with go:embed,
// so the server has no runtime dependency on external files. Handler serves
// them with SPA fallback: unknown paths get index.html.
//
// Everything is served with no-cache so a new binary is picked up on the
// next reload.
package panel
