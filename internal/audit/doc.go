// Package audit keeps the activity log: who signed in, signed up or out,
// and which devices were added, toggled or adjusted.
//
// Entries go through a Recorder, which queues them and writes them one at a
// time to the audit_logs table. Reads use the Repository directly.
package audit
