// Package email is the Postmark channel: inbound webhook parsing, signature
// checks, reply threading and the outbound client.
//
// Invariants:
// - Inbound payloads are schema-checked before anything is stored.
// - A thread's conversation id is the Postmark MailboxHash when present.
// - Outbound emails are stored only after Postmark accepts them.
package email
