// Package services contains application services for the GophJournal
// client: account sign-in (online and offline) and the journal itself,
// which encrypts through the vault before anything is stored or sent.
package services
