// Package cli implements the interactive HashFS terminal client: a
// read–eval–print loop over the vault dispatcher, with a no-echo
// passphrase prompt and one handler per vault operation.
package cli
