// Package transport talks to the target host.
//
// Remote commands run over a native SSH client (golang.org/x/crypto/ssh)
// that connects on first use and is reused for the rest of the run. File
// transfer goes through the system rsync binary, which tunnels over the
// system ssh using the same connection arguments.
//
// Commands sent to the remote shell are quoted with mvdan.cc/sh/v3/syntax.
package transport
