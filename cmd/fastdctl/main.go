// Command fastdctl is the administrative CLI for fastd-core: it dials the
// daemon's control socket to bind/close sockets and manage peers.
package main

import "github.com/digineo/fastd-core/cmd/fastdctl/commands"

func main() {
	commands.Execute()
}
