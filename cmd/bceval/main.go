// Command bceval evaluates the values flowing through the bytecode of a
// program image.
//
// Usage:
//
//	bceval check testdata/images/*.toml
//	bceval values app.toml 'app/Svc.run()V' call
//	bceval callsites app.toml 'app/Client.send(Ljava/lang/String;)V' -n 1
//	bceval compile app.toml -o app.cbor
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
