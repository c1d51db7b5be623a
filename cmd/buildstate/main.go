// File: cmd/buildstate/main.go
//
// buildstate prints the chat page's default state as JSON. The output is
// produced ahead of time and needs neither network nor storage.
package main

import (
	"encoding/json"
	"flag"
	"io"
	"log"
	"os"

	"chat-assistant/internal/domain/model"
)

func main() {
	out := flag.String("out", "-", "output file, - for stdout")
	flag.Parse()

	var w io.Writer = os.Stdout
	if *out != "-" {
		f, err := os.Create(*out)
		if err != nil {
			log.Fatalf("create %s: %v", *out, err)
		}
		defer f.Close()
		w = f
	}
	if err := writeState(w); err != nil {
		log.Fatalf("write state: %v", err)
	}
}

func writeState(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(model.InitialState())
}
