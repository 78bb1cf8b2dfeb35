package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"

	log "github.com/sirupsen/logrus"

	"github.com/tinfoilsh/hawkcall/key"
	"github.com/tinfoilsh/hawkcall/key/offline"
)

var (
	output    = flag.String("o", "credentials.yml", "Credential store file, appended to if it exists")
	count     = flag.Int("n", 1, "Number of credentials to generate")
	keyLength = flag.Int("l", key.DefaultKeyLength, "Key length")
)

func main() {
	flag.Parse()

	store, err := offline.Load(*output)
	if errors.Is(err, fs.ErrNotExist) {
		store, err = offline.NewStore()
	}
	if err != nil {
		log.Fatalf("Failed to open credential store: %v", err)
	}

	for i := 0; i < *count; i++ {
		cred, err := key.Generate(*keyLength)
		if err != nil {
			log.Fatalf("Failed to generate credential: %v", err)
		}
		if err := store.Add(cred); err != nil {
			log.Fatalf("Failed to add credential: %v", err)
		}
		fmt.Printf("credential-id: %s\ncredential-key: %s\n", cred.ID, cred.Key)
	}

	if err := store.Save(*output); err != nil {
		log.Fatal(err)
	}
	log.Infof("Wrote %d credentials to %s", store.Len(), *output)
}
