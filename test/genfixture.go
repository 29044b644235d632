// genfixture writes a small sample notebook for manual testing: one
// plaintext note, one encrypted note and the master-key record that unlocks
// it. Run with: go run ./test --dir /tmp/sample-notebook
package main

import (
	"crypto/rand"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/skhoury/notereader/internal/fixture"
	"github.com/skhoury/notereader/krypto"
)

const (
	sampleKeyID    = "3336eb7a2472d9ae4a690a978fa8a46f"
	samplePassword = "plaintext_password"
)

func main() {
	dir := flag.String("dir", "", "directory to write the sample notebook into")
	iterations := flag.Int("iterations", krypto.DefaultPBKDF2Params().Iterations, "PBKDF2 iterations for the master key record")
	flag.Parse()

	if *dir == "" {
		fmt.Fprintln(os.Stderr, "missing required flag: --dir")
		os.Exit(1)
	}
	if err := os.MkdirAll(*dir, 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "create directory: %v\n", err)
		os.Exit(1)
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		fmt.Fprintf(os.Stderr, "generate master key: %v\n", err)
		os.Exit(1)
	}

	keyFile, err := fixture.WrapMasterKey(sampleKeyID, samplePassword, raw, *iterations)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wrap master key: %v\n", err)
		os.Exit(1)
	}
	write(*dir, sampleKeyID+".md", keyFile)

	write(*dir, "1.md", fixture.PlaintextNote("1", "First note", "hello"))

	encFile, err := fixture.EncryptedNote("2", "Second note",
		"This body only decrypts with the sample password.", sampleKeyID, raw, krypto.MethodGCM)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build encrypted note: %v\n", err)
		os.Exit(1)
	}
	write(*dir, "2.md", encFile)

	fmt.Printf("sample notebook written to %s\n", *dir)
	fmt.Printf("open it with: notereader list --dir %s --passwords '%s,%s'\n", *dir, sampleKeyID, samplePassword)
}

func write(dir, name, content string) {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", name, err)
		os.Exit(1)
	}
}
