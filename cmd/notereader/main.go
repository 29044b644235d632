package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"syscall"

	"golang.org/x/term"

	"github.com/skhoury/notereader/auth"
	"github.com/skhoury/notereader/internal/index"
	"github.com/skhoury/notereader/internal/keychain"
	"github.com/skhoury/notereader/internal/keyring"
	"github.com/skhoury/notereader/internal/logging"
	"github.com/skhoury/notereader/notebook"
)

const cliVersion = "0.1.0"

type userError struct {
	msg string
}

func (e userError) Error() string { return e.msg }

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version":
		fmt.Println(cliVersion)
	case "list":
		if err := runList(os.Args[2:]); err != nil {
			handleError(err)
		}
	case "read":
		if err := runRead(os.Args[2:]); err != nil {
			handleError(err)
		}
	case "keys":
		if err := runKeys(os.Args[2:]); err != nil {
			handleError(err)
		}
	case "passwords":
		if len(os.Args) < 3 {
			printPasswordsUsage()
			os.Exit(1)
		}
		switch os.Args[2] {
		case "store":
			if err := runPasswordsStore(os.Args[3:]); err != nil {
				handleError(err)
			}
		case "clear":
			if err := runPasswordsClear(os.Args[3:]); err != nil {
				handleError(err)
			}
		default:
			printPasswordsUsage()
			os.Exit(1)
		}
	default:
		printUsage()
		os.Exit(1)
	}
}

func handleError(err error) {
	if err == nil {
		return
	}

	var uerr userError
	if errors.As(err, &uerr) {
		fmt.Fprintln(os.Stderr, uerr.Error())
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "unexpected error: %v\n", err)
	os.Exit(2)
}

// commonFlags holds the flags every notebook-facing subcommand shares.
type commonFlags struct {
	dir       string
	passwords string
	useCache  bool
	verbose   bool
}

func registerCommon(fs *flag.FlagSet, c *commonFlags) {
	fs.StringVar(&c.dir, "dir", "", "notebook directory")
	fs.StringVar(&c.passwords, "passwords", "", "password configuration (fragment,password;...)")
	fs.BoolVar(&c.useCache, "cache", false, "cache header scans between runs")
	fs.BoolVar(&c.verbose, "verbose", false, "log scan details")
}

// resolvePasswords picks the password configuration: the flag wins, then the
// keychain, then an interactive prompt. An explicitly empty configuration is
// allowed; plaintext notes need no passwords.
func resolvePasswords(c commonFlags, log logging.Logger) (string, error) {
	if c.passwords != "" {
		return c.passwords, nil
	}

	stored, err := keychain.Load(c.dir)
	if err == nil {
		log.Infof("using password configuration from keychain")
		return stored, nil
	}
	if !errors.Is(err, keychain.ErrNotFound) && !errors.Is(err, keychain.ErrUnsupported) {
		return "", fmt.Errorf("keychain lookup: %w", err)
	}

	if !term.IsTerminal(int(syscall.Stdin)) {
		return "", nil
	}
	pw, err := promptSecret("Password configuration (empty for none): ")
	if err != nil {
		return "", err
	}
	defer zeroBytes(pw)
	return string(pw), nil
}

func openNotebook(c commonFlags, log logging.Logger) (*notebook.Notebook, func(), error) {
	if c.dir == "" {
		return nil, nil, userError{msg: "missing required flag: --dir"}
	}

	passwords, err := resolvePasswords(c, log)
	if err != nil {
		return nil, nil, err
	}

	var opts []notebook.Option
	cleanup := func() {}
	if c.useCache {
		cache, err := openHeaderCache(c.dir)
		if err != nil {
			log.Warnf("header cache unavailable: %v", err)
		} else {
			opts = append(opts, notebook.WithHeaderCache(cache))
			cleanup = func() { index.Close(cache) }
		}
	}

	nb, err := notebook.Open(c.dir, passwords, opts...)
	if err != nil {
		cleanup()
		if errors.Is(err, keyring.ErrMalformedConfig) {
			return nil, nil, userError{msg: err.Error()}
		}
		return nil, nil, err
	}

	for _, skipped := range nb.Skipped() {
		log.Warnf("skipped unreadable file %s", skipped)
	}
	return nb, cleanup, nil
}

// openHeaderCache places the cache database under the user cache directory,
// never inside the notebook folder.
func openHeaderCache(dir string) (*index.DB, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256([]byte(abs))
	path := filepath.Join(base, "notereader", hex.EncodeToString(sum[:8])+".db")

	cache, err := index.Open(path)
	if err != nil {
		return nil, err
	}
	if err := index.Migrate(cache); err != nil {
		index.Close(cache)
		return nil, err
	}
	return cache, nil
}

func runList(args []string) error {
	var c commonFlags
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	registerCommon(fs, &c)
	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}
	if fs.NArg() != 0 {
		return userError{msg: "unexpected positional arguments"}
	}

	log := logging.Logger{Verbose: c.verbose}
	nb, cleanup, err := openNotebook(c, log)
	if err != nil {
		return err
	}
	defer cleanup()

	for _, id := range nb.NoteIDs() {
		note, err := nb.ReadNote(id)
		switch {
		case err == nil:
			marker := " "
			if note.IsEncrypted {
				marker = "*"
			}
			fmt.Printf("%s %s  %s\n", marker, id, note.Title)
		case errors.Is(err, notebook.ErrKeyNotUnlocked), errors.Is(err, notebook.ErrNoKeyAvailable):
			fmt.Printf("* %s  (locked)\n", id)
		default:
			log.Warnf("note %s: %v", id, err)
		}
	}
	return nil
}

func runRead(args []string) error {
	var c commonFlags
	var id string
	var showMeta bool
	fs := flag.NewFlagSet("read", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	registerCommon(fs, &c)
	fs.StringVar(&id, "id", "", "note id to read")
	fs.BoolVar(&showMeta, "meta", false, "print note metadata instead of the body")
	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}
	if id == "" {
		return userError{msg: "missing required flag: --id"}
	}
	if fs.NArg() != 0 {
		return userError{msg: "unexpected positional arguments"}
	}

	log := logging.Logger{Verbose: c.verbose}
	nb, cleanup, err := openNotebook(c, log)
	if err != nil {
		return err
	}
	defer cleanup()

	if showMeta {
		meta, err := nb.Meta(id)
		if err != nil {
			return readError(err)
		}
		keys := make([]string, 0, len(meta))
		for k := range meta {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("%s: %s\n", k, meta[k])
		}
		return nil
	}

	note, err := nb.ReadNote(id)
	if err != nil {
		return readError(err)
	}
	fmt.Println(note.Title)
	fmt.Println()
	fmt.Println(note.Body)
	return nil
}

// readError converts the read failures a user can act on into userError.
func readError(err error) error {
	switch {
	case errors.Is(err, notebook.ErrNoteNotFound):
		return userError{msg: "no such note"}
	case errors.Is(err, notebook.ErrNoKeyAvailable):
		return userError{msg: "note is encrypted and no passwords were supplied"}
	case errors.Is(err, notebook.ErrKeyNotUnlocked):
		return userError{msg: "no supplied password unlocks this note's master key"}
	case errors.Is(err, notebook.ErrDecryptionFailed):
		return userError{msg: "note could not be decrypted; the file may be corrupt"}
	}
	return err
}

func runKeys(args []string) error {
	var c commonFlags
	var checkHIBP bool
	fs := flag.NewFlagSet("keys", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	registerCommon(fs, &c)
	fs.BoolVar(&checkHIBP, "hibp", false, "also check passwords against the HIBP breach corpus")
	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}
	if fs.NArg() != 0 {
		return userError{msg: "unexpected positional arguments"}
	}

	log := logging.Logger{Verbose: c.verbose}
	if c.dir == "" {
		return userError{msg: "missing required flag: --dir"}
	}
	passwords, err := resolvePasswords(c, log)
	if err != nil {
		return err
	}

	entries, err := keyring.ParsePasswordConfig(passwords)
	if err != nil {
		return userError{msg: err.Error()}
	}

	nb, err := notebook.Open(c.dir, passwords)
	if err != nil {
		return err
	}

	status := nb.Keys()
	ids := make([]string, 0, len(status))
	for id := range status {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		state := "locked"
		if status[id] {
			state = "unlocked"
		}
		fmt.Printf("%s  %s\n", id, state)
	}

	ctx := context.Background()
	for _, entry := range entries {
		a, err := auth.AssessPassword(ctx, entry.Password, auth.Options{EnableHIBP: checkHIBP})
		if err != nil {
			log.Warnf("audit for fragment %s: %v", entry.KeyIDFragment, err)
			continue
		}
		line := fmt.Sprintf("password for %s: strength %d/4 (%s offline crack)", entry.KeyIDFragment, a.Score, a.CrackTime)
		if a.Breached {
			line += fmt.Sprintf(", seen in %d breaches", a.BreachCount)
		}
		fmt.Println(line)
	}
	return nil
}

func runPasswordsStore(args []string) error {
	var dir string
	fs := flag.NewFlagSet("passwords store", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&dir, "dir", "", "notebook directory")
	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}
	if dir == "" {
		return userError{msg: "missing required flag: --dir"}
	}

	pw, err := promptSecret("Password configuration: ")
	if err != nil {
		return err
	}
	defer zeroBytes(pw)

	// Validate before storing so the keychain never holds garbage.
	if _, err := keyring.ParsePasswordConfig(string(pw)); err != nil {
		return userError{msg: err.Error()}
	}

	if err := keychain.Store(dir, string(pw)); err != nil {
		if errors.Is(err, keychain.ErrUnsupported) {
			return userError{msg: "keychain storage is only available on macOS"}
		}
		return err
	}
	fmt.Fprintln(os.Stderr, "password configuration stored")
	return nil
}

func runPasswordsClear(args []string) error {
	var dir string
	fs := flag.NewFlagSet("passwords clear", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&dir, "dir", "", "notebook directory")
	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}
	if dir == "" {
		return userError{msg: "missing required flag: --dir"}
	}

	if err := keychain.Delete(dir); err != nil {
		if errors.Is(err, keychain.ErrUnsupported) {
			return userError{msg: "keychain storage is only available on macOS"}
		}
		return err
	}
	fmt.Fprintln(os.Stderr, "password configuration removed")
	return nil
}

func promptSecret(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, err
	}
	return pw, nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: notereader <command>")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  version")
	fmt.Fprintln(os.Stderr, "  list --dir <notebook> [--passwords <config>] [--cache] [--verbose]")
	fmt.Fprintln(os.Stderr, "  read --dir <notebook> --id <note-id> [--meta]")
	fmt.Fprintln(os.Stderr, "  keys --dir <notebook> [--hibp]")
	fmt.Fprintln(os.Stderr, "  passwords store|clear --dir <notebook>")
}

func printPasswordsUsage() {
	fmt.Fprintln(os.Stderr, "Usage: notereader passwords <store|clear> --dir <notebook>")
}
