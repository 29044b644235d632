// notereader-host is a native messaging host: length-prefixed JSON frames
// over stdio, backing a browser extension that lists and reads notes from
// an encrypted notebook. Passwords arrive once per unlock; afterwards the
// extension presents a session token with a bounded TTL.
package main

import (
	"bufio"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"os/user"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/skhoury/notereader/internal/keyring"
	"github.com/skhoury/notereader/notebook"
)

const (
	version      = "0.1.0"
	unlockTTL    = 10 * time.Minute
	bufferSize   = 1 << 16
	maxFrameSize = 1 << 20
)

var (
	errUnauthorized  = errors.New("unauthorized")
	errExpired       = errors.New("expired")
	errNonceReplayed = errors.New("nonce_replayed")
)

// sessionState caches one unlocked notebook between frames. A replaced or
// expired session drops the notebook, and with it the resolved keys.
type sessionState struct {
	mutex    sync.Mutex
	token    string
	nb       *notebook.Notebook
	expires  time.Time
	dir      string
	nonces   map[string]struct{}
	ownerUID string
}

var sess sessionState

// establish replaces any prior session with a freshly opened notebook and
// returns the new token and its lifetime in seconds.
func (s *sessionState) establish(dir string, nb *notebook.Notebook) (string, int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.clearLockedUnsafe()

	token, err := generateToken()
	if err != nil {
		return "", 0, err
	}

	s.token = token
	s.nb = nb
	s.dir = dir
	s.expires = time.Now().Add(unlockTTL)
	s.nonces = make(map[string]struct{})
	s.ownerUID = currentUserIdentifier()

	return token, int(unlockTTL / time.Second), nil
}

// validateRequest checks token, expiry, caller identity and nonce
// uniqueness, and extends the session on success.
func (s *sessionState) validateRequest(token, nonce string) (*notebook.Notebook, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.token == "" || token == "" || nonce == "" {
		return nil, errUnauthorized
	}
	if time.Now().After(s.expires) {
		s.clearLockedUnsafe()
		return nil, errExpired
	}
	if subtle.ConstantTimeCompare([]byte(s.token), []byte(token)) != 1 {
		return nil, errUnauthorized
	}
	if owner := s.ownerUID; owner != "" {
		if current := currentUserIdentifier(); current != "" && current != owner {
			return nil, errUnauthorized
		}
	}
	if _, exists := s.nonces[nonce]; exists {
		return nil, errNonceReplayed
	}
	s.nonces[nonce] = struct{}{}

	s.expires = time.Now().Add(unlockTTL)
	return s.nb, nil
}

func (s *sessionState) clear() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.clearLockedUnsafe()
}

func (s *sessionState) clearLockedUnsafe() {
	s.token = ""
	s.nb = nil
	s.dir = ""
	s.expires = time.Time{}
	s.nonces = nil
	s.ownerUID = ""
}

func main() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		sess.clear()
		os.Exit(0)
	}()

	reader := bufio.NewReaderSize(os.Stdin, bufferSize)
	writer := bufio.NewWriterSize(os.Stdout, bufferSize)

	for {
		payload, err := readFrame(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			fmt.Fprintf(os.Stderr, "notereader-host: read error: %v\n", err)
			return
		}

		resp := handleRequest(payload)

		if err := writeFrame(writer, resp); err != nil {
			fmt.Fprintf(os.Stderr, "notereader-host: write error: %v\n", err)
			return
		}
	}
}

type frameEnvelope struct {
	Type string `json:"type"`
}

type unlockRequest struct {
	Type      string `json:"type"`
	Dir       string `json:"dir"`
	Passwords string `json:"passwords"`
}

type sessionRequest struct {
	Type         string `json:"type"`
	SessionToken string `json:"sessionToken"`
	Nonce        string `json:"nonce"`
}

type readRequest struct {
	sessionRequest
	NoteID string `json:"noteId"`
}

type response struct {
	OK      bool   `json:"ok"`
	Data    any    `json:"data,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type unlockData struct {
	Token      string `json:"token"`
	TTLSeconds int    `json:"ttlSeconds"`
}

type noteSummary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Encrypted bool   `json:"encrypted"`
	Locked    bool   `json:"locked"`
}

type noteData struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func handleRequest(payload []byte) response {
	var env frameEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return response{OK: false, Code: "BAD_JSON", Message: "invalid json"}
	}

	switch env.Type {
	case "health":
		return response{OK: true, Data: map[string]string{"version": version}}
	case "unlock":
		var req unlockRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return response{OK: false, Code: "BAD_JSON", Message: "invalid json"}
		}
		return handleUnlock(req)
	case "list":
		var req sessionRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return response{OK: false, Code: "BAD_JSON", Message: "invalid json"}
		}
		return handleList(req)
	case "read":
		var req readRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return response{OK: false, Code: "BAD_JSON", Message: "invalid json"}
		}
		return handleRead(req)
	case "lock":
		var req sessionRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return response{OK: false, Code: "BAD_JSON", Message: "invalid json"}
		}
		if _, err := sess.validateRequest(req.SessionToken, req.Nonce); err != nil {
			return sessionErrorResponse(err)
		}
		sess.clear()
		return response{OK: true}
	default:
		return response{OK: false, Code: "UNSUPPORTED", Message: "unsupported command"}
	}
}

func sessionErrorResponse(err error) response {
	if errors.Is(err, errNonceReplayed) {
		return response{OK: false, Code: "NONCE_REPLAY"}
	}
	if errors.Is(err, errExpired) {
		return response{OK: false, Code: "SESSION_EXPIRED"}
	}
	return response{OK: false, Code: "UNAUTHORIZED"}
}

func handleUnlock(req unlockRequest) response {
	if strings.TrimSpace(req.Dir) == "" {
		return response{OK: false, Code: "BAD_REQUEST", Message: "notebook directory required"}
	}

	nb, err := notebook.Open(req.Dir, req.Passwords)
	if err != nil {
		if errors.Is(err, keyring.ErrMalformedConfig) {
			return response{OK: false, Code: "BAD_CONFIG", Message: err.Error()}
		}
		return response{OK: false, Code: "OPEN_FAILED", Message: err.Error()}
	}

	token, ttl, err := sess.establish(req.Dir, nb)
	if err != nil {
		return response{OK: false, Code: "INTERNAL", Message: "session setup failed"}
	}
	return response{OK: true, Data: unlockData{Token: token, TTLSeconds: ttl}}
}

func handleList(req sessionRequest) response {
	nb, err := sess.validateRequest(req.SessionToken, req.Nonce)
	if err != nil {
		return sessionErrorResponse(err)
	}

	summaries := make([]noteSummary, 0)
	for _, id := range nb.NoteIDs() {
		s := noteSummary{ID: id}
		s.Encrypted, _ = nb.IsEncrypted(id)
		note, err := nb.ReadNote(id)
		switch {
		case err == nil:
			s.Title = note.Title
		case errors.Is(err, notebook.ErrKeyNotUnlocked), errors.Is(err, notebook.ErrNoKeyAvailable):
			s.Locked = true
		default:
			continue
		}
		summaries = append(summaries, s)
	}
	return response{OK: true, Data: summaries}
}

func handleRead(req readRequest) response {
	nb, err := sess.validateRequest(req.SessionToken, req.Nonce)
	if err != nil {
		return sessionErrorResponse(err)
	}
	if req.NoteID == "" {
		return response{OK: false, Code: "BAD_REQUEST", Message: "note id required"}
	}

	note, err := nb.ReadNote(req.NoteID)
	switch {
	case err == nil:
		return response{OK: true, Data: noteData{
			ID:       note.ID,
			Title:    note.Title,
			Body:     note.Body,
			Metadata: note.Metadata,
		}}
	case errors.Is(err, notebook.ErrNoteNotFound):
		return response{OK: false, Code: "NOT_FOUND"}
	case errors.Is(err, notebook.ErrKeyNotUnlocked), errors.Is(err, notebook.ErrNoKeyAvailable):
		return response{OK: false, Code: "LOCKED"}
	case errors.Is(err, notebook.ErrDecryptionFailed):
		return response{OK: false, Code: "DECRYPT_FAILED"}
	default:
		return response{OK: false, Code: "INTERNAL", Message: err.Error()}
	}
}

func readFrame(r *bufio.Reader) ([]byte, error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return nil, err
	}
	length := binary.LittleEndian.Uint32(lenBuf)
	if length == 0 || length > maxFrameSize {
		return nil, fmt.Errorf("frame length %d out of range", length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func writeFrame(w *bufio.Writer, resp response) error {
	encoded, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	lenBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenBuf, uint32(len(encoded)))
	if _, err := w.Write(lenBuf); err != nil {
		return err
	}
	if _, err := w.Write(encoded); err != nil {
		return err
	}
	return w.Flush()
}

func currentUserIdentifier() string {
	u, err := user.Current()
	if err != nil {
		return ""
	}
	return u.Uid
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
