package invoice

import (
	"errors"
	"strings"
	"time"
)

// Status is the lifecycle state of a processing entry.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusExtracting Status = "extracting"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// FailureKind classifies why an extraction failed. Classification is derived
// by pattern-matching the error message and is a best-effort hint for the
// user, not a contract.
type FailureKind string

const (
	FailureCredentialMissing FailureKind = "credential_missing"
	FailureNetwork           FailureKind = "network"
	FailureMalformedResponse FailureKind = "malformed_response"
	FailureUnsupportedFile   FailureKind = "unsupported_or_corrupt_file"
	FailureQuotaExceeded     FailureKind = "quota_exceeded"
	FailureMissingOriginal   FailureKind = "missing_original_bytes"
	FailureUnknown           FailureKind = "unknown"
)

// ErrNoOriginalBytes is returned by operations that need the uploaded file
// content when the entry was restored from a saved session without it.
var ErrNoOriginalBytes = errors.New("original file bytes are not available; re-upload the file")

// DebugInfo is the internal diagnostic bundle attached to a failed entry.
// It is hidden from the default user-facing message.
type DebugInfo struct {
	ProcessingTimeMs int64  `json:"processing_time_ms"`
	ModelUsed        string `json:"model_used"`
	RawError         string `json:"raw_error"`
}

// Entry wraps one uploaded file through its processing lifecycle.
type Entry struct {
	ID           string      `json:"id"`
	Filename     string      `json:"filename"`
	LastModified int64       `json:"last_modified"` // unix milliseconds, part of the identity
	ContentType  string      `json:"content_type"`
	Data         []byte      `json:"-"` // nil after a session restore
	Status       Status      `json:"status"`
	Record       *Record     `json:"record,omitempty"`
	Error        string      `json:"error,omitempty"`
	Failure      FailureKind `json:"failure,omitempty"`
	Debug        *DebugInfo  `json:"debug,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// HasOriginalBytes reports whether the uploaded file content is still held.
func (e *Entry) HasOriginalBytes() bool {
	return len(e.Data) > 0
}

// Settled reports whether the entry reached a terminal state.
func (e *Entry) Settled() bool {
	return e.Status == StatusSucceeded || e.Status == StatusFailed
}

var failurePatterns = []struct {
	kind     FailureKind
	patterns []string
}{
	{FailureCredentialMissing, []string{"api key", "credential", "unauthenticated", "permission denied"}},
	{FailureQuotaExceeded, []string{"quota", "resource exhausted", "rate limit", "429"}},
	{FailureMalformedResponse, []string{"json", "schema", "unmarshal", "no response"}},
	{FailureUnsupportedFile, []string{"unsupported", "corrupt", "decoding", "decode", "not available"}},
	{FailureNetwork, []string{"network", "connection", "timeout", "deadline", "dial", "unavailable", "eof"}},
}

// ClassifyFailure maps an extraction error to a failure kind by scanning the
// lowered message. Order matters: credential and quota markers win over the
// broader network patterns. Missing original bytes is a known sentinel and is
// classified before any pattern matching.
func ClassifyFailure(err error) FailureKind {
	if err == nil {
		return FailureUnknown
	}
	if errors.Is(err, ErrNoOriginalBytes) {
		return FailureMissingOriginal
	}
	msg := strings.ToLower(err.Error())
	for _, fp := range failurePatterns {
		for _, p := range fp.patterns {
			if strings.Contains(msg, p) {
				return fp.kind
			}
		}
	}
	return FailureUnknown
}

// userMessage renders a human-readable message for a failure kind. The raw
// error stays in the debug bundle.
func userMessage(kind FailureKind) string {
	switch kind {
	case FailureCredentialMissing:
		return "API ključ nije postavljen ili nije valjan. Provjerite konfiguraciju."
	case FailureNetwork:
		return "Mrežna greška prilikom obrade fakture. Pokušajte ponovno."
	case FailureMalformedResponse:
		return "Odgovor servisa za obradu nije valjan. Pokušajte ponovno ili unesite podatke ručno."
	case FailureUnsupportedFile:
		return "Datoteka nije podržana ili je oštećena. Podržani formati: PDF, PNG, JPEG, GIF, HEIC."
	case FailureQuotaExceeded:
		return "Dnevna kvota servisa je iskorištena. Pokušajte kasnije."
	case FailureMissingOriginal:
		return "Izvorna datoteka nije dostupna nakon obnove sesije. Ponovno učitajte datoteku."
	default:
		return "Došlo je do pogreške prilikom obrade fakture. Pokušajte ponovno."
	}
}
