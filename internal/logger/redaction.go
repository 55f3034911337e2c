package logger

import (
	"io"
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

type rule struct {
	name    string
	re      *regexp.Regexp
	replace func(match string) string
}

// Redactor scrubs provider keys, Postmark tokens and sender addresses from
// log output. Secrets are replaced outright; email addresses keep their
// domain so threads stay debuggable.
type Redactor struct {
	rules []rule
}

func secret(string) string { return redacted }

func NewRedactor() *Redactor {
	return &Redactor{
		rules: []rule{
			{"anthropic-key", regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{20,}`), secret},
			{"openai-key", regexp.MustCompile(`sk-[a-zA-Z0-9_-]{20,}`), secret},
			{"gemini-key", regexp.MustCompile(`AIza[0-9A-Za-z_-]{35}`), secret},
			{"postmark-token", regexp.MustCompile(`(?i)(token|x-postmark-server-token)["\s:=]+[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`), secret},
			{"bearer", regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._-]+`), secret},
			{"password", regexp.MustCompile(`(?i)(password|pwd)["\s:=]+[^\s"]+`), secret},
			{"token", regexp.MustCompile(`token["\s:=]+[a-zA-Z0-9._-]{20,}`), secret},
			{"secret", regexp.MustCompile(`secret["\s:=]+[^\s"]+`), secret},
			{"email", regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`), MaskEmail},
		},
	}
}

// MaskEmail keeps the first character of the local part and the domain:
// alice@example.com becomes a***@example.com.
func MaskEmail(addr string) string {
	at := strings.LastIndex(addr, "@")
	if at <= 0 {
		return redacted
	}
	return addr[:1] + "***" + addr[at:]
}

// AddPattern registers an extra pattern whose matches are fully redacted.
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.rules = append(r.rules, rule{name: pattern, re: re, replace: secret})
	return nil
}

func (r *Redactor) Redact(s string) string {
	for _, rl := range r.rules {
		s = rl.re.ReplaceAllStringFunc(s, rl.replace)
	}
	return s
}

// Wrap returns a writer that redacts each write before passing it on.
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{writer: w, redactor: r}
}

type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

// Write reports len(p) on success so zerolog does not see a short write.
func (w *redactingWriter) Write(p []byte) (int, error) {
	if _, err := io.WriteString(w.writer, w.redactor.Redact(string(p))); err != nil {
		return 0, err
	}
	return len(p), nil
}
