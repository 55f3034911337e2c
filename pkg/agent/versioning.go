package agent

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/alexdong/quinn/pkg/models"
)

// LatestPromptVersion selects system.txt
const LatestPromptVersion = "latest"

// FallbackSystemPrompt is used when no prompt file exists for a version
const FallbackSystemPrompt = `You are Quinn, an AI rubber duck that helps users solve problems through guided questions.

Your role is to ask clarifying questions that help users think through their problems, NOT to provide direct solutions.

Key principles:
- Ask open-ended questions that promote self-discovery
- Never provide direct answers or solutions
- Guide users to find their own solutions through structured thinking
- Be encouraging and supportive
- Focus on understanding the problem thoroughly before exploring solutions`

// CurrentPromptVersion formats now as vYYMMDD-HHMMSS in UTC
func CurrentPromptVersion(now time.Time) string {
	return "v" + now.UTC().Format("060102-150405")
}

// PromptStore loads and saves versioned system prompts from a directory.
// Loaded prompts are cached until Invalidate.
type PromptStore struct {
	dir string

	mu    sync.RWMutex
	cache map[string]string
}

// NewPromptStore creates a store over dir; an empty dir only yields the fallback prompt
func NewPromptStore(dir string) *PromptStore {
	return &PromptStore{
		dir:   dir,
		cache: make(map[string]string),
	}
}

// Dir returns the prompts directory
func (s *PromptStore) Dir() string {
	return s.dir
}

func (s *PromptStore) path(version string) string {
	if version == LatestPromptVersion {
		return filepath.Join(s.dir, "system.txt")
	}
	return filepath.Join(s.dir, "system_"+version+".txt")
}

// Load returns the system prompt for version
func (s *PromptStore) Load(version string) (string, error) {
	if strings.TrimSpace(version) == "" {
		return "", invalidInput("Version cannot be empty")
	}
	if version != LatestPromptVersion {
		if err := models.ValidatePromptVersion(version); err != nil {
			return "", errors.Mark(err, ErrInvalidInput)
		}
	}

	s.mu.RLock()
	prompt, ok := s.cache[version]
	s.mu.RUnlock()
	if ok {
		return prompt, nil
	}

	prompt = FallbackSystemPrompt
	if s.dir != "" {
		data, err := os.ReadFile(s.path(version))
		switch {
		case err == nil:
			prompt = strings.TrimSpace(string(data))
		case !os.IsNotExist(err):
			return "", errors.Wrapf(err, "read prompt %s", version)
		}
	}

	s.mu.Lock()
	s.cache[version] = prompt
	s.mu.Unlock()

	return prompt, nil
}

// Save writes content as system_<version>.txt
func (s *PromptStore) Save(version, content string) error {
	if strings.TrimSpace(version) == "" {
		return invalidInput("Version cannot be empty")
	}
	if err := models.ValidatePromptVersion(version); err != nil {
		return errors.Mark(err, ErrInvalidInput)
	}
	if strings.TrimSpace(content) == "" {
		return invalidInput("Prompt content cannot be empty")
	}
	if s.dir == "" {
		return errors.New("no prompts directory configured")
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return errors.Wrap(err, "create prompts directory")
	}
	if err := os.WriteFile(s.path(version), []byte(content), 0644); err != nil {
		return errors.Wrapf(err, "write prompt %s", version)
	}

	s.Invalidate()
	return nil
}

// Versions lists saved prompt versions, oldest first
func (s *PromptStore) Versions() ([]string, error) {
	if s.dir == "" {
		return nil, nil
	}
	matches, err := filepath.Glob(filepath.Join(s.dir, "system_*.txt"))
	if err != nil {
		return nil, errors.Wrap(err, "list prompt versions")
	}

	versions := make([]string, 0, len(matches))
	for _, m := range matches {
		v := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), "system_"), ".txt")
		if models.ValidatePromptVersion(v) == nil {
			versions = append(versions, v)
		}
	}
	sort.Slice(versions, func(i, j int) bool {
		return strings.TrimPrefix(versions[i], "v") < strings.TrimPrefix(versions[j], "v")
	})
	return versions, nil
}

// VersionLabel returns the version recorded in message metadata. Explicit
// versions are returned as is; "latest" maps to the newest saved version or "".
func (s *PromptStore) VersionLabel(version string) string {
	if version != LatestPromptVersion {
		return version
	}
	versions, err := s.Versions()
	if err != nil || len(versions) == 0 {
		return ""
	}
	return versions[len(versions)-1]
}

// Invalidate drops every cached prompt
func (s *PromptStore) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]string)
}
