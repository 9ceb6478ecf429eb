package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"igengage/pkg/engagement"
	"igengage/pkg/logger"
	"igengage/pkg/storage"
)

// DefaultSaveEvery is how many recorded results trigger a save
const DefaultSaveEvery = 25

// Checkpoint records which usernames of a named run already have a result
type Checkpoint struct {
	RunName   string          `json:"run_name"`
	RunID     string          `json:"run_id"`
	Completed map[string]bool `json:"completed"` // username -> succeeded
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Version   int             `json:"version"`
}

// IsCompleted reports whether username already has a result
func (c *Checkpoint) IsCompleted(username string) bool {
	_, ok := c.Completed[username]
	return ok
}

// Manager handles checkpoint operations for one run name
type Manager struct {
	checkpointPath string
	saveEvery      int
	logger         logger.Logger

	mu      sync.Mutex
	current *Checkpoint
	pending int
}

// NewManager creates a manager storing checkpoints in the user data directory
func NewManager(runName string, log logger.Logger) (*Manager, error) {
	dataDir, err := getDataDirectory()
	if err != nil {
		return nil, fmt.Errorf("failed to get data directory: %w", err)
	}
	return NewManagerAt(filepath.Join(dataDir, "checkpoints"), runName, log)
}

// NewManagerAt creates a manager storing checkpoints under dir
func NewManagerAt(dir, runName string, log logger.Logger) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}

	return &Manager{
		checkpointPath: filepath.Join(dir, fmt.Sprintf("%s.checkpoint.json", safeName(runName))),
		saveEvery:      DefaultSaveEvery,
		logger:         logger.OrDefault(log),
	}, nil
}

// Path returns the checkpoint file location
func (m *Manager) Path() string {
	return m.checkpointPath
}

// Start loads the existing checkpoint when resume is true, or begins a fresh
// one otherwise, and makes it the manager's current checkpoint.
func (m *Manager) Start(runName, runID string, resume bool) (*Checkpoint, error) {
	if resume {
		cp, err := m.Load()
		if err != nil {
			return nil, err
		}
		if cp != nil {
			cp.RunID = runID
			m.mu.Lock()
			m.current = cp
			m.mu.Unlock()
			return cp, nil
		}
	}

	now := time.Now()
	cp := &Checkpoint{
		RunName:   runName,
		RunID:     runID,
		Completed: make(map[string]bool),
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}

	m.mu.Lock()
	m.current = cp
	m.mu.Unlock()

	if err := m.Save(cp); err != nil {
		return nil, fmt.Errorf("failed to save initial checkpoint: %w", err)
	}

	m.logger.InfoWithFields("Checkpoint created", map[string]interface{}{
		"run":  runName,
		"path": m.checkpointPath,
	})
	return cp, nil
}

// Load loads an existing checkpoint. It returns nil, nil when none exists.
func (m *Manager) Load() (*Checkpoint, error) {
	data, err := os.ReadFile(m.checkpointPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if cp.Completed == nil {
		cp.Completed = make(map[string]bool)
	}

	m.logger.InfoWithFields("Checkpoint loaded", map[string]interface{}{
		"run":        cp.RunName,
		"completed":  len(cp.Completed),
		"updated_at": cp.UpdatedAt,
	})
	return &cp, nil
}

// Record marks result's username as completed in the current checkpoint.
// The file is rewritten every saveEvery records; call Flush at the end.
func (m *Manager) Record(result engagement.Result) error {
	m.mu.Lock()
	cp := m.current
	if cp == nil {
		m.mu.Unlock()
		return fmt.Errorf("checkpoint not started")
	}
	if _, seen := cp.Completed[result.Username]; !seen {
		if result.OK() {
			cp.Succeeded++
		} else {
			cp.Failed++
		}
	}
	cp.Completed[result.Username] = result.OK()
	m.pending++
	due := m.pending >= m.saveEvery
	m.mu.Unlock()

	if due {
		return m.Flush()
	}
	return nil
}

// Flush saves the current checkpoint if anything was recorded since the last save
func (m *Manager) Flush() error {
	m.mu.Lock()
	if m.current == nil || m.pending == 0 {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()
	return m.Save(m.current)
}

// Save writes the checkpoint to disk atomically
func (m *Manager) Save(cp *Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	if err := storage.WriteFileAtomic(m.checkpointPath, data); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	m.pending = 0

	m.logger.DebugWithFields("Checkpoint saved", map[string]interface{}{
		"run":       cp.RunName,
		"completed": len(cp.Completed),
	})
	return nil
}

// Delete removes the checkpoint file
func (m *Manager) Delete() error {
	if err := os.Remove(m.checkpointPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	m.logger.Info("Checkpoint deleted")
	return nil
}

// Exists checks if a checkpoint file exists
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.checkpointPath)
	return err == nil
}

// Filter splits usernames into those still to process and those already completed
func (c *Checkpoint) Filter(requests []engagement.ProfileRequest) (todo []engagement.ProfileRequest, skipped int) {
	todo = make([]engagement.ProfileRequest, 0, len(requests))
	for _, req := range requests {
		if c.IsCompleted(req.Username) {
			skipped++
			continue
		}
		todo = append(todo, req)
	}
	return todo, skipped
}

func safeName(name string) string {
	if name == "" {
		name = "default"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, name)
}

// getDataDirectory returns the appropriate data directory for the current OS
func getDataDirectory() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support", "igengage")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dataDir = filepath.Join(appData, "igengage")
	default:
		if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
			dataDir = filepath.Join(xdgDataHome, "igengage")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share", "igengage")
		}
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dataDir, nil
}
