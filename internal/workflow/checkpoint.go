package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Checkpointer saves and restores WorkflowExecution state as JSON files
// under storageDir/workflows/{execution_id}.json, using the same atomic
// write-tmp-then-rename pattern as internal/store.
type Checkpointer struct {
	workflowsDir string
	log          *logrus.Entry
}

type checkpointDocument struct {
	Execution     Execution `json:"execution"`
	CheckpointedAt time.Time `json:"checkpointed_at"`
}

// NewCheckpointer creates the workflows/ subdirectory under storageDir if
// needed and returns a ready Checkpointer.
func NewCheckpointer(storageDir string, log *logrus.Entry) (*Checkpointer, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	dir := filepath.Join(storageDir, "workflows")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create workflow checkpoint dir: %w", err)
	}
	log.WithField("storage_dir", storageDir).Info("workflow checkpointer initialized")
	return &Checkpointer{workflowsDir: dir, log: log}, nil
}

func (c *Checkpointer) path(executionID string) string {
	return filepath.Join(c.workflowsDir, executionID+".json")
}

// Save atomically writes execution's checkpoint.
func (c *Checkpointer) Save(execution Execution) (string, error) {
	target := c.path(execution.ExecutionID)
	tmp := target + ".tmp"

	doc := checkpointDocument{Execution: execution, CheckpointedAt: time.Now().UTC()}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal checkpoint: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		os.Remove(tmp)
		c.log.WithError(err).WithField("execution_id", execution.ExecutionID).Error("failed to save workflow checkpoint")
		return "", err
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		c.log.WithError(err).WithField("execution_id", execution.ExecutionID).Error("failed to save workflow checkpoint")
		return "", err
	}

	c.log.WithField("execution_id", execution.ExecutionID).WithField("status", execution.Status).Info("workflow checkpoint saved")
	return target, nil
}

// Load restores a checkpointed execution. Returns (zero, false) if no
// checkpoint exists or the file cannot be read; malformed JSON also
// degrades to (zero, false) with a logged error, consistent with the rest
// of the persistence layer.
func (c *Checkpointer) Load(executionID string) (Execution, bool) {
	target := c.path(executionID)
	raw, err := os.ReadFile(target)
	if err != nil {
		return Execution{}, false
	}

	var doc checkpointDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		c.log.WithError(err).WithField("execution_id", executionID).Error("failed to parse workflow checkpoint")
		return Execution{}, false
	}

	c.log.WithField("execution_id", executionID).WithField("status", doc.Execution.Status).Info("workflow checkpoint loaded")
	return doc.Execution, true
}

// ListCheckpoints returns the sorted execution IDs with a saved checkpoint.
func (c *Checkpointer) ListCheckpoints() ([]string, error) {
	entries, err := os.ReadDir(c.workflowsDir)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.Type().IsRegular() && strings.HasSuffix(name, ".json") && !strings.HasSuffix(name, ".tmp") {
			ids = append(ids, strings.TrimSuffix(name, ".json"))
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes a checkpoint, reporting whether one existed.
func (c *Checkpointer) Delete(executionID string) bool {
	target := c.path(executionID)
	if _, err := os.Stat(target); err != nil {
		return false
	}
	if err := os.Remove(target); err != nil {
		return false
	}
	c.log.WithField("execution_id", executionID).Info("workflow checkpoint deleted")
	return true
}
