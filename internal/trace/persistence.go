package trace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SaveOperation persists a completed operation as indented JSON under
// <workspace>/.codevolve/operations/<id>.json.
func SaveOperation(workspace string, op Operation) error {
	dir := filepath.Join(workspace, ".codevolve", "operations")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create operations dir: %w", err)
	}

	data, err := json.MarshalIndent(op, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize operation: %w", err)
	}

	return os.WriteFile(filepath.Join(dir, op.OperationID+".json"), data, 0644)
}

// LoadOperation reads a persisted operation by id.
func LoadOperation(workspace, operationID string) (Operation, error) {
	var op Operation
	path := filepath.Join(workspace, ".codevolve", "operations", operationID+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return op, fmt.Errorf("failed to load operation: %w", err)
	}
	if err := json.Unmarshal(data, &op); err != nil {
		return op, fmt.Errorf("failed to parse operation: %w", err)
	}
	return op, nil
}

// ListOperations returns the ids of persisted operations.
func ListOperations(workspace string) ([]string, error) {
	dir := filepath.Join(workspace, ".codevolve", "operations")
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, e := range entries {
		if name, ok := strings.CutSuffix(e.Name(), ".json"); ok {
			ids = append(ids, name)
		}
	}
	return ids, nil
}
