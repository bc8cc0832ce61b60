package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/leadstack/optimizer-engine/internal/models"
)

// fakeAdapter is an in-memory Adapter recording every command it receives.
type fakeAdapter struct {
	mu          sync.Mutex
	name        string
	snapshot    models.AdapterSnapshot
	snapshotErr error
	commandErr  error
	commandFail bool
	commands    []models.AutomationAction
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Snapshot(context.Context) (models.AdapterSnapshot, error) {
	if f.snapshotErr != nil {
		return models.AdapterSnapshot{}, f.snapshotErr
	}
	return f.snapshot, nil
}

func (f *fakeAdapter) Command(_ context.Context, action models.AutomationAction) (models.CommandResult, error) {
	f.mu.Lock()
	f.commands = append(f.commands, action)
	f.mu.Unlock()
	if f.commandErr != nil {
		return models.CommandResult{}, f.commandErr
	}
	if f.commandFail {
		return models.CommandResult{Success: false, Detail: "rejected"}, nil
	}
	return models.CommandResult{Success: true}, nil
}

func (f *fakeAdapter) commandLog() []models.AutomationAction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.AutomationAction(nil), f.commands...)
}

var errUnavailable = errors.New("subsystem unavailable")

// fakeNotifier records alert and incident deliveries.
type fakeNotifier struct {
	mu        sync.Mutex
	alerts    []string
	incidents []string
}

func (n *fakeNotifier) Alert(message string, _ models.Severity) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, message)
}

func (n *fakeNotifier) Incident(description string, _ models.Severity, _ bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.incidents = append(n.incidents, description)
}
