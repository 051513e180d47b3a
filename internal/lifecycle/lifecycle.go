// Package lifecycle implements the LifecycleController component: the
// single mediator external callers go through to issue Start/Pause/
// Resume/Stop/Restart/ForceCompact/FactoryReset commands against an
// AgentCore, serializing commands that are mutually exclusive and
// collapsing the redundant ones (Start while already running, Stop while
// already stopped) into no-ops, per spec.md §4.J.
//
// Grounded on internal/infra.BaseComponent's atomic-state-plus-
// CompareAndSwap discipline, generalized here to a command-serializing
// mutex in front of an *agentcore.AgentCore rather than a bare state
// field, since the controller mediates commands rather than owning a
// state machine of its own.
package lifecycle

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pasteldev/agentic-runtime/internal/agentcore"
	"github.com/pasteldev/agentic-runtime/internal/enhancedlog"
	"github.com/pasteldev/agentic-runtime/internal/promptqueue"
	"github.com/pasteldev/agentic-runtime/internal/statusbus"
	"github.com/pasteldev/agentic-runtime/internal/workspacefs"
	"github.com/pasteldev/agentic-runtime/pkg/models"
)

// ErrFactoryResetNotConfirmed is returned by FactoryReset when Confirm is
// not set, per spec.md §4.J's refusal-without-confirmation rule.
var ErrFactoryResetNotConfirmed = errors.New("lifecycle: factory reset requires confirm=true")

// Config wires a Controller to the agent it mediates commands for and the
// auxiliary state a factory reset touches.
type Config struct {
	Core      *agentcore.AgentCore
	Workspace *workspacefs.WorkspaceFS
	Queue     *promptqueue.PromptQueue
	Log       *enhancedlog.EnhancedLogger
	Status    *statusbus.StatusBus
}

// Controller mediates external lifecycle commands against one AgentCore.
// Every command acquires the controller's mutex, so a Restart or
// FactoryReset is never interleaved with another command issued
// concurrently.
type Controller struct {
	cfg Config
	mu  sync.Mutex
}

// New creates a Controller for cfg.
func New(cfg Config) *Controller {
	return &Controller{cfg: cfg}
}

// Start begins a run with goal. If the agent is already running, this is a
// no-op: it returns nil without touching the existing run.
func (c *Controller) Start(ctx context.Context, goal string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg.Core.State() == models.StateRunning {
		return nil
	}
	return c.cfg.Core.Start(ctx, goal)
}

// Pause blocks the loop before its next turn.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Core.Pause()
}

// Resume releases a paused loop.
func (c *Controller) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Core.Resume()
}

// Stop halts the run. If the agent is already stopped, this is a no-op: it
// returns nil without re-entering the stop sequence.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg.Core.State() == models.StateStopped {
		return nil
	}
	return c.cfg.Core.Stop()
}

// Restart atomically stops the current run and starts a new one, per
// spec.md §4.J. AgentCore.Restart already performs Stop+Wait+Start as a
// single sequence; the controller's mutex additionally guarantees no other
// mediated command interleaves with it.
func (c *Controller) Restart(ctx context.Context, prompt string, keepContext bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Core.Restart(ctx, prompt, keepContext)
}

// ForceCompact runs a context compaction immediately.
func (c *Controller) ForceCompact(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Core.ForceCompact(ctx)
}

// EnqueuePrompt injects text at the next turn boundary and returns the
// queued item's id.
func (c *Controller) EnqueuePrompt(text string, priority int) string {
	return c.cfg.Core.SendPrompt(text, priority)
}

// RemovePrompt removes a previously queued prompt by id, reporting whether
// it was found.
func (c *Controller) RemovePrompt(id string) bool {
	return c.cfg.Queue.Remove(id)
}

// FactoryResetRequest is the FactoryReset command's input.
type FactoryResetRequest struct {
	// Confirm must be true or FactoryReset refuses with
	// ErrFactoryResetNotConfirmed.
	Confirm bool
	// Backup archives the workspace, journal, and latest todos snapshot
	// into a tar.gz before anything is deleted.
	Backup bool
}

// FactoryResetResult is the FactoryReset command's output.
type FactoryResetResult struct {
	// ArchiveBytes holds the tar.gz backup, or nil if Backup was false.
	ArchiveBytes []byte
}

// FactoryReset optionally archives the agent's workspace, journal, and
// todos, then stops the agent, resets its context and returns it to idle,
// clears the workspace, and purges the prompt queue.
func (c *Controller) FactoryReset(ctx context.Context, req FactoryResetRequest) (FactoryResetResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !req.Confirm {
		return FactoryResetResult{}, ErrFactoryResetNotConfirmed
	}

	var archive []byte
	if req.Backup {
		a, err := c.buildBackupArchive()
		if err != nil {
			return FactoryResetResult{}, fmt.Errorf("lifecycle: build backup archive: %w", err)
		}
		archive = a
	}

	if err := c.cfg.Core.Reset(ctx); err != nil {
		return FactoryResetResult{}, fmt.Errorf("lifecycle: reset agent core: %w", err)
	}

	if c.cfg.Workspace != nil {
		if err := purgeWorkspace(c.cfg.Workspace); err != nil {
			return FactoryResetResult{}, fmt.Errorf("lifecycle: purge workspace: %w", err)
		}
	}

	if c.cfg.Queue != nil {
		c.cfg.Queue.Drain()
	}

	return FactoryResetResult{ArchiveBytes: archive}, nil
}

// purgeWorkspace removes every top-level entry under the workspace root,
// leaving the root directory itself in place.
func purgeWorkspace(ws *workspacefs.WorkspaceFS) error {
	entries, err := ws.List(".")
	if err != nil {
		return err
	}
	for _, name := range entries {
		if err := ws.Delete(name); err != nil {
			return err
		}
	}
	return nil
}

// buildBackupArchive builds a tar.gz containing the journal's full entry
// history, the latest status snapshot's todos, and every file under the
// workspace root, mirroring (inverted into creation rather than
// extraction) internal/marketplace/installer.go's extractTarGz.
func (c *Controller) buildBackupArchive() ([]byte, error) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)

	if c.cfg.Log != nil {
		data, err := json.Marshal(c.cfg.Log.Tail(0))
		if err != nil {
			return nil, fmt.Errorf("marshal journal: %w", err)
		}
		if err := writeTarEntry(tw, "journal.json", data); err != nil {
			return nil, err
		}
	}

	if c.cfg.Status != nil {
		if snapshot, ok := c.cfg.Status.Latest(); ok {
			data, err := json.Marshal(snapshot.Todos)
			if err != nil {
				return nil, fmt.Errorf("marshal todos: %w", err)
			}
			if err := writeTarEntry(tw, "todos.json", data); err != nil {
				return nil, err
			}
		}
	}

	if c.cfg.Workspace != nil {
		if err := archiveWorkspace(tw, c.cfg.Workspace.Root()); err != nil {
			return nil, err
		}
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close tar writer: %w", err)
	}
	if err := gw.Close(); err != nil {
		return nil, fmt.Errorf("close gzip writer: %w", err)
	}
	return buf.Bytes(), nil
}

func archiveWorkspace(tw *tar.Writer, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}
		return writeTarEntry(tw, filepath.Join("workspace", rel), data)
	})
}

func writeTarEntry(tw *tar.Writer, name string, data []byte) error {
	hdr := &tar.Header{
		Name:    name,
		Mode:    0o644,
		Size:    int64(len(data)),
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write tar header for %s: %w", name, err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("write tar data for %s: %w", name, err)
	}
	return nil
}
