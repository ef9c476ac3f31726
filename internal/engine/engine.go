// Package engine reconciles parsed tasks against remote issues.
//
// One Engine owns a state store and a remote client and drives the full
// create/update/close decision per task. Runs are serialized: a second
// SyncAllTasks while one is in flight returns ErrRunInProgress instead of
// racing on the state file.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kirosync/kirosync/internal/debug"
	"github.com/kirosync/kirosync/internal/github"
	"github.com/kirosync/kirosync/internal/parser"
	"github.com/kirosync/kirosync/internal/state"
)

// ErrRunInProgress is returned when a sync run overlaps another.
var ErrRunInProgress = errors.New("sync run already in progress")

// MarkerLabel tags every issue kirosync manages.
const MarkerLabel = "kiro-task"

// IssueClient is the remote surface the engine needs. *github.Client
// satisfies it.
type IssueClient interface {
	CreateIssue(ctx context.Context, title, body string, labels []string) (*github.Issue, error)
	UpdateIssue(ctx context.Context, number int, title, body string) (*github.Issue, error)
	CloseIssue(ctx context.Context, number int) error
	FindIssueByLabel(ctx context.Context, label string) (*github.Issue, error)
}

// RunState tracks where a sync run is in its lifecycle.
type RunState int32

const (
	StateIdle RunState = iota
	StateParsing
	StateReconciling
	StateDone
	StateFailed
)

func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateParsing:
		return "parsing"
	case StateReconciling:
		return "reconciling"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// TaskError is a per-task failure that did not abort the run.
type TaskError struct {
	TaskID   string
	FilePath string
	Err      error
}

func (e TaskError) Error() string {
	if e.TaskID == "" {
		return fmt.Sprintf("%s: %v", e.FilePath, e.Err)
	}
	return fmt.Sprintf("task %s (%s): %v", e.TaskID, e.FilePath, e.Err)
}

// Result summarizes one sync run.
type Result struct {
	Created   int
	Updated   int
	Closed    int
	Unchanged int
	Errors    []TaskError
	Duration  time.Duration
}

// Engine composes the parser, the state store, and the remote client.
type Engine struct {
	store    *state.Store
	client   IssueClient
	specDirs []string

	runToken *semaphore.Weighted
	runState atomic.Int32
	watching atomic.Bool
	now      func() time.Time
}

// New constructs an engine. The store must be loaded by the caller before
// the first run.
func New(store *state.Store, client IssueClient, specDirs []string) *Engine {
	return &Engine{
		store:    store,
		client:   client,
		specDirs: specDirs,
		runToken: semaphore.NewWeighted(1),
		now:      time.Now,
	}
}

// State returns the current run state.
func (e *Engine) State() RunState {
	return RunState(e.runState.Load())
}

func (e *Engine) setState(s RunState) {
	e.runState.Store(int32(s))
}

// StartWatcher flips the continuous-mode flag. File watching itself lives
// outside the engine; a watcher calls SyncAllTasks on change.
func (e *Engine) StartWatcher() {
	e.watching.Store(true)
}

// StopWatcher clears the continuous-mode flag.
func (e *Engine) StopWatcher() {
	e.watching.Store(false)
}

// Watching reports whether continuous mode is on.
func (e *Engine) Watching() bool {
	return e.watching.Load()
}

// SyncAllTasks runs one full reconciliation pass: parse every task file,
// create/update remote issues for new or changed tasks, close issues for
// tasks that disappeared. Per-task failures are collected in the Result;
// state-store failures abort the run. State is persisted after every
// successful remote mutation, so a crash mid-run leaves at most the
// in-flight task inconsistent.
//
// Orphan closure only runs after a complete parse. A task counts as orphaned
// when a successful parse no longer contains it; when file discovery fails or
// any file cannot be read, the missing tasks are unknown rather than gone,
// and closing their issues would be destructive.
func (e *Engine) SyncAllTasks(ctx context.Context) (*Result, error) {
	if !e.runToken.TryAcquire(1) {
		return nil, ErrRunInProgress
	}
	defer e.runToken.Release(1)

	start := e.now()
	res := &Result{}

	e.setState(StateParsing)
	tasks, fileErrs, discoverErr := e.parseAll()
	if discoverErr != nil {
		res.Errors = append(res.Errors, TaskError{Err: discoverErr})
	}
	res.Errors = append(res.Errors, fileErrs...)

	e.setState(StateReconciling)
	currentIDs := make(map[string]struct{}, len(tasks))
	for _, task := range tasks {
		select {
		case <-ctx.Done():
			e.setState(StateFailed)
			return res, ctx.Err()
		default:
		}

		if _, dup := currentIDs[task.ID]; dup {
			// Two tasks resolved to the same id (duplicate numeric id or a
			// fallback-hash collision). Never merge them silently.
			res.Errors = append(res.Errors, TaskError{
				TaskID:   task.ID,
				FilePath: task.FilePath,
				Err:      errors.New("duplicate task id in this run, skipped"),
			})
			continue
		}
		currentIDs[task.ID] = struct{}{}

		if err := e.syncTask(ctx, task, res); err != nil {
			// Store failures poison the whole run.
			e.setState(StateFailed)
			return res, err
		}
	}

	if discoverErr == nil && len(fileErrs) == 0 {
		if err := e.closeOrphans(ctx, currentIDs, res); err != nil {
			e.setState(StateFailed)
			return res, err
		}
	} else {
		debug.Logf("skipping orphan cleanup after incomplete parse\n")
	}

	res.Duration = e.now().Sub(start)
	if discoverErr != nil {
		e.setState(StateFailed)
	} else {
		e.setState(StateDone)
	}
	return res, nil
}

// syncTask reconciles one task. The returned error is fatal (store I/O);
// remote failures land in res.Errors instead.
func (e *Engine) syncTask(ctx context.Context, task parser.Task, res *Result) error {
	hash := task.Hash()

	need, err := e.store.NeedsSync(task, hash)
	if err != nil {
		return err
	}
	if !need {
		res.Unchanged++
		return nil
	}

	rec, exists, err := e.store.Get(task.ID)
	if err != nil {
		return err
	}

	if exists {
		return e.updateTask(ctx, task, hash, rec.IssueNumber, res)
	}

	// No local state. The issue may still exist remotely (state-file loss);
	// look it up by the task id label before creating a duplicate.
	found, err := e.client.FindIssueByLabel(ctx, task.ID)
	if err != nil {
		res.Errors = append(res.Errors, TaskError{TaskID: task.ID, FilePath: task.FilePath, Err: err})
		return nil
	}
	if found != nil {
		debug.Logf("task %s: adopting existing issue #%d\n", task.ID, found.Number)
		return e.updateTask(ctx, task, hash, found.Number, res)
	}

	issue, err := e.client.CreateIssue(ctx, task.Title, e.buildIssueBody(task), []string{MarkerLabel, task.ID})
	if err != nil {
		res.Errors = append(res.Errors, TaskError{TaskID: task.ID, FilePath: task.FilePath, Err: err})
		return nil
	}

	if err := e.recordSync(task, hash, issue.Number); err != nil {
		return err
	}
	debug.Logf("task %s: created issue #%d\n", task.ID, issue.Number)
	res.Created++
	return nil
}

func (e *Engine) updateTask(ctx context.Context, task parser.Task, hash string, issueNumber int, res *Result) error {
	if _, err := e.client.UpdateIssue(ctx, issueNumber, task.Title, e.buildIssueBody(task)); err != nil {
		res.Errors = append(res.Errors, TaskError{TaskID: task.ID, FilePath: task.FilePath, Err: err})
		return nil
	}

	if err := e.recordSync(task, hash, issueNumber); err != nil {
		return err
	}
	debug.Logf("task %s: updated issue #%d\n", task.ID, issueNumber)
	res.Updated++
	return nil
}

// recordSync persists the new state immediately. Durability beats write
// batching: the store must match remote reality after every mutation.
func (e *Engine) recordSync(task parser.Task, hash string, issueNumber int) error {
	rec := state.SyncState{
		TaskID:      task.ID,
		IssueNumber: issueNumber,
		LastSynced:  e.now().UTC(),
		LastHash:    hash,
		FilePath:    task.FilePath,
	}
	if err := e.store.Set(rec); err != nil {
		return err
	}
	return e.store.Save()
}

// closeOrphans removes state for tasks that vanished from the source and
// closes their remote issues.
func (e *Engine) closeOrphans(ctx context.Context, currentIDs map[string]struct{}, res *Result) error {
	orphans, err := e.store.CleanupOrphans(currentIDs)
	if err != nil {
		return err
	}
	if len(orphans) == 0 {
		return nil
	}
	if err := e.store.Save(); err != nil {
		return err
	}

	for _, orphan := range orphans {
		if err := e.client.CloseIssue(ctx, orphan.IssueNumber); err != nil {
			res.Errors = append(res.Errors, TaskError{TaskID: orphan.TaskID, FilePath: orphan.FilePath, Err: err})
			continue
		}
		debug.Logf("task %s: closed orphaned issue #%d\n", orphan.TaskID, orphan.IssueNumber)
		res.Closed++
	}
	return nil
}
