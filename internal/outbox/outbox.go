package outbox

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dhruvbuilds/strategia-connect/internal/docstore"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrNotRetryable   = errors.New("command has not failed")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Command is one optimistic mutation: the local overlays it staged and the
// remote writes that persist it as a single batch.
type Command struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Target    string     `json:"target"`
	Status    Status     `json:"status"`
	Error     string     `json:"error,omitempty"`
	Attempts  int        `json:"attempts"`
	IssuedAt  time.Time  `json:"issuedAt"`
	SettledAt *time.Time `json:"settledAt,omitempty"`

	writes   []docstore.Write
	overlays []Overlay
}

const defaultHistory = 100

// Dispatcher stages commands locally and persists them on background
// goroutines. Issued writes are never cancelled and never retried on their
// own; a failed command waits for an explicit Retry.
type Dispatcher struct {
	store   docstore.Store
	timeout time.Duration
	now     func() time.Time

	mu       sync.Mutex
	cmds     map[string]*Command
	order    []string
	history  int
	onSettle func(Command)

	wg sync.WaitGroup
}

func NewDispatcher(store docstore.Store, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		store:   store,
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
		cmds:    make(map[string]*Command),
		history: defaultHistory,
	}
}

// SetClock replaces the time source.
func (d *Dispatcher) SetClock(now func() time.Time) {
	d.now = now
}

// OnSettle registers fn to run whenever a command is confirmed or fails.
func (d *Dispatcher) OnSettle(fn func(Command)) {
	d.mu.Lock()
	d.onSettle = fn
	d.mu.Unlock()
}

// Issue stages overlays immediately and persists writes in the background.
func (d *Dispatcher) Issue(name, target string, writes []docstore.Write, overlays ...Overlay) Command {
	cmd := &Command{
		ID:       uuid.New().String(),
		Name:     name,
		Target:   target,
		Status:   StatusPending,
		IssuedAt: d.now(),
		writes:   writes,
		overlays: overlays,
	}

	d.mu.Lock()
	d.cmds[cmd.ID] = cmd
	d.order = append(d.order, cmd.ID)
	d.pruneLocked()
	d.mu.Unlock()

	d.launch(cmd)

	d.mu.Lock()
	defer d.mu.Unlock()
	return cmd.copy()
}

// Retry re-stages and re-sends a failed command.
func (d *Dispatcher) Retry(id string) (Command, error) {
	d.mu.Lock()
	cmd, ok := d.cmds[id]
	if !ok {
		d.mu.Unlock()
		return Command{}, ErrUnknownCommand
	}
	if cmd.Status != StatusFailed {
		out := cmd.copy()
		d.mu.Unlock()
		return out, ErrNotRetryable
	}
	cmd.Status = StatusPending
	cmd.Error = ""
	cmd.SettledAt = nil
	d.mu.Unlock()

	log.Printf("[outbox] retry command=%s id=%s target=%s", cmd.Name, cmd.ID, cmd.Target)
	d.launch(cmd)

	d.mu.Lock()
	defer d.mu.Unlock()
	return cmd.copy(), nil
}

func (d *Dispatcher) Get(id string) (Command, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cmd, ok := d.cmds[id]
	if !ok {
		return Command{}, false
	}
	return cmd.copy(), true
}

// List returns known commands, newest first.
func (d *Dispatcher) List() []Command {
	d.mu.Lock()
	out := make([]Command, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.cmds[id].copy())
	}
	d.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].IssuedAt.After(out[j].IssuedAt) })
	return out
}

// Wait blocks until every issued write has settled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) launch(cmd *Command) {
	for _, o := range cmd.overlays {
		o.Stage()
	}

	d.mu.Lock()
	cmd.Attempts++
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.execute(cmd)
	}()
}

func (d *Dispatcher) execute(cmd *Command) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	err := d.store.Batch(ctx, cmd.writes)
	settled := d.now()

	// Overlays settle before the status flips so a Retry cannot restage them
	// while this goroutine still holds their tokens.
	d.mu.Lock()
	for _, o := range cmd.overlays {
		if err != nil {
			o.Fail()
		} else {
			o.Ack()
		}
	}
	cmd.SettledAt = &settled
	if err != nil {
		cmd.Status = StatusFailed
		cmd.Error = err.Error()
	} else {
		cmd.Status = StatusConfirmed
	}
	snapshot := cmd.copy()
	fn := d.onSettle
	d.mu.Unlock()

	if err != nil {
		log.Printf("[outbox] failed command=%s id=%s target=%s writes=%d error=%v", cmd.Name, cmd.ID, cmd.Target, len(cmd.writes), err)
	}
	if fn != nil {
		fn(snapshot)
	}
}

// pruneLocked forgets the oldest settled commands beyond the history limit.
func (d *Dispatcher) pruneLocked() {
	excess := len(d.order) - d.history
	if excess <= 0 {
		return
	}
	kept := d.order[:0]
	for _, id := range d.order {
		if excess > 0 && d.cmds[id].Status != StatusPending {
			delete(d.cmds, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	d.order = kept
}

func (c *Command) copy() Command {
	out := *c
	out.writes = nil
	out.overlays = nil
	if c.SettledAt != nil {
		t := *c.SettledAt
		out.SettledAt = &t
	}
	return out
}
