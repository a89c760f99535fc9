package syncqueue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/bassista/go_offline/internal/logger"
)

const taskPrefix = "task:"

// Task statuses. A task moves pending -> in-flight -> deleted on
// confirmed success, or back to pending with AttemptCount incremented.
const (
	StatusPending  = "pending"
	StatusInFlight = "in-flight"
)

// ErrUnknownTag is returned by Drain for tags without a configured endpoint.
var ErrUnknownTag = errors.New("no sync endpoint configured for tag")

// Task is one durable pending mutating operation.
type Task struct {
	ID           string          `json:"id"`
	Tag          string          `json:"tag"`
	Payload      json.RawMessage `json:"payload"`
	EnqueuedAt   int64           `json:"enqueuedAt"`
	AttemptCount int             `json:"attemptCount"`
	Status       string          `json:"status"`
}

// Poster issues the aggregated replay call for one tag.
type Poster interface {
	Post(ctx context.Context, endpoint string, body []byte) (int, error)
}

// Queue is the durable sync queue, one LevelDB namespace per tag.
//
// Marking tasks in-flight is a weak reservation, not a lock: two
// overlapping drains for one tag may replay the same tasks. Delivery is
// at-least-once by design; receivers are expected to be idempotent.
type Queue struct {
	db        *leveldb.DB
	post      Poster
	endpoints map[string]string // tag -> replay endpoint
}

// Open opens (or creates) the queue database at path.
func Open(path string, post Poster, endpoints map[string]string) (*Queue, error) {
	if post == nil {
		return nil, errors.New("poster is required")
	}
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open queue db: %w", err)
	}
	q := &Queue{db: db, post: post, endpoints: endpoints}
	if err := q.recoverInFlight(); err != nil {
		db.Close()
		return nil, err
	}
	return q, nil
}

// recoverInFlight reverts tasks a previous process left in-flight. The
// database is single-process, so anything in-flight at open time was
// orphaned by a crash between reservation and confirmation.
func (q *Queue) recoverInFlight() error {
	it := q.db.NewIterator(util.BytesPrefix([]byte(taskPrefix)), nil)
	defer it.Release()

	var orphaned []Task
	for it.Next() {
		var task Task
		if err := json.Unmarshal(it.Value(), &task); err != nil {
			return fmt.Errorf("decode task %s: %w", it.Key(), err)
		}
		if task.Status == StatusInFlight {
			orphaned = append(orphaned, task)
		}
	}
	if err := it.Error(); err != nil {
		return fmt.Errorf("scan queue: %w", err)
	}

	for _, task := range orphaned {
		task.Status = StatusPending
		task.AttemptCount++
		if err := q.write(task); err != nil {
			return err
		}
	}
	if len(orphaned) > 0 {
		logger.WithComponent("sync").Warnf("recovered %d in-flight tasks from a previous run", len(orphaned))
	}
	return nil
}

// Close releases the underlying database.
func (q *Queue) Close() error {
	return q.db.Close()
}

// Tags returns the tags with configured replay endpoints, sorted.
func (q *Queue) Tags() []string {
	out := make([]string, 0, len(q.endpoints))
	for tag := range q.endpoints {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// Enqueue records a mutating operation for later replay.
func (q *Queue) Enqueue(tag string, payload json.RawMessage) (Task, error) {
	if tag == "" {
		return Task{}, errors.New("sync tag is required")
	}
	task := Task{
		ID:         uuid.NewString(),
		Tag:        tag,
		Payload:    payload,
		EnqueuedAt: time.Now().UnixMilli(),
		Status:     StatusPending,
	}
	if err := q.write(task); err != nil {
		return Task{}, err
	}
	logger.WithComponent("sync").Debugf("enqueued task %s under tag %s", task.ID, tag)
	return task, nil
}

// Tasks returns every task stored under the tag, oldest first.
func (q *Queue) Tasks(tag string) ([]Task, error) {
	it := q.db.NewIterator(util.BytesPrefix([]byte(taskPrefix+tag+":")), nil)
	defer it.Release()

	var out []Task
	for it.Next() {
		var task Task
		if err := json.Unmarshal(it.Value(), &task); err != nil {
			return nil, fmt.Errorf("decode task %s: %w", it.Key(), err)
		}
		out = append(out, task)
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("scan tag %s: %w", tag, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EnqueuedAt < out[j].EnqueuedAt })
	return out, nil
}

// Drain replays all pending tasks for the tag in a single aggregated
// call. Only a confirmed 2xx removes the drained tasks; any other
// outcome reverts them to pending with AttemptCount incremented, and the
// next trigger retries.
func (q *Queue) Drain(ctx context.Context, tag string) error {
	endpoint, ok := q.endpoints[tag]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTag, tag)
	}

	all, err := q.Tasks(tag)
	if err != nil {
		return err
	}
	var drained []Task
	for _, task := range all {
		if task.Status == StatusPending {
			drained = append(drained, task)
		}
	}
	if len(drained) == 0 {
		return nil
	}

	for i := range drained {
		drained[i].Status = StatusInFlight
		if err := q.write(drained[i]); err != nil {
			return err
		}
	}

	operations := make([]json.RawMessage, 0, len(drained))
	for _, task := range drained {
		operations = append(operations, task.Payload)
	}
	body, err := json.Marshal(map[string]any{"tag": tag, "operations": operations})
	if err != nil {
		return fmt.Errorf("encode drain body: %w", err)
	}

	status, postErr := q.post.Post(ctx, endpoint, body)
	if postErr == nil && status >= 200 && status < 300 {
		batch := new(leveldb.Batch)
		for _, task := range drained {
			batch.Delete(q.key(task))
		}
		if err := q.db.Write(batch, nil); err != nil {
			return fmt.Errorf("delete drained tasks: %w", err)
		}
		logger.WithComponent("sync").Infof("drained %d tasks for tag %s", len(drained), tag)
		return nil
	}

	for i := range drained {
		drained[i].Status = StatusPending
		drained[i].AttemptCount++
		if err := q.write(drained[i]); err != nil {
			return err
		}
	}
	if postErr != nil {
		return fmt.Errorf("replay tag %s: %w", tag, postErr)
	}
	return fmt.Errorf("replay tag %s: endpoint returned %d", tag, status)
}

// DrainAll drains every configured tag, logging failures instead of
// stopping: a failed tag simply waits for the next trigger.
func (q *Queue) DrainAll(ctx context.Context) {
	for _, tag := range q.Tags() {
		if err := q.Drain(ctx, tag); err != nil {
			logger.WithComponent("sync").Warnf("drain %s: %v", tag, err)
		}
	}
}

func (q *Queue) write(task Task) error {
	raw, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", task.ID, err)
	}
	if err := q.db.Put(q.key(task), raw, nil); err != nil {
		return fmt.Errorf("store task %s: %w", task.ID, err)
	}
	return nil
}

func (q *Queue) key(task Task) []byte {
	return []byte(taskPrefix + task.Tag + ":" + task.ID)
}

// HTTPPoster is the Poster backed by a plain HTTP client.
type HTTPPoster struct {
	client *http.Client
}

func NewHTTPPoster(timeout time.Duration) *HTTPPoster {
	return &HTTPPoster{client: &http.Client{Timeout: timeout}}
}

func (p *HTTPPoster) Post(ctx context.Context, endpoint string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build replay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
