// Package convlog layers an append-only conversation log on top of the
// vault file primitive. Messages are grouped by conversation and stored
// as NDJSON chunk files of bounded size, with a JSON index snapshot per
// conversation. The package holds no storage of its own: every chunk
// and index is an ordinary vault file, so it inherits encryption,
// versioning and integrity from the engine.
package convlog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/hashfs/internal/vault/engine"
	"github.com/dmitrijs2005/hashfs/internal/vault/models"
	"github.com/google/uuid"
)

// ChunkCapacity is the number of messages per chunk file. A full chunk
// is closed and the next append opens a fresh one.
const ChunkCapacity = 200

const (
	chunkMime = "application/x-ndjson"
	indexMime = "application/json"
)

// Vault is the slice of the engine surface the log needs. Both
// *engine.Engine and *engine.Dispatcher satisfy it.
type Vault interface {
	Load(ctx context.Context, filename string, version *int64, validate bool) (*models.LoadResult, error)
	Save(ctx context.Context, filename string, data []byte, mime string, opts engine.SaveOptions) (*models.SaveResult, error)
}

// Message is one chat message. The zero ID is filled with a fresh UUID
// on append; the zero TS with the current time.
type Message struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content string `json:"content"`
	TS      int64  `json:"ts"` // ms epoch
}

// Index is the per-conversation snapshot stored at
// conversations/<id>/index.json.
type Index struct {
	Chunks       int   `json:"chunks"`
	MessageCount int   `json:"messageCount"`
	LastModified int64 `json:"lastModified"`
}

// Page is one pagination step: the messages of a single chunk, oldest
// first, plus whether older chunks remain.
type Page struct {
	Messages []Message
	Chunk    int
	HasMore  bool
}

// Log reads and appends conversation messages through a vault.
type Log struct {
	vault Vault
}

func New(vault Vault) *Log {
	return &Log{vault: vault}
}

func indexPath(conversation string) string {
	return fmt.Sprintf("conversations/%s/index.json", conversation)
}

func chunkPath(conversation string, n int) string {
	return fmt.Sprintf("conversations/%s/chunk-%d.ndjson", conversation, n)
}

// loadIndex returns the conversation index, zero for a conversation
// that has never been written.
func (l *Log) loadIndex(ctx context.Context, conversation string) (*Index, error) {
	res, err := l.vault.Load(ctx, indexPath(conversation), nil, false)
	if err != nil {
		return nil, err
	}
	idx := &Index{}
	if len(res.Data) == 0 {
		return idx, nil
	}
	if err := json.Unmarshal(res.Data, idx); err != nil {
		return nil, fmt.Errorf("conversation %s index: %w", conversation, err)
	}
	return idx, nil
}

// loadChunk parses one chunk file into messages. A missing chunk is an
// empty slice.
func (l *Log) loadChunk(ctx context.Context, conversation string, n int) ([]Message, error) {
	res, err := l.vault.Load(ctx, chunkPath(conversation, n), nil, false)
	if err != nil {
		return nil, err
	}
	return parseChunk(res.Data)
}

func parseChunk(data []byte) ([]Message, error) {
	var messages []Message
	for _, line := range bytes.Split(data, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var m Message
		if err := json.Unmarshal(line, &m); err != nil {
			return nil, fmt.Errorf("chunk line %d: %w", len(messages)+1, err)
		}
		messages = append(messages, m)
	}
	return messages, nil
}

func encodeChunk(messages []Message) ([]byte, error) {
	var buf bytes.Buffer
	for _, m := range messages {
		line, err := json.Marshal(m)
		if err != nil {
			return nil, err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// Append adds one message to the conversation, rolling to a new chunk
// when the tail chunk is full, and refreshes the index snapshot.
func (l *Log) Append(ctx context.Context, conversation string, msg Message) (*Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.TS == 0 {
		msg.TS = time.Now().UnixMilli()
	}

	idx, err := l.loadIndex(ctx, conversation)
	if err != nil {
		return nil, err
	}

	chunk := idx.Chunks
	if chunk == 0 {
		chunk = 1
	}
	messages, err := l.loadChunk(ctx, conversation, chunk)
	if err != nil {
		return nil, err
	}
	if len(messages) >= ChunkCapacity {
		chunk++
		messages = nil
	}
	messages = append(messages, msg)

	data, err := encodeChunk(messages)
	if err != nil {
		return nil, err
	}
	if _, err := l.vault.Save(ctx, chunkPath(conversation, chunk), data, chunkMime, engine.SaveOptions{}); err != nil {
		return nil, err
	}

	idx.Chunks = chunk
	idx.MessageCount++
	idx.LastModified = msg.TS
	raw, err := json.Marshal(idx)
	if err != nil {
		return nil, err
	}
	if _, err := l.vault.Save(ctx, indexPath(conversation), raw, indexMime, engine.SaveOptions{}); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Index returns the conversation snapshot.
func (l *Log) Index(ctx context.Context, conversation string) (*Index, error) {
	return l.loadIndex(ctx, conversation)
}

// Page reads one chunk of a conversation, newest chunk first: page 0 is
// the tail chunk, page 1 the one before it, and so on. Messages within
// a page stay in append order.
func (l *Log) Page(ctx context.Context, conversation string, page int) (*Page, error) {
	if page < 0 {
		return nil, fmt.Errorf("negative page %d", page)
	}

	idx, err := l.loadIndex(ctx, conversation)
	if err != nil {
		return nil, err
	}
	if idx.Chunks == 0 {
		return &Page{Messages: []Message{}}, nil
	}

	chunk := idx.Chunks - page
	if chunk < 1 {
		return &Page{Messages: []Message{}}, nil
	}

	messages, err := l.loadChunk(ctx, conversation, chunk)
	if err != nil {
		return nil, err
	}
	return &Page{
		Messages: messages,
		Chunk:    chunk,
		HasMore:  chunk > 1,
	}, nil
}
