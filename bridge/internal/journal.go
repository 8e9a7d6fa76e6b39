package internal

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/xKoRx/qmtbridge/sdk/telemetry"
)

const journalBucketName = "requests"

// Journal registra en bbolt cada request resuelto.
//
// Solo guarda resultados: los requests pendientes no sobreviven a un
// reinicio del proceso.
type Journal struct {
	db         *bolt.DB
	maxEntries int
}

// JournalEntry es el resultado de un request.
type JournalEntry struct {
	ReqID      int64  `json:"req_id"`
	Session    string `json:"session"`
	Action     string `json:"action"`
	Success    bool   `json:"success"`
	Code       string `json:"code,omitempty"`
	Error      string `json:"error,omitempty"`
	LatencyMs  int64  `json:"latency_ms"`
	FinishedAt int64  `json:"finished_at"`
}

// DefaultJournalMaxEntries retención por defecto del journal.
const DefaultJournalMaxEntries = 10000

// OpenJournal abre (o crea) el journal en path.
//
// maxEntries <= 0 usa DefaultJournalMaxEntries.
func OpenJournal(path string, maxEntries int) (*Journal, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultJournalMaxEntries
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir journal path: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(journalBucketName))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &Journal{db: db, maxEntries: maxEntries}, nil
}

// Close cierra el archivo.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Record agrega una entrada y poda las más antiguas sobre la retención.
//
// La clave es la secuencia del bucket (big-endian), así el orden del cursor
// es el orden de inserción aunque req_id se repita entre procesos.
func (j *Journal) Record(entry JournalEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(journalBucketName))
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		if err := b.Put(sequenceKey(seq), data); err != nil {
			return err
		}
		return prune(b, seq, j.maxEntries)
	})
}

// ErrJournalBacklog la cola del journalWriter está llena; la entrada se descarta.
var ErrJournalBacklog = errors.New("journal backlog full")

const journalQueueSize = 256

// journalWriter escribe entradas en una goroutine propia.
//
// Record no bloquea: el commit de bbolt (fsync) queda fuera de la goroutine
// lectora del response pipe. Close drena la cola antes de retornar.
type journalWriter struct {
	logHelper
	journal requestJournal

	mu      sync.RWMutex
	closed  bool
	entries chan JournalEntry
	done    chan struct{}
}

func newJournalWriter(journal requestJournal, tel *telemetry.Client) *journalWriter {
	w := &journalWriter{
		logHelper: newLogHelper(tel, "journal"),
		journal:   journal,
		entries:   make(chan JournalEntry, journalQueueSize),
		done:      make(chan struct{}),
	}
	go w.run()
	return w
}

// Record encola entry. Con la cola llena o el writer cerrado retorna error.
func (w *journalWriter) Record(entry JournalEntry) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrBridgeClosed
	}
	select {
	case w.entries <- entry:
		return nil
	default:
		return ErrJournalBacklog
	}
}

// Close deja de aceptar entradas y espera a que se escriban las encoladas.
func (w *journalWriter) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.closed = true
	close(w.entries)
	w.mu.Unlock()
	<-w.done
}

func (w *journalWriter) run() {
	defer close(w.done)
	for entry := range w.entries {
		if err := w.journal.Record(entry); err != nil {
			w.logError("Failed to journal request", err, map[string]interface{}{
				"req_id": entry.ReqID,
			})
		}
	}
}

// Recent retorna hasta limit entradas, la más reciente primero.
// limit <= 0 retorna todas.
func (j *Journal) Recent(limit int) ([]JournalEntry, error) {
	var results []JournalEntry
	err := j.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(journalBucketName)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var entry JournalEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				continue
			}
			results = append(results, entry)
			if limit > 0 && len(results) >= limit {
				break
			}
		}
		return nil
	})
	return results, err
}

// Len retorna la cantidad de entradas.
func (j *Journal) Len() (int, error) {
	n := 0
	err := j.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket([]byte(journalBucketName)).Stats().KeyN
		return nil
	})
	return n, err
}

// prune borra las entradas con secuencia <= seq-maxEntries.
func prune(b *bolt.Bucket, seq uint64, maxEntries int) error {
	if seq <= uint64(maxEntries) {
		return nil
	}
	cutoff := seq - uint64(maxEntries)

	var keys [][]byte
	c := b.Cursor()
	for k, _ := c.First(); k != nil && binary.BigEndian.Uint64(k) <= cutoff; k, _ = c.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}
	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
