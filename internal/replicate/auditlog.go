package replicate

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/syndtr/goleveldb/leveldb"
)

// AuditLog is a write-only, per-replica trail of applied operations. It is
// never read back to reconstruct or validate State — a missing or
// corrupt log file never affects correctness, only what
// `GET /debug/audit` can show.
type AuditLog struct {
	db *leveldb.DB
}

// auditEntry is what gets marshalled into the log, one per applied write.
type auditEntry struct {
	ID        string `json:"id"`
	Op        string `json:"op"`
	ReplicaID int    `json:"replica_id"`
	UnixTime  int64  `json:"unix_time"`
	Detail    string `json:"detail"`
}

// OpenAuditLog opens (or creates) the LevelDB file at dataPath/replica-<id>.
// A failure here is logged and treated as "auditing disabled" rather than
// a startup failure, since there is no state here that needs recovering.
func OpenAuditLog(dataPath string, replicaID int) (*AuditLog, error) {
	path := fmt.Sprintf("%s/replica-%d", dataPath, replicaID)
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open audit log at %s: %w", path, err)
	}
	return &AuditLog{db: db}, nil
}

// Record appends one entry under a fresh random uuid key, so LevelDB's
// byte-wise key order is not insertion order; List below re-sorts by
// UnixTime explicitly.
func (a *AuditLog) Record(replicaID int, op, detail string) {
	if a == nil || a.db == nil {
		return
	}
	entry := auditEntry{
		ID: uuid.NewString(), Op: op, ReplicaID: replicaID,
		UnixTime: time.Now().Unix(), Detail: detail,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := a.db.Put([]byte(entry.ID), data, nil); err != nil {
		fmt.Printf("⚠️  audit log write failed: %v\n", err)
	}
}

// List returns every recorded entry, most recent last. Used only by the
// debug endpoint — never by the replication engine itself.
func (a *AuditLog) List() []auditEntry {
	out := make([]auditEntry, 0)
	if a == nil || a.db == nil {
		return out
	}
	iter := a.db.NewIterator(nil, nil)
	defer iter.Release()
	for iter.Next() {
		var e auditEntry
		if json.Unmarshal(iter.Value(), &e) == nil {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnixTime < out[j].UnixTime })
	return out
}

func (a *AuditLog) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}
