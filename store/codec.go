package store

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lucasmaystre/gopromp/promp"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// Record is a named, exported primitive.
type Record struct {
	ID            uuid.UUID    `json:"id"`
	Name          string       `json:"name"`
	SchemaVersion int          `json:"schema_version"`
	CodecVersion  int          `json:"codec_version"`
	CreatedAt     time.Time    `json:"created_at"`
	Params        promp.Params `json:"params"`
}

// NewRecord stamps params with a fresh id, the current versions and the
// creation time.
func NewRecord(name string, params promp.Params) Record {
	return Record{
		ID:            uuid.New(),
		Name:          name,
		SchemaVersion: CurrentSchemaVersion,
		CodecVersion:  CurrentCodecVersion,
		CreatedAt:     time.Now().UTC(),
		Params:        params,
	}
}

func EncodeRecord(r Record) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRecord(data []byte) (Record, error) {
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return Record{}, err
	}
	if err := checkVersion(record); err != nil {
		return Record{}, err
	}
	return record, nil
}

func checkVersion(r Record) error {
	if r.SchemaVersion != CurrentSchemaVersion || r.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
