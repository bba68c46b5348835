package toxfilebot

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/opd-ai/toxfilebot/friend"
	"github.com/vmihailenco/msgpack/v5"
)

// SaveData represents the persisted state of a Bot.
type SaveData struct {
	SecretKey     [32]byte             `msgpack:"secret_key"`
	Nospam        [4]byte              `msgpack:"nospam"`
	Name          string               `msgpack:"name"`
	StatusMessage string               `msgpack:"status_message"`
	Friends       []friend.SavedFriend `msgpack:"friends"`
	Timestamp     int64                `msgpack:"timestamp"`
}

// Serialize encodes SaveData with msgpack.
func (s *SaveData) Serialize() ([]byte, error) {
	return msgpack.Marshal(s)
}

// LoadSaveData decodes a byte slice produced by Serialize.
func LoadSaveData(data []byte) (*SaveData, error) {
	var saveData SaveData
	if err := msgpack.Unmarshal(data, &saveData); err != nil {
		return nil, fmt.Errorf("decode save data: %w", err)
	}
	return &saveData, nil
}

// writeFileAtomic replaces path with data so a crash never leaves a torn file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
