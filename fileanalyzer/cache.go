package fileanalyzer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"gorm.io/gorm"

	"github.com/vibe-flow/cmc/logger"
	"github.com/vibe-flow/cmc/storage"
)

// signatureCacheRow is the gorm model backing the content-addressed
// signature cache. It is a pure performance layer: absence or
// corruption of this table never affects correctness, only how often
// Extract is re-run.
type signatureCacheRow struct {
	ContentHash string `gorm:"primaryKey"`
	SignatureJS string
}

func (signatureCacheRow) TableName() string { return "signature_cache" }

// Cache wraps Extract with a gorm+sqlite-backed memo keyed by content hash.
type Cache struct {
	db *gorm.DB
}

// NewCache opens (or creates) a sqlite database at path and prepares the
// signature_cache table.
func NewCache(path string) (*Cache, error) {
	db, err := storage.NewSQLite(storage.SQLiteConfig{Path: path, Logger: logger.L()})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&signatureCacheRow{}); err != nil {
		return nil, err
	}
	return &Cache{db: db}, nil
}

// Get returns a cached signature for content, computing and storing it
// on a miss.
func (c *Cache) Get(content string) (Signature, error) {
	hash := hashContent(content)

	var row signatureCacheRow
	err := c.db.First(&row, "content_hash = ?", hash).Error
	if err == nil {
		var sig Signature
		if jsonErr := json.Unmarshal([]byte(row.SignatureJS), &sig); jsonErr == nil {
			return sig, nil
		}
		logger.L().Warn("fileanalyzer: corrupted cache row, recomputing", "hash", hash)
	}

	sig := Extract(content)
	encoded, err := json.Marshal(sig)
	if err != nil {
		return sig, nil // cache write failure never affects correctness
	}
	if err := c.db.Save(&signatureCacheRow{ContentHash: hash, SignatureJS: string(encoded)}).Error; err != nil {
		logger.L().Warn("fileanalyzer: failed to persist signature cache entry", "error", err)
	}
	return sig, nil
}

func hashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
