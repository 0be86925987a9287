package objectkey

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Generator defines the interface for image object key strategies
type Generator interface {
	// GenerateKey creates the storage key of an image's blob
	GenerateKey(imageID uuid.UUID, fileName string) string
}

// Strategy names accepted by New
const (
	StrategyDefault = "default"
	StrategyGitLike = "git-like"
	StrategyHashed  = "hashed"
)

// New returns the generator registered under strategy. An empty strategy
// selects the default generator.
func New(strategy string) (Generator, error) {
	switch strategy {
	case "", StrategyDefault:
		return NewDefaultGenerator(), nil
	case StrategyGitLike:
		return NewGitLikeGenerator(), nil
	case StrategyHashed:
		return NewHashedGenerator(), nil
	default:
		return nil, fmt.Errorf("unknown object key strategy: %s", strategy)
	}
}

// DefaultGenerator keeps one directory per image: images/{id}/{filename}
type DefaultGenerator struct{}

func NewDefaultGenerator() *DefaultGenerator {
	return &DefaultGenerator{}
}

func (g *DefaultGenerator) GenerateKey(imageID uuid.UUID, fileName string) string {
	if fileName == "" {
		return fmt.Sprintf("images/%s", imageID)
	}
	return fmt.Sprintf("images/%s/%s", imageID, sanitizeFilename(fileName))
}

// GitLikeGenerator provides Git-style sharded storage
// images/objects/ab/cd1234ef5678_filename
type GitLikeGenerator struct {
	// ShardLength controls how many characters to use for sharding (default: 2)
	ShardLength int
}

func NewGitLikeGenerator() *GitLikeGenerator {
	return &GitLikeGenerator{
		ShardLength: 2,
	}
}

func (g *GitLikeGenerator) GenerateKey(imageID uuid.UUID, fileName string) string {
	return shardedKey(strings.ReplaceAll(imageID.String(), "-", ""), g.ShardLength, fileName)
}

// HashedGenerator shards by a hash of the image id, which spreads keys evenly
// even when ids are time ordered.
type HashedGenerator struct {
	ShardLength int
}

func NewHashedGenerator() *HashedGenerator {
	return &HashedGenerator{
		ShardLength: 2,
	}
}

func (g *HashedGenerator) GenerateKey(imageID uuid.UUID, fileName string) string {
	hash := sha256.Sum256([]byte(imageID.String()))
	return shardedKey(fmt.Sprintf("%x", hash)[:32], g.ShardLength, fileName)
}

func shardedKey(id string, shardLength int, fileName string) string {
	if shardLength <= 0 || shardLength > len(id) {
		shardLength = 2
	}
	shardDir := id[:shardLength]
	filename := id[shardLength:]
	if fileName != "" {
		filename = fmt.Sprintf("%s_%s", filename, sanitizeFilename(fileName))
	}
	return fmt.Sprintf("images/objects/%s/%s", shardDir, filename)
}

// CustomFuncGenerator allows users to provide their own key generation function
type CustomFuncGenerator struct {
	GenerateFunc func(imageID uuid.UUID, fileName string) string
}

func NewCustomFuncGenerator(fn func(imageID uuid.UUID, fileName string) string) *CustomFuncGenerator {
	return &CustomFuncGenerator{
		GenerateFunc: fn,
	}
}

func (g *CustomFuncGenerator) GenerateKey(imageID uuid.UUID, fileName string) string {
	return g.GenerateFunc(imageID, fileName)
}

// sanitizeFilename replaces characters that are unsafe in object keys
func sanitizeFilename(filename string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "_",
	)
	return replacer.Replace(filename)
}
