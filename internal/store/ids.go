package store

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/JonMunkholm/sheetusers/internal/textutil"
	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

// IDGenerator produces a new record identifier for a table.
type IDGenerator interface {
	Generate(table string) (string, error)
}

// IDGeneratorFunc adapts a function to IDGenerator.
type IDGeneratorFunc func(table string) (string, error)

func (f IDGeneratorFunc) Generate(table string) (string, error) { return f(table) }

// DigestGenerator derives ids as md5("<table>-<timestamp>-<n>") with n in
// [0,1000), hex encoded. It is a fast fingerprint, not a secret, and ids are
// not checked against existing rows.
type DigestGenerator struct {
	Now      func() time.Time
	Location *time.Location
	Intn     func(n int) int
}

// NewDigestGenerator returns a generator stamping ids in loc.
func NewDigestGenerator(loc *time.Location) *DigestGenerator {
	return &DigestGenerator{Now: time.Now, Location: loc, Intn: rand.IntN}
}

func (g *DigestGenerator) Generate(table string) (string, error) {
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	intn := rand.IntN
	if g.Intn != nil {
		intn = g.Intn
	}
	ts := now()
	if g.Location != nil {
		ts = ts.In(g.Location)
	}

	sum := md5.Sum([]byte(fmt.Sprintf("%s-%s-%d", table, ts.Format(textutil.TimestampLayout), intn(1000))))
	return hex.EncodeToString(sum[:]), nil
}

// KSUIDGenerator issues time-sortable KSUIDs.
type KSUIDGenerator struct{}

func (KSUIDGenerator) Generate(string) (string, error) {
	id, err := ksuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// SnowflakeGenerator issues 64-bit snowflake ids from a single node.
type SnowflakeGenerator struct {
	node *snowflake.Node
}

// NewSnowflakeGenerator creates a generator for node (0-1023).
func NewSnowflakeGenerator(node int64) (*SnowflakeGenerator, error) {
	n, err := snowflake.NewNode(node)
	if err != nil {
		return nil, fmt.Errorf("store: snowflake node %d: %w", node, err)
	}
	return &SnowflakeGenerator{node: n}, nil
}

func (g *SnowflakeGenerator) Generate(string) (string, error) {
	return g.node.Generate().String(), nil
}

// UUIDGenerator issues random (v4) UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) Generate(string) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewIDGenerator builds the generator named by strategy: digest, ksuid,
// snowflake or uuid.
func NewIDGenerator(strategy string, loc *time.Location, node int64) (IDGenerator, error) {
	switch strings.ToLower(strategy) {
	case "", "digest":
		return NewDigestGenerator(loc), nil
	case "ksuid":
		return KSUIDGenerator{}, nil
	case "snowflake":
		return NewSnowflakeGenerator(node)
	case "uuid":
		return UUIDGenerator{}, nil
	default:
		return nil, fmt.Errorf("store: unknown id strategy %q", strategy)
	}
}
