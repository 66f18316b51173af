package utilities

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

var (
	nodeOnce sync.Once
	node     *snowflake.Node
)

// NewKSUID generates a new globally unique KSUID string.
// The 128-bit payload comes from crypto/rand, so it doubles as an opaque bearer value.
func NewKSUID() string {
	return ksuid.New().String()
}

// NewRowID returns a random 32-char hex id for credential rows.
func NewRowID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewSnowflakeID returns a time-ordered id from the process-wide node selected by
// SNOWFLAKE_NODE (default 1). If the node cannot be created it falls back to a KSUID.
func NewSnowflakeID() string {
	nodeOnce.Do(func() {
		nodeID := int64(1)
		if v := os.Getenv("SNOWFLAKE_NODE"); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				nodeID = n
			}
		}
		node, _ = snowflake.NewNode(nodeID)
	})
	if node == nil {
		return NewKSUID()
	}
	return node.Generate().String()
}
