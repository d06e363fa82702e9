package observability

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLogger(t *testing.T) {
	t.Run("should drop events until initialized", func(t *testing.T) {
		assert.NotPanics(t, func() {
			RecordVoteAudit(context.Background(), true, "120", 3, 5, 0)
		})
	})

	t.Run("should append json lines", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "audit.log")
		require.NoError(t, InitAuditLogger(path))
		t.Cleanup(func() { _ = CloseAuditLogger() })

		ctx := context.Background()
		RecordVoteAudit(ctx, true, "120", 3, 5, 1)
		RecordIngestAudit(ctx, "batch1", 0, 2, errors.New("disk full"))
		require.NoError(t, CloseAuditLogger())

		f, err := os.Open(path)
		require.NoError(t, err)
		defer f.Close()

		var events []map[string]interface{}
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			var ev map[string]interface{}
			require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
			events = append(events, ev)
		}
		require.Len(t, events, 2)

		assert.Equal(t, "vote", events[0]["type"])
		assert.Equal(t, "answered", events[0]["status"])
		assert.Equal(t, "120", events[0]["metadata"].(map[string]interface{})["answer"])

		assert.Equal(t, "ingest", events[1]["type"])
		assert.Equal(t, "failure", events[1]["status"])
		assert.Equal(t, "disk full", events[1]["metadata"].(map[string]interface{})["error"])
	})
}
