package logging_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentstation/crmsync/pkg/logging"
)

func TestDefaultHelpers(t *testing.T) {
	tl := logging.CaptureDefault(t)

	logging.Debug().Msg("debug event")
	logging.Info().Msg("info event")
	logging.Warn().Msg("warn event")
	logging.Error().Msg("error event")

	lines := tl.Lines()
	assert.Len(t, lines, 4)
	assert.True(t, tl.Contains(`"level":"warn"`, "warn event"))
	assert.True(t, tl.Contains(`"level":"error"`, "error event"))
}

func TestTestLoggerConcurrentWrites(t *testing.T) {
	tl := logging.NewTestLogger(t)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tl.Info().Int("worker", i).Msg("Record written")
		}()
	}
	wg.Wait()

	assert.Len(t, tl.Lines(), 8)
	assert.True(t, tl.Contains(`"worker":7`))
	assert.False(t, tl.Contains("Record deleted"))
}

func TestNopLogger(t *testing.T) {
	l := logging.NewNopLogger()
	l.Error().Msg("nothing")
	assert.NotNil(t, l)
}
