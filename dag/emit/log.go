package emit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// LogEmitter writes one line per event to an io.Writer, either as
// key=value text or as JSON.
type LogEmitter struct {
	writer   io.Writer
	jsonMode bool
}

// NewLogEmitter returns a LogEmitter writing to writer. A nil writer
// defaults to os.Stdout.
func NewLogEmitter(writer io.Writer, jsonMode bool) *LogEmitter {
	if writer == nil {
		writer = os.Stdout
	}
	return &LogEmitter{writer: writer, jsonMode: jsonMode}
}

func (l *LogEmitter) Emit(e Event) {
	if l.jsonMode {
		b, err := json.Marshal(e)
		if err != nil {
			return
		}
		fmt.Fprintln(l.writer, string(b))
		return
	}
	line := fmt.Sprintf("[%s] run=%s", e.Msg, e.RunID)
	if e.NodeID != "" {
		line += fmt.Sprintf(" node=%s", e.NodeID)
	}
	if e.ScopeID != "" {
		line += fmt.Sprintf(" scope=%s", e.ScopeID)
	}
	if e.Err != nil {
		line += fmt.Sprintf(" err=%v", e.Err)
	}
	for k, v := range e.Meta {
		line += fmt.Sprintf(" %s=%v", k, v)
	}
	fmt.Fprintln(l.writer, line)
}
