package corpus

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/kailas-cloud/trialfit/internal/domain/schema"
	"github.com/kailas-cloud/trialfit/internal/domain/trial"
)

const maxLineBytes = 4 << 20

// JSONLSource reads one trial per line.
type JSONLSource struct {
	path     string
	registry *schema.Registry
	logger   *zap.Logger
}

// NewJSONLSource creates a source for the file at path.
func NewJSONLSource(path string, registry *schema.Registry, logger *zap.Logger) *JSONLSource {
	if registry == nil {
		registry = schema.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JSONLSource{path: path, registry: registry, logger: logger}
}

// Load reads the whole file.
func (s *JSONLSource) Load(ctx context.Context) ([]trial.Historical, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}
	defer f.Close()
	return ReadJSONL(ctx, f, s.registry, s.logger)
}

// ReadJSONL decodes trials from r. Blank lines are skipped.
func ReadJSONL(ctx context.Context, r io.Reader, registry *schema.Registry, logger *zap.Logger) ([]trial.Historical, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var out []trial.Historical
	n := 0
	for sc.Scan() {
		n++
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var l line
		if err := json.Unmarshal(raw, &l); err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		t, err := decode(registry, l, logger)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		out = append(out, t)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	return out, nil
}

// WriteJSONL encodes trials one per line.
func WriteJSONL(w io.Writer, trials []trial.Historical) error {
	enc := json.NewEncoder(w)
	for _, t := range trials {
		if err := enc.Encode(encode(t)); err != nil {
			return fmt.Errorf("encode trial %s: %w", t.ID, err)
		}
	}
	return nil
}
