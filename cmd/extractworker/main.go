// Command extractworker is the process-isolated extraction worker spawned
// by the Index Writer. It reads workerproto.Job values, one per stdin line,
// and writes workerproto.Result values, one per stdout line. It never
// panics out of its read loop: the Text Extraction Facade converts every
// failure, including a recovered extractor panic, into a skip_reason, so a
// single bad document cannot take the whole worker process down with it.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/connexus-ai/ediscovery-core/internal/extract"
	"github.com/connexus-ai/ediscovery-core/internal/index/workerproto"
)

func main() {
	facade := extract.New(nil) // extraction workers never dial out themselves

	in := bufio.NewScanner(os.Stdin)
	in.Buffer(make([]byte, 64*1024), 64*1024*1024)
	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	for in.Scan() {
		var job workerproto.Job
		if err := json.Unmarshal(in.Bytes(), &job); err != nil {
			slog.Error("[DEBUG-EXTRACTWORKER] malformed job", "error", err)
			continue
		}

		res := facade.Extract(context.Background(), job.Path, job.Doctype)
		result := workerproto.Result{
			SHA256:     job.SHA256,
			Text:       res.Text,
			SkipReason: res.SkipReason,
		}
		if res.Backend != "" {
			result.Metadata = map[string]string{"backend": res.Backend}
		}

		line, err := json.Marshal(result)
		if err != nil {
			slog.Error("[DEBUG-EXTRACTWORKER] marshal result", "sha256", job.SHA256, "error", err)
			continue
		}
		out.Write(line)
		out.WriteByte('\n')
		out.Flush()
	}

	if err := in.Err(); err != nil {
		slog.Error("[DEBUG-EXTRACTWORKER] stdin scan error", "error", err)
		os.Exit(1)
	}
}
