// Package main hosts the pagelift extraction entrypoint.
//
// Architecture overview:
//   - Partitioning: internal/partition inspects the source PDF with pdfcpu, rejects unreadable or empty documents,
//     and splits the page range into contiguous chunks written under <workdir>/chunks. Every page lands in exactly
//     one chunk, in order, with no chunk exceeding the configured page budget.
//   - Scheduling & credentials: internal/schedule runs one worker goroutine per configured API credential; each chunk
//     is pinned to the slot (startIndex + sequenceIndex) % K so concurrent chunks never share a credential. The
//     preferred key from config anchors the rotation.
//   - Extraction: workers gate every call through the throttle governor (pause after every N requests, optional token
//     bucket), submit the chunk payload to the Gemini recognizer, and classify the response as success or a service,
//     format, or transport failure. A failed attempt rotates to the next credential after a cooldown, at most K
//     attempts per chunk.
//   - Persistence & fanout: the chunk record (attempt history included) is written to the scratch store (fs/GCS/
//     memory) before the chunk returns. Attempts are optionally persisted to the Postgres ledger, and compact Pub/Sub
//     notifications go out per chunk and per run when a topic is configured. Progress events are buffered by the hub
//     and fanned out to the log, status, Prometheus, and ledger sinks.
//   - Aggregation & export: internal/aggregate reads the durable chunk records in sequence order and writes one
//     consolidated JSON document to the output directory; internal/export optionally renders the same records to
//     XLSX next to it.
//   - Configuration & plumbing: Viper populates config from a YAML file plus PAGELIFT_* env overrides; zap provides
//     structured logging; Prometheus metrics are exported via the ops server's /metrics handler alongside /healthz,
//     /readyz, and the /v1/run status endpoint.
//
// Operational notes:
//   - Concurrency model: fixed worker pool sized by the credential list; slot pinning keeps any credential on at most
//     one in-flight request. Shutdown is coordinated via context cancellation propagated from main through the
//     scheduler to workers.
//   - Rate limiting/backoff: the governor pauses the whole pipeline after every N requests and sleeps the retry
//     cooldown before failover attempts only, never before first attempts.
//   - Observability: zap logs carry run and chunk IDs at key transitions; Prometheus counters/histograms track
//     attempts, chunk outcomes, and run totals; the progress hub batches lifecycle events for downstream sinks.
//   - Failure model: configuration and partition errors abort the run with a non-zero exit and best-effort scratch
//     cleanup. An exhausted chunk is terminal for that chunk only; it surfaces as an error row in the aggregate and
//     the run still completes.
//
// Quick checklist:
//   - Put credentials.keys in the config file; scalar settings may come from env (PAGELIFT_WORKDIR,
//     PAGELIFT_PARTITION_MAX_PAGES_PER_CHUNK, PAGELIFT_THROTTLE_REQUESTS_BEFORE_PAUSE,
//     PAGELIFT_THROTTLE_PAUSE_SECONDS, PAGELIFT_RECOGNIZER_MODEL, PAGELIFT_SCRATCH_BACKEND, and friends).
//   - Run locally: go run ./cmd/pagelift -document roll.pdf -config config.yaml.
//   - The ops server listens on the configured port for the duration of the run; the process reacts to SIGINT/SIGTERM
//     by cancelling in-flight chunk work before exiting.
package main
