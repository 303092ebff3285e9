package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/phonograph/internal/cli/config"
	"github.com/leapstack-labs/phonograph/internal/engine"
	"github.com/leapstack-labs/phonograph/internal/mapping"
	"github.com/leapstack-labs/phonograph/internal/server"
	"github.com/leapstack-labs/phonograph/internal/stream"
	"github.com/leapstack-labs/phonograph/pkg/core"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// StreamOptions holds options for the stream command.
type StreamOptions struct {
	Topic string
}

// NewStreamCommand creates the stream command.
func NewStreamCommand() *cobra.Command {
	opts := &StreamOptions{}

	cmd := &cobra.Command{
		Use:   "stream <key>",
		Short: "Consume a topic and ingest each message",
		Long: `Subscribe to the topic of a stream mapping and ingest every JSON message
until interrupted (Ctrl-C). Malformed messages are logged and skipped.

The topic comes from source_config.topic unless --topic is given. Consumer
settings come from the stream section of phonograph.yaml and the flags below;
source_config.bootstrap_servers and source_config.group_id of the mapping win
over both.

Streaming needs a binary built with cgo (the Kafka client is librdkafka).`,
		Example: `  # Consume the mapping's topic
  phonograph stream sensor-readings

  # Store objects and expose Prometheus metrics on :9090
  phonograph stream sensor-readings --sink store --metrics-addr :9090`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStream(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.Topic, "topic", "", "Topic to consume (overrides source_config.topic)")
	cmd.Flags().String("metrics-addr", "", "Serve /metrics, /healthz and /status on this address")
	cmd.Flags().String("sink", "", "Sink for objects (dryrun|log|jsonl|store)")
	cmd.Flags().String("output-file", "", "Output path for the jsonl sink")
	cmd.Flags().Bool("dedup", false, "Drop objects whose primary key was already ingested")
	cmd.Flags().String("backend", "", "Stream backend")
	cmd.Flags().String("bootstrap-servers", "", "Broker addresses")
	cmd.Flags().String("group-id", "", "Consumer group")
	cmd.Flags().String("offset-reset", "", "Where a new group starts (earliest|latest)")

	return cmd
}

// streamSettings resolves the topic and consumer settings of a mapping.
func streamSettings(m *mapping.Config, base config.StreamConfig, topicFlag string) (string, stream.Config, error) {
	if m.SourceType != core.SourceTypeStream {
		return "", stream.Config{}, fmt.Errorf("mapping %s reads a %s source, not a stream\nHint: Use 'phonograph ingest %s'", m.Key(), m.SourceType, m.Key())
	}

	topic := topicFlag
	if topic == "" {
		topic = m.SourceConfig.String("topic")
	}
	if topic == "" {
		return "", stream.Config{}, fmt.Errorf("mapping %s has no source_config.topic\nHint: Set it or pass --topic", m.Key())
	}

	sc := config.MergeStreamConfig(base, stream.Config{
		BootstrapServers: m.SourceConfig.String("bootstrap_servers"),
		GroupID:          m.SourceConfig.String("group_id"),
	})
	return topic, sc.WithDefaults(), nil
}

func runStream(cmd *cobra.Command, key string, opts *StreamOptions) error {
	cc := NewCommandContext(cmd)
	ctx := cmd.Context()

	set, err := cc.LoadMappings()
	if err != nil {
		return err
	}
	m, ok := set.Get(key)
	if !ok {
		_, err := selectMappings(set, []string{key}, false, nil)
		return err
	}

	topic, sc, err := streamSettings(m, cc.Cfg.Stream, opts.Topic)
	if err != nil {
		return err
	}

	store, err := cc.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	s, closeSink, err := cc.BuildSink(store)
	if err != nil {
		return err
	}
	defer func() { _ = closeSink() }()

	eng := cc.NewEngine(s, store)
	if !eng.StreamingAvailable() {
		return fmt.Errorf("%w\nHint: Build phonograph with CGO_ENABLED=1 to enable the Kafka backend", engine.ErrStreamingUnavailable)
	}

	cc.Renderer.Printf("Streaming %s from topic %s (%s)\n", m.Key(), topic, sc.BootstrapServers)

	g, gctx := errgroup.WithContext(ctx)
	srvCtx, stopServer := context.WithCancel(gctx)
	defer stopServer()

	if addr := cc.Cfg.MetricsAddr; addr != "" {
		srv := server.New(server.Config{
			Addr:    addr,
			Running: eng.Running,
			Runs:    store,
			Logger:  cc.Logger,
		})
		g.Go(func() error {
			return srv.Serve(srvCtx)
		})
	}

	g.Go(func() error {
		defer stopServer()
		return eng.StreamFromSource(gctx, topic, m, sc)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err == nil {
		cc.Logger.Info("stream stopped", slog.String("mapping", m.Key()))
	}
	return err
}
