// Command nyx-echo is a demo binary exercising the nyx reactor end to
// end: a "serve" command runs a TCP echo server, a "hash" command runs a
// worker-pool file-hash job. Command structure grounded on
// ChuLiYu-raft-recovery's internal/cli.BuildCLI (root command + Cobra
// subcommands + persistent --config flag).
package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nyx-io/nyx"
	"github.com/nyx-io/nyx/internal/config"
	"github.com/nyx-io/nyx/internal/metrics"
)

var configFile string

func main() {
	if err := buildRoot().Execute(); err != nil {
		os.Exit(1)
	}
}

func buildRoot() *cobra.Command {
	root := &cobra.Command{
		Use:   "nyx-echo",
		Short: "Demo binary for the nyx async I/O reactor",
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (defaults built in if omitted)")
	root.AddCommand(buildServeCommand())
	root.AddCommand(buildHashCommand())
	return root
}

func loadConfig() config.Config {
	if configFile == "" {
		return config.Default()
	}
	cfg, err := config.Load(configFile)
	if err != nil {
		slog.Warn("falling back to default config", "error", err)
		return config.Default()
	}
	return cfg
}

func buildServeCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a TCP echo server on the reactor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:9100", "address to listen on")
	return cmd
}

func runServe(addr string) error {
	cfg := loadConfig()
	loop, err := nyx.NewLoop()
	if err != nil {
		return fmt.Errorf("new loop: %w", err)
	}
	defer loop.Close()

	if cfg.Metrics.Enabled {
		reg := metrics.NewRegistry()
		loop.SetMetrics(reg)
		go func() {
			if err := reg.Serve(cfg.Metrics.Addr); err != nil {
				slog.Error("metrics server stopped", "error", err)
			}
		}()
	}

	ln, err := nyx.ListenTCP(loop, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	ln.Ref()

	slog.Info("echo server listening", "addr", addr)
	ln.Listen(func(s *nyx.Stream, err error) {
		if err != nil {
			slog.Error("accept error", "error", err)
			return
		}
		conn, err := s.Accept()
		if err != nil {
			slog.Error("accept retrieve error", "error", err)
			return
		}
		conn.ReadStart(
			func(suggested int) []byte { return make([]byte, cfg.Stream.ReadBufferSize) },
			func(c *nyx.Stream, data []byte, rerr error) {
				if rerr != nil {
					c.Close(nil)
					return
				}
				echoed := make([]byte, len(data))
				copy(echoed, data)
				c.Write([][]byte{echoed}, func(req *nyx.WriteReq, n int, werr error) {
					if werr != nil {
						c.Close(nil)
					}
				})
			},
		)
	})

	loop.Run(nyx.RunDefault)
	return nil
}

func buildHashCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash [file]",
		Short: "Hash a file's contents on the worker pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHash(args[0])
		},
	}
	return cmd
}

func runHash(path string) error {
	cfg := loadConfig()
	loop, err := nyx.NewLoop()
	if err != nil {
		return fmt.Errorf("new loop: %w", err)
	}
	defer loop.Close()

	pool := nyx.NewPool(loop, cfg.Pool.Size)
	var hashErr error
	nyx.FSReadFile(pool, path, func(data []byte, rerr error, cancelled bool) {
		if rerr != nil {
			hashErr = rerr
			return
		}
		sum := sha256.Sum256(data)
		fmt.Println(hex.EncodeToString(sum[:]))
	})

	loop.Run(nyx.RunDefault)
	return hashErr
}
