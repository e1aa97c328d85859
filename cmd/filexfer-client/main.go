package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"

	"github.com/pavel-fokin/filexfer/internal/client"
)

const usage = `usage: filexfer-client [flags] <command> [args]

commands:
  list
  upload <local-path> [remote-name]
  download <remote-name> [local-path]
  delete <remote-name>
  stress [-op upload|download] [-clients N] [-size 10MB] <remote-name>

flags:
`

func main() {
	_ = godotenv.Load()

	defaultAddr := os.Getenv("FILEXFER_ADDR")
	if defaultAddr == "" {
		defaultAddr = "localhost:60001"
	}

	addr := flag.String("addr", defaultAddr, "server address")
	timeout := flag.Duration("timeout", 30*time.Second, "per read and write timeout")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	ctx := context.Background()
	cmd, args := flag.Arg(0), flag.Args()[1:]

	if cmd == "stress" {
		if err := stress(ctx, *addr, *timeout, args); err != nil {
			log.Fatalf("stress failed: %v", err)
		}
		return
	}

	conn, err := client.Dial(ctx, *addr, *timeout)
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	if err := run(conn, cmd, args); err != nil {
		conn.Close()
		log.Fatalf("%s failed: %v", cmd, err)
	}
}

func run(conn *client.Conn, cmd string, args []string) error {
	switch cmd {
	case "list":
		names, err := conn.List()
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil

	case "upload":
		if len(args) < 1 {
			return fmt.Errorf("missing local path")
		}
		remote := filepath.Base(args[0])
		if len(args) > 1 {
			remote = args[1]
		}

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		start := time.Now()
		msg, err := conn.Upload(remote, f)
		if err != nil {
			return err
		}
		fmt.Printf("%s (%s)\n", msg, time.Since(start).Round(time.Millisecond))
		return nil

	case "download":
		if len(args) < 1 {
			return fmt.Errorf("missing remote name")
		}
		local := filepath.Base(args[0])
		if len(args) > 1 {
			local = args[1]
		}

		start := time.Now()
		data, err := conn.Download(args[0])
		if err != nil {
			return err
		}
		if err := os.WriteFile(local, data, 0644); err != nil {
			return err
		}
		fmt.Printf("Downloaded %s to %s, %s in %s\n",
			args[0], local, humanize.Bytes(uint64(len(data))), time.Since(start).Round(time.Millisecond))
		return nil

	case "delete":
		if len(args) < 1 {
			return fmt.Errorf("missing remote name")
		}
		msg, err := conn.Delete(args[0])
		if err != nil {
			return err
		}
		fmt.Println(msg)
		return nil

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func stress(ctx context.Context, addr string, timeout time.Duration, args []string) error {
	fs := flag.NewFlagSet("stress", flag.ExitOnError)
	op := fs.String("op", string(client.OpUpload), "operation: upload or download")
	clients := fs.Int("clients", 1, "number of concurrent clients")
	size := fs.String("size", "10MB", "size of the generated upload")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("missing remote name")
	}

	cfg := client.StressConfig{
		Addr:      addr,
		Operation: client.Operation(*op),
		FileName:  fs.Arg(0),
		Clients:   *clients,
		Timeout:   timeout,
	}
	if cfg.Operation == client.OpUpload {
		n, err := humanize.ParseBytes(*size)
		if err != nil {
			return fmt.Errorf("invalid size: %w", err)
		}
		cfg.Content = make([]byte, n)
		if _, err := rand.Read(cfg.Content); err != nil {
			return err
		}
	}

	report, err := client.Stress(ctx, cfg)
	if err != nil {
		return err
	}

	fmt.Printf("operation:      %s\n", report.Operation)
	fmt.Printf("clients:        %d\n", report.Clients)
	fmt.Printf("success:        %d\n", report.Success)
	fmt.Printf("fail:           %d\n", report.Fail)
	fmt.Printf("avg duration:   %s\n", report.AvgDuration.Round(time.Millisecond))
	fmt.Printf("avg throughput: %s/s\n", humanize.Bytes(uint64(report.AvgThroughput)))
	fmt.Printf("total bytes:    %s\n", humanize.Bytes(uint64(report.TotalBytes)))
	for _, err := range report.Errors {
		fmt.Printf("error: %v\n", err)
	}
	return nil
}
