// Demo runs the full queue lifecycle against a throwaway sqlite database:
// create a queue, send two messages, lease both, acknowledge one, and show
// the second coming back after its lease expires.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rowqueue/rowq/internal/queue/adapter"
	"github.com/rowqueue/rowq/internal/queue/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "demo: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	dir, err := os.MkdirTemp("", "rowq-demo-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	s, err := sqlite.Open(filepath.Join(dir, "demo.db"))
	if err != nil {
		return err
	}
	defer s.Close()

	queues := adapter.New(s, 30*time.Second)

	created, err := queues.Create(ctx, "jobs", 0)
	if err != nil {
		return err
	}
	fmt.Printf("create jobs: created=%v\n", created)

	created, err = queues.Create(ctx, "jobs", 0)
	if err != nil {
		return err
	}
	fmt.Printf("create jobs again: created=%v\n", created)

	for _, body := range []string{"payload-A", "payload-B"} {
		m, err := queues.Send(ctx, "jobs", body)
		if err != nil {
			return err
		}
		fmt.Printf("sent message %d: %q (md5 %s)\n", m.ID, m.Body, m.BodyMD5)
	}

	n, err := queues.Count(ctx, "jobs")
	if err != nil {
		return err
	}
	fmt.Printf("count: %d\n", n)

	batch, err := queues.Receive(ctx, "jobs", 2, 2*time.Second)
	if err != nil {
		return err
	}
	for _, m := range batch {
		fmt.Printf("leased message %d: %q handle=%s until=%s\n",
			m.ID, m.Body, *m.Handle, m.LeaseExpiresAt.Format(time.RFC3339))
	}

	// Leased messages still count; they are hidden, not gone.
	n, err = queues.Count(ctx, "jobs")
	if err != nil {
		return err
	}
	fmt.Printf("count while leased: %d\n", n)

	ok, err := queues.DeleteMessage(ctx, batch[0])
	if err != nil {
		return err
	}
	fmt.Printf("deleted message %d: %v\n", batch[0].ID, ok)

	fmt.Println("waiting for the second lease to expire...")
	time.Sleep(2500 * time.Millisecond)

	batch, err = queues.Receive(ctx, "jobs", 2, 30*time.Second)
	if err != nil {
		return err
	}
	fmt.Printf("redelivered %d message(s) after lease expiry\n", len(batch))
	for _, m := range batch {
		fmt.Printf("  message %d: %q (new handle=%s)\n", m.ID, m.Body, *m.Handle)
	}

	return nil
}
