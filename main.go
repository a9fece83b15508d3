package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"molva/internal/config"
	"molva/internal/content"
	"molva/internal/messenger"
	"molva/internal/models"
)

func run(ctx context.Context) error {
	peer := flag.String("peer", "", "User id to open a direct thread with")
	channel := flag.String("channel", "", "Channel id to join")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Identity and credential come from the auth layer; here they are just
	// handed in via the environment.
	identity := os.Getenv("MOLVA_USER_ID")
	credential := os.Getenv("MOLVA_TOKEN")
	if identity == "" || credential == "" {
		return fmt.Errorf("MOLVA_USER_ID and MOLVA_TOKEN are required")
	}

	log := logrus.New()

	m, err := messenger.New(cfg, identity, credential, log)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()

	if err := m.Start(ctx); err != nil {
		return err
	}

	unsubscribe := m.Subscribe(func(ev models.Event) {
		switch ev.Kind {
		case models.EventMessages:
			for _, msg := range ev.Messages {
				if msg.SenderID == identity {
					continue
				}
				fmt.Printf("[%s] %s: %s\n", msg.Timestamp.Format("15:04:05"), msg.SenderID, msg.Content)
			}
		case models.EventTyping:
			if ev.TypingActive {
				fmt.Printf("%s is typing...\n", ev.UserID)
			}
		case models.EventConnection:
			fmt.Printf("connection: %s\n", ev.State)
		}
	})
	defer unsubscribe()

	target := models.PollingContext{RecipientID: *peer, ChannelID: *channel}
	if target.IsZero() {
		return fmt.Errorf("either -peer or -channel is required")
	}
	if err := m.SelectConversation(ctx, target); err != nil {
		return err
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			m.NotifyLocalTyping()

			var attachments []models.Attachment
			if path, ok := strings.CutPrefix(line, "/attach "); ok {
				att, err := describeFile(strings.TrimSpace(path))
				if err != nil {
					fmt.Printf("attach: %v\n", err)
					continue
				}
				attachments = append(attachments, att)
				line = att.Name
			}

			if _, err := m.Send(gCtx, line, attachments, ""); err != nil {
				fmt.Printf("send: %v\n", err)
			}
		}
		return scanner.Err()
	})

	g.Go(func() error {
		<-gCtx.Done()
		return gCtx.Err()
	})

	return g.Wait()
}

func describeFile(path string) (models.Attachment, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.Attachment{}, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return models.Attachment{}, err
	}

	head := make([]byte, 261)
	n, _ := f.Read(head)

	name := filepath.Base(path)
	return models.Attachment{
		Name:     name,
		URL:      path,
		MimeType: content.DetectMime(name, head[:n]),
		Size:     info.Size(),
	}, nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logrus.Fatalf("Application error: %v", err)
	}
}
