// Package notify sends backup and restore reports through Pushover.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gregdel/pushover"
	"github.com/rs/zerolog/log"
)

// Operation names the job a report is about.
type Operation string

const (
	OpBackup  Operation = "Backup"
	OpRestore Operation = "Restore"
)

var errInvalidCredentials = errors.New("notify: invalid pushover credentials")

// Report describes a finished operation.
type Report struct {
	Op        Operation
	Err       error
	Duration  time.Duration
	SizeBytes int64
	// Details are appended as "key: value" lines, sorted by key.
	Details map[string]string
}

type Config struct {
	APIKey  string
	UserKey string
}

// Enabled reports whether both keys are set.
func (c Config) Enabled() bool { return c.APIKey != "" && c.UserKey != "" }

type pushoverAPI interface {
	SendMessage(message *pushover.Message, recipient *pushover.Recipient) (*pushover.Response, error)
}

type Client struct {
	app  pushoverAPI
	user string
	now  func() time.Time
}

// NewClient returns nil when cfg is not enabled, so callers can skip
// notifications with a nil check.
func NewClient(cfg Config) (*Client, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	if !validKey(cfg.APIKey, "a") || !validKey(cfg.UserKey, "u") {
		return nil, errInvalidCredentials
	}
	return &Client{app: pushover.New(strings.TrimSpace(cfg.APIKey)), user: strings.TrimSpace(cfg.UserKey), now: time.Now}, nil
}

// Pushover keys are 30 characters; application tokens start with "a" and
// user keys with "u".
func validKey(key, prefix string) bool {
	clean := strings.TrimSpace(key)
	return len(clean) == 30 && strings.HasPrefix(clean, prefix)
}

// Notify sends r. A nil client is a no-op.
func (c *Client) Notify(ctx context.Context, r Report) error {
	if c == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := message(r)
	msg.Timestamp = c.now().Unix()

	if _, err := c.app.SendMessage(msg, pushover.NewRecipient(c.user)); err != nil {
		return fmt.Errorf("send pushover notification: %w", err)
	}
	log.Debug().Str("component", "notify").Str("op", string(r.Op)).Bool("success", r.Err == nil).Msg("Notification sent")
	return nil
}

func message(r Report) *pushover.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Operation: %s\n", r.Op)
	fmt.Fprintf(&b, "Duration: %s\n", r.Duration.Round(time.Second))

	msg := &pushover.Message{Priority: pushover.PriorityNormal}
	if r.Err == nil {
		msg.Title = fmt.Sprintf("✅ Vault %s Successful", r.Op)
		if r.SizeBytes > 0 {
			fmt.Fprintf(&b, "Size: %s\n", humanize.Bytes(uint64(r.SizeBytes)))
		}
	} else {
		msg.Title = fmt.Sprintf("❌ Vault %s Failed", r.Op)
		msg.Priority = pushover.PriorityHigh
		fmt.Fprintf(&b, "Error: %v\n", r.Err)
	}

	if len(r.Details) > 0 {
		keys := make([]string, 0, len(r.Details))
		for k := range r.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\nDetails:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "%s: %s\n", k, r.Details[k])
		}
	}
	msg.Message = strings.TrimRight(b.String(), "\n")
	return msg
}
