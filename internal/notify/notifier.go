// Package notify turns bus-delivered opportunity sets into chat digests.
// Batching, debounce, and rate limiting live here, on the consumer side;
// the engine stays oblivious to delivery mechanics.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mkalra/crossarb/internal/bus"
	"github.com/mkalra/crossarb/internal/logging"
	"github.com/mkalra/crossarb/internal/models"
)

// Sender delivers one rendered digest to one chat.
type Sender interface {
	Name() string
	Send(ctx context.Context, chatID, text string) error
}

// Config bounds how chatty the notifier may be.
type Config struct {
	ChatIDs     []string
	Debounce    time.Duration // suppress repeats of one fingerprint
	MinInterval time.Duration // floor between sends to one chat
	MaxRows     int           // digest rows per message
}

// Notifier consumes the opportunities topic and pushes digests of the
// highest-edge fresh rows. With no sender or no chats it logs the digest
// instead (dry-run), so the pipeline is observable without credentials.
type Notifier struct {
	sender Sender
	cfg    Config
	now    func() time.Time

	mu       sync.Mutex
	lastSeen map[string]time.Time
	lastSend map[string]time.Time
}

func New(sender Sender, cfg Config) *Notifier {
	if cfg.MaxRows < 1 {
		cfg.MaxRows = 5
	}
	return &Notifier{
		sender:   sender,
		cfg:      cfg,
		now:      time.Now,
		lastSeen: make(map[string]time.Time),
		lastSend: make(map[string]time.Time),
	}
}

// Run consumes the topic until ctx ends or the bus closes the subscription.
func (n *Notifier) Run(ctx context.Context, b bus.Bus, topic string) error {
	ch, err := b.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("notify: subscribe %s: %w", topic, err)
	}
	logging.Infof("[notify] consuming %s (chats=%d, debounce=%s)", topic, len(n.cfg.ChatIDs), n.cfg.Debounce)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-ch:
			if !ok {
				return nil
			}
			n.handle(ctx, payload)
		}
	}
}

func (n *Notifier) handle(ctx context.Context, payload []byte) {
	var set models.OpportunitySet
	if err := json.Unmarshal(payload, &set); err != nil {
		logging.Errorf("[notify] unmarshal: %v", err)
		return
	}
	fresh := n.debounce(set.Opportunities)
	if len(fresh) == 0 {
		return
	}
	if len(fresh) > n.cfg.MaxRows {
		fresh = fresh[:n.cfg.MaxRows]
	}
	n.broadcast(ctx, Digest(fresh))
}

// debounce keeps rows whose fingerprint has not been notified within the
// window and stamps the ones it keeps. The set arrives sorted by net edge,
// so survivors stay the best rows.
func (n *Notifier) debounce(opps []models.Opportunity) []models.Opportunity {
	now := n.now()
	n.mu.Lock()
	defer n.mu.Unlock()

	var out []models.Opportunity
	for _, opp := range opps {
		key := opp.ID
		if key == "" {
			key = opp.Fingerprint()
		}
		if last, ok := n.lastSeen[key]; ok && now.Sub(last) < n.cfg.Debounce {
			continue
		}
		n.lastSeen[key] = now
		out = append(out, opp)
	}
	return out
}

func (n *Notifier) broadcast(ctx context.Context, text string) {
	if n.sender == nil || len(n.cfg.ChatIDs) == 0 {
		logging.Infof("[notify] digest (dry-run):\n%s", text)
		return
	}
	for _, chatID := range n.cfg.ChatIDs {
		if !n.canSend(chatID) {
			continue
		}
		if err := n.sender.Send(ctx, chatID, text); err != nil {
			logging.Warnf("[notify] %s send to %s: %v", n.sender.Name(), chatID, err)
		}
	}
}

// canSend enforces the per-chat floor and stamps the send slot when granted.
func (n *Notifier) canSend(chatID string) bool {
	now := n.now()
	n.mu.Lock()
	defer n.mu.Unlock()
	if last, ok := n.lastSend[chatID]; ok && now.Sub(last) < n.cfg.MinInterval {
		return false
	}
	n.lastSend[chatID] = now
	return true
}

// Digest renders rows into the HTML message body sent to every chat.
func Digest(rows []models.Opportunity) string {
	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, "<b>Arbitrage digest</b>")
	for _, row := range rows {
		switch row.Type {
		case models.KindTriangular:
			lines = append(lines, fmt.Sprintf(
				"• <b>%s</b> cycle on %s | net: %s%% | qty: %s",
				strings.Join(row.AssetCycle, "→"), row.Exchange,
				row.NetEdgePct.StringFixed(3), row.AvailableQty.StringFixed(4)))
		default:
			lines = append(lines, fmt.Sprintf(
				"• <b>%s</b> %s → %s | net: %s%% | qty: %s",
				row.Symbol, row.BuyExchange, row.SellExchange,
				row.NetEdgePct.StringFixed(3), row.AvailableQty.StringFixed(4)))
		}
	}
	return strings.Join(lines, "\n")
}
