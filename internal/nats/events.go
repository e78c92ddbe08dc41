package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/clausebit/companion/internal/model"
	"github.com/clausebit/companion/pkg/logger"
)

const (
	// BadgeSubject carries new-result notifications.
	BadgeSubject = "clausebit.badge"

	// TabSubjectPrefix prefixes tab lifecycle subjects: clausebit.tabs.<type>.
	TabSubjectPrefix = "clausebit.tabs"
)

// TabSubject returns the subject a bridge publishes ev on.
func TabSubject(t model.TabEventType) string {
	return TabSubjectPrefix + "." + string(t)
}

// BadgePublisher publishes badge events. It satisfies scan.Notifier.
type BadgePublisher struct {
	conn   *nats.Conn
	logger *logger.Logger
}

// NewBadgePublisher creates a publisher on client's connection.
func NewBadgePublisher(client *Client) *BadgePublisher {
	return &BadgePublisher{conn: client.Conn(), logger: client.logger}
}

// NewResult publishes ev to BadgeSubject. Failures are logged.
func (p *BadgePublisher) NewResult(_ context.Context, ev model.BadgeEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("failed to marshal badge event", zap.Error(err))
		return
	}
	if err := p.conn.Publish(BadgeSubject, data); err != nil {
		p.logger.Warn("failed to publish badge event", zap.String("tab_id", ev.TabID), zap.Error(err))
	}
}

// TabEventHandler handles one tab lifecycle event.
type TabEventHandler func(ctx context.Context, ev model.TabEvent) error

// SubscribeTabEvents delivers events published under TabSubjectPrefix to
// handle until ctx is done. The event type defaults to the subject's last
// token when the payload omits it.
func SubscribeTabEvents(ctx context.Context, client *Client, handle TabEventHandler) (*nats.Subscription, error) {
	log := client.logger
	sub, err := client.Conn().Subscribe(TabSubjectPrefix+".>", func(msg *nats.Msg) {
		ev, err := DecodeTabEvent(msg.Subject, msg.Data)
		if err != nil {
			log.Warn("dropping malformed tab event", zap.String("subject", msg.Subject), zap.Error(err))
			return
		}
		if err := handle(ctx, ev); err != nil {
			log.Debug("tab event rejected", zap.String("tab_id", ev.TabID), zap.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to tab events: %w", err)
	}

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()
	return sub, nil
}

// DecodeTabEvent parses a tab event payload received on subject.
func DecodeTabEvent(subject string, data []byte) (model.TabEvent, error) {
	var ev model.TabEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("decode tab event: %w", err)
	}
	if ev.Type == "" {
		ev.Type = model.TabEventType(subject[strings.LastIndex(subject, ".")+1:])
	}
	if ev.TabID == "" {
		return ev, fmt.Errorf("tab event without tab_id")
	}
	return ev, nil
}
