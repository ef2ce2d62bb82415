package feeder

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Synternet/stellar-price-feeder/pkg/feeder"
)

const DefaultRequestTimeout = 2 * time.Minute

type aggregateReply struct {
	Prices [][]PriceView `json:"prices,omitempty"`
	Error  string        `json:"error,omitempty"`
}

func AggregateSubject(prefix string) string {
	if prefix == "" {
		return "aggregate"
	}
	return prefix + ".aggregate"
}

// SubscribeAggregate answers aggregation requests on {prefix}.aggregate.
// Requests are queued so that several replicas share the load.
func (f *Feeder) SubscribeAggregate(ctx context.Context, conn *nats.Conn, prefix string) (*nats.Subscription, error) {
	subject := AggregateSubject(prefix)
	sub, err := conn.QueueSubscribe(subject, subject, func(m *nats.Msg) {
		f.handleAggregate(ctx, m)
	})
	if err != nil {
		return nil, err
	}
	f.logger.Info("NATS: Serving aggregations", "subject", subject)
	return sub, nil
}

func (f *Feeder) handleAggregate(ctx context.Context, m *nats.Msg) {
	var reply aggregateReply

	var req feeder.Request
	if err := json.Unmarshal(m.Data, &req); err != nil {
		f.logger.Warn("NATS: Bogus aggregation request", "subject", m.Subject, "err", err)
		reply.Error = err.Error()
		f.respond(m, reply)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultRequestTimeout)
	defer cancel()

	table, err := f.Aggregate(ctx, req)
	if err != nil {
		reply.Error = err.Error()
	} else {
		reply.Prices = NewPriceTable(table)
	}
	f.respond(m, reply)
}

func (f *Feeder) respond(m *nats.Msg, reply aggregateReply) {
	if m.Reply == "" {
		return
	}
	data, err := json.Marshal(reply)
	if err != nil {
		f.logger.Error("NATS: Failed encoding reply", "err", err)
		return
	}
	if err := m.Respond(data); err != nil {
		f.logger.Warn("NATS: Failed responding", "subject", m.Subject, "err", err)
	}
}
