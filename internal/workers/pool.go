// Package workers consumes the opportunities topic and hands each record to
// a handler. The pool shares one consumer group, so records are divided
// among the workers rather than duplicated.
package workers

import (
	"context"
	"encoding/json"
	"sync"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/mkalra/crossarb/internal/kafka"
	"github.com/mkalra/crossarb/internal/logging"
	"github.com/mkalra/crossarb/internal/models"
)

type Handler func(context.Context, *models.Opportunity) error

// Run blocks until ctx is canceled, consuming the topic with workerCount
// readers in one group. Handler errors are logged and the record is skipped;
// a poison message never wedges the pool.
func Run(ctx context.Context, brokers []string, topic, group string, workerCount int, handler Handler) {
	if workerCount <= 0 {
		workerCount = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			reader := kafka.NewReader(brokers, topic, group)
			defer reader.Close()
			consume(ctx, reader, handler)
		}(i)
	}

	<-ctx.Done()
	wg.Wait()
}

func consume(ctx context.Context, reader *kafkago.Reader, handler Handler) {
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logging.Errorf("[workers] read error: %v", err)
			continue
		}

		var set models.OpportunitySet
		if err := json.Unmarshal(msg.Value, &set); err != nil {
			logging.Errorf("[workers] unmarshal error: %v", err)
			continue
		}
		if handler == nil {
			continue
		}
		for i := range set.Opportunities {
			if err := handler(ctx, &set.Opportunities[i]); err != nil {
				logging.Errorf("[workers] handler error: %v", err)
			}
		}
	}
}
